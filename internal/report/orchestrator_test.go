package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotbassa/highway-inventory-backend/internal/db"
	"github.com/dotbassa/highway-inventory-backend/internal/model"
	"github.com/dotbassa/highway-inventory-backend/internal/worker"
	pkgerrors "github.com/dotbassa/highway-inventory-backend/pkg/errors"
)

type fakeRepo struct {
	contract       *model.ContractProject
	contractErr    error
	elementType    *model.ElementType
	elementTypeErr error
	assets         []model.Asset
	assetsErr      error
}

func (f *fakeRepo) GetContractProjectByName(context.Context, string) (*model.ContractProject, error) {
	return f.contract, f.contractErr
}

func (f *fakeRepo) GetElementTypeByName(context.Context, string) (*model.ElementType, error) {
	return f.elementType, f.elementTypeErr
}

func (f *fakeRepo) GetAssetsByDateRange(context.Context, int64, time.Time, time.Time, int64, model.AssetStatus) ([]model.Asset, error) {
	return f.assets, f.assetsErr
}

func (f *fakeRepo) InsertAssetsIgnoreConflicts(context.Context, []model.CandidateAsset) ([]int64, error) {
	return nil, nil
}

func (f *fakeRepo) UpsertConflictiveAssets(context.Context, []model.CandidateAsset) error {
	return nil
}

func (f *fakeRepo) GetAssetsByIDsInterno(context.Context, []int64) ([]model.ResolvedAsset, error) {
	return nil, nil
}

func (f *fakeRepo) GetConflictiveAssetsByIDsInterno(context.Context, []int64) ([]model.ResolvedAsset, error) {
	return nil, nil
}

func (f *fakeRepo) UpdatePhotoNames(context.Context, model.OwnerKind, []db.PhotoNameUpdate) ([]int64, error) {
	return nil, nil
}

func (f *fakeRepo) GetAssetsForMobileSync(context.Context, model.MobileSyncRequest) ([]model.Asset, int, error) {
	return nil, 0, nil
}

func newTestOrchestrator(t *testing.T, repo db.Repository) (*Orchestrator, *Store) {
	t.Helper()

	store, err := NewStore(t.TempDir(), 1, time.Hour)
	require.NoError(t, err)

	pool := worker.NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		cancel()
		pool.Stop()
	})

	return NewOrchestrator(store, repo, pool, newMemStorage()), store
}

func waitTerminal(t *testing.T, store *Store, taskID string) model.ReportStatus {
	t.Helper()

	var status model.ReportStatus
	require.Eventually(t, func() bool {
		status, _ = store.Status(taskID)
		return status == model.ReportStatusCompleted || status == model.ReportStatusFailed
	}, 5*time.Second, 10*time.Millisecond)
	return status
}

func TestOrchestratorCompletesAssetReport(t *testing.T) {
	repo := &fakeRepo{
		contract: &model.ContractProject{ID: 1, Nombre: "Ruta 5"},
		assets: []model.Asset{
			{IDInterno: 1, TagBIM: "BIM-1", FechaInstalacion: time.Now()},
		},
	}
	orch, store := newTestOrchestrator(t, repo)

	taskID, err := orch.Launch(model.ReportRequest{
		Kind:         model.ReportKindAssets,
		ContractName: "Ruta 5",
		FechaDesde:   time.Now().Add(-24 * time.Hour),
		FechaHasta:   time.Now(),
	})
	require.NoError(t, err)

	status := waitTerminal(t, store, taskID)
	assert.Equal(t, model.ReportStatusCompleted, status)

	path, ok := store.ArtifactPath(taskID)
	require.True(t, ok)
	assert.Contains(t, path, ".xlsx")
}

func TestOrchestratorCompletesKMZReport(t *testing.T) {
	repo := &fakeRepo{
		contract: &model.ContractProject{ID: 1, Nombre: "Ruta 5"},
		assets: []model.Asset{
			{IDInterno: 1, Georeferenciacion: "-30.1, -71.2"},
		},
	}
	orch, store := newTestOrchestrator(t, repo)

	taskID, err := orch.Launch(model.ReportRequest{Kind: model.ReportKindKMZ, ContractName: "Ruta 5"})
	require.NoError(t, err)

	status := waitTerminal(t, store, taskID)
	assert.Equal(t, model.ReportStatusCompleted, status)

	path, ok := store.ArtifactPath(taskID)
	require.True(t, ok)
	assert.Contains(t, path, ".kmz")
}

func TestOrchestratorFailsOnUnknownContract(t *testing.T) {
	repo := &fakeRepo{contractErr: pkgerrors.ErrContractNotFound}
	orch, store := newTestOrchestrator(t, repo)

	taskID, err := orch.Launch(model.ReportRequest{Kind: model.ReportKindAssets, ContractName: "Fantasma"})
	require.NoError(t, err)

	status := waitTerminal(t, store, taskID)
	assert.Equal(t, model.ReportStatusFailed, status)

	_, message := store.Status(taskID)
	assert.Equal(t, "Proyecto de contrato 'Fantasma' no encontrado", message)
}

func TestOrchestratorFailsOnUnknownElementType(t *testing.T) {
	repo := &fakeRepo{
		contract:       &model.ContractProject{ID: 1, Nombre: "Ruta 5"},
		elementTypeErr: pkgerrors.ErrElementTypeNotFound,
	}
	orch, store := newTestOrchestrator(t, repo)

	taskID, err := orch.Launch(model.ReportRequest{
		Kind:         model.ReportKindAssets,
		ContractName: "Ruta 5",
		ElementType:  "Inexistente",
	})
	require.NoError(t, err)

	status := waitTerminal(t, store, taskID)
	assert.Equal(t, model.ReportStatusFailed, status)

	_, message := store.Status(taskID)
	assert.Equal(t, "Tipo de elemento 'Inexistente' no encontrado", message)
}

func TestOrchestratorFailsOnQueryError(t *testing.T) {
	repo := &fakeRepo{
		contract:  &model.ContractProject{ID: 1, Nombre: "Ruta 5"},
		assetsErr: errors.New("connection reset"),
	}
	orch, store := newTestOrchestrator(t, repo)

	taskID, err := orch.Launch(model.ReportRequest{Kind: model.ReportKindAssets, ContractName: "Ruta 5"})
	require.NoError(t, err)

	status := waitTerminal(t, store, taskID)
	assert.Equal(t, model.ReportStatusFailed, status)

	_, message := store.Status(taskID)
	assert.Contains(t, message, "Error interno al generar el reporte")
}

func TestOrchestratorDeniesSecondLaunch(t *testing.T) {
	block := make(chan struct{})
	repo := &fakeRepo{contract: &model.ContractProject{ID: 1, Nombre: "Ruta 5"}}

	store, err := NewStore(t.TempDir(), 1, time.Hour)
	require.NoError(t, err)

	pool := worker.NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		close(block)
		cancel()
		pool.Stop()
	})

	orch := NewOrchestrator(store, repo, pool, newMemStorage())

	// Hold the single worker so the first task stays pending.
	pool.Submit(func(context.Context) { <-block })

	_, err = orch.Launch(model.ReportRequest{Kind: model.ReportKindAssets, ContractName: "Ruta 5"})
	require.NoError(t, err)

	_, err = orch.Launch(model.ReportRequest{Kind: model.ReportKindAssets, ContractName: "Ruta 5"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsAdmissionDenied(err))
}
