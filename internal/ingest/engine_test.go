package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotbassa/highway-inventory-backend/internal/db"
	"github.com/dotbassa/highway-inventory-backend/internal/model"
)

// fakeRepo scripts the two ingestion queries. conflicts marks natural keys
// the conditional insert silently drops; insertErrs fails whole batches by
// batch number (1-based); upsertErr fails the quarantine upsert.
type fakeRepo struct {
	conflicts  map[int64]bool
	insertErrs map[int]error
	upsertErr  error

	insertCalls  int
	insertedKeys []int64
	upsertCalls  int
	upsertedRows []model.CandidateAsset
}

func (f *fakeRepo) InsertAssetsIgnoreConflicts(_ context.Context, batch []model.CandidateAsset) ([]int64, error) {
	f.insertCalls++
	if err := f.insertErrs[f.insertCalls]; err != nil {
		return nil, err
	}

	var inserted []int64
	for _, c := range batch {
		if f.conflicts[c.IDInterno] {
			continue
		}
		inserted = append(inserted, c.IDInterno)
		f.insertedKeys = append(f.insertedKeys, c.IDInterno)
	}
	return inserted, nil
}

func (f *fakeRepo) UpsertConflictiveAssets(_ context.Context, rows []model.CandidateAsset) error {
	f.upsertCalls++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upsertedRows = append(f.upsertedRows, rows...)
	return nil
}

func (f *fakeRepo) GetContractProjectByName(context.Context, string) (*model.ContractProject, error) {
	return nil, nil
}

func (f *fakeRepo) GetElementTypeByName(context.Context, string) (*model.ElementType, error) {
	return nil, nil
}

func (f *fakeRepo) GetAssetsByDateRange(context.Context, int64, time.Time, time.Time, int64, model.AssetStatus) ([]model.Asset, error) {
	return nil, nil
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

func candidates(ids ...int64) []model.CandidateAsset {
	rows := make([]model.CandidateAsset, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, model.CandidateAsset{IDInterno: id})
	}
	return rows
}

func notNullViolation() error {
	return &pgconn.PgError{Code: "23502", Message: "null value in column"}
}

func TestIngestEmptyInput(t *testing.T) {
	engine := NewEngine(&fakeRepo{})

	resp, err := engine.Ingest(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Equal(t, model.BulkAssetResponse{FailedIDsInterno: []int64{}}, resp)
}

func TestIngestAllCreated(t *testing.T) {
	repo := &fakeRepo{}
	engine := NewEngine(repo)

	resp, err := engine.Ingest(context.Background(), candidates(1, 2, 3, 4, 5), 2)
	require.NoError(t, err)

	assert.Equal(t, 5, resp.Created)
	assert.Equal(t, 0, resp.Conflictive)
	assert.Equal(t, 0, resp.Failed)
	assert.Equal(t, 5, resp.Total)
	assert.Empty(t, resp.FailedIDsInterno)
	assert.Equal(t, 3, repo.insertCalls)
	assert.Equal(t, 0, repo.upsertCalls)
}

func TestIngestConflictsAreQuarantined(t *testing.T) {
	repo := &fakeRepo{conflicts: map[int64]bool{2: true, 3: true}}
	engine := NewEngine(repo)

	resp, err := engine.Ingest(context.Background(), candidates(1, 2, 3), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Created)
	assert.Equal(t, 2, resp.Conflictive)
	assert.Equal(t, 0, resp.Failed)
	assert.Equal(t, 3, resp.Total)

	require.Len(t, repo.upsertedRows, 2)
	assert.Equal(t, int64(2), repo.upsertedRows[0].IDInterno)
	assert.Equal(t, int64(3), repo.upsertedRows[1].IDInterno)
}

func TestIngestAllConflictive(t *testing.T) {
	repo := &fakeRepo{conflicts: map[int64]bool{1: true, 2: true}}
	engine := NewEngine(repo)

	resp, err := engine.Ingest(context.Background(), candidates(1, 2), 10)
	require.NoError(t, err)

	assert.Equal(t, 0, resp.Created)
	assert.Equal(t, 2, resp.Conflictive)
	assert.Equal(t, 0, resp.Failed)
	assert.Equal(t, 1, repo.upsertCalls)
}

func TestIngestBatchFailureDoesNotAbortLaterBatches(t *testing.T) {
	repo := &fakeRepo{insertErrs: map[int]error{1: notNullViolation()}}
	engine := NewEngine(repo)

	resp, err := engine.Ingest(context.Background(), candidates(1, 2, 3, 4), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Created)
	assert.Equal(t, 0, resp.Conflictive)
	assert.Equal(t, 2, resp.Failed)
	assert.Equal(t, 4, resp.Total)
	assert.Equal(t, []int64{1, 2}, resp.FailedIDsInterno)
}

func TestIngestUnexpectedErrorAborts(t *testing.T) {
	repo := &fakeRepo{insertErrs: map[int]error{1: errors.New("connection refused")}}
	engine := NewEngine(repo)

	_, err := engine.Ingest(context.Background(), candidates(1, 2), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIngestConflictiveUpsertFailureReclassifies(t *testing.T) {
	repo := &fakeRepo{
		conflicts: map[int64]bool{2: true},
		upsertErr: notNullViolation(),
	}
	engine := NewEngine(repo)

	resp, err := engine.Ingest(context.Background(), candidates(1, 2, 3), 10)
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Created)
	assert.Equal(t, 0, resp.Conflictive)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, []int64{2}, resp.FailedIDsInterno)
}

func TestIngestCountsAlwaysSumToTotal(t *testing.T) {
	repo := &fakeRepo{
		conflicts:  map[int64]bool{3: true, 7: true},
		insertErrs: map[int]error{2: notNullViolation()},
	}
	engine := NewEngine(repo)

	resp, err := engine.Ingest(context.Background(), candidates(1, 2, 3, 4, 5, 6, 7, 8), 3)
	require.NoError(t, err)

	assert.Equal(t, resp.Total, resp.Created+resp.Conflictive+resp.Failed)
	assert.Equal(t, 8, resp.Total)
	assert.Len(t, resp.FailedIDsInterno, resp.Failed)
}
