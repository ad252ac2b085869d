package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotbassa/highway-inventory-backend/internal/model"
	pkgerrors "github.com/dotbassa/highway-inventory-backend/pkg/errors"
)

func newTestStore(t *testing.T, ceiling int, expiration time.Duration) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), ceiling, expiration)
	require.NoError(t, err)
	return store
}

func TestStoreSubmitCreatesPendingTask(t *testing.T) {
	store := newTestStore(t, 1, time.Hour)

	taskID, err := store.Submit()
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	status, message := store.Status(taskID)
	assert.Equal(t, model.ReportStatusPending, status)
	assert.Equal(t, "Generando reporte, por favor espere...", message)
	assert.Equal(t, 1, store.PendingCount())
}

func TestStoreStatusUnknownTask(t *testing.T) {
	store := newTestStore(t, 1, time.Hour)

	status, message := store.Status("no-such-task")
	assert.Empty(t, string(status))
	assert.Equal(t, "Reporte no encontrado o expirado", message)
}

func TestStoreCompleteTransition(t *testing.T) {
	store := newTestStore(t, 1, time.Hour)

	taskID, err := store.Submit()
	require.NoError(t, err)

	artifact := []byte("workbook bytes")
	require.True(t, store.Complete(taskID, ".xlsx", artifact))

	status, message := store.Status(taskID)
	assert.Equal(t, model.ReportStatusCompleted, status)
	assert.Equal(t, "Reporte listo para descargar", message)

	// Pending marker must be gone so the ceiling frees up.
	assert.Equal(t, 0, store.PendingCount())

	path, ok := store.ArtifactPath(taskID)
	require.True(t, ok)
	assert.Equal(t, ".xlsx", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, artifact, data)
}

func TestStoreFailTransition(t *testing.T) {
	store := newTestStore(t, 1, time.Hour)

	taskID, err := store.Submit()
	require.NoError(t, err)
	require.True(t, store.Fail(taskID, "Proyecto de contrato 'X' no encontrado"))

	status, message := store.Status(taskID)
	assert.Equal(t, model.ReportStatusFailed, status)
	assert.Equal(t, "Proyecto de contrato 'X' no encontrado", message)
	assert.Equal(t, 0, store.PendingCount())

	_, ok := store.ArtifactPath(taskID)
	assert.False(t, ok)
}

func TestStoreFailDefaultMessage(t *testing.T) {
	store := newTestStore(t, 1, time.Hour)

	taskID, err := store.Submit()
	require.NoError(t, err)
	require.True(t, store.Fail(taskID, ""))

	status, message := store.Status(taskID)
	assert.Equal(t, model.ReportStatusFailed, status)
	assert.Equal(t, "Error al generar el reporte", message)
}

func TestStoreAdmissionCeiling(t *testing.T) {
	store := newTestStore(t, 1, time.Hour)

	first, err := store.Submit()
	require.NoError(t, err)

	_, err = store.Submit()
	require.Error(t, err)
	require.True(t, pkgerrors.IsAdmissionDenied(err))
	assert.Equal(t, "Ya hay 1 reporte(s) generándose. Por favor intente en unos minutos.", err.Error())

	// Terminal transition of the first task frees the slot.
	require.True(t, store.Fail(first, "boom"))

	_, err = store.Submit()
	assert.NoError(t, err)
}

func TestStoreAdmissionCeilingAboveOne(t *testing.T) {
	store := newTestStore(t, 3, time.Hour)

	for i := 0; i < 3; i++ {
		_, err := store.Submit()
		require.NoError(t, err)
	}

	_, err := store.Submit()
	require.True(t, pkgerrors.IsAdmissionDenied(err))

	var denied pkgerrors.AdmissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, 3, denied.Pending)
	assert.Equal(t, 3, denied.Ceiling)
}

func TestStoreSweepRemovesExpired(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, 1, time.Hour)
	require.NoError(t, err)

	taskID, err := store.Submit()
	require.NoError(t, err)
	require.True(t, store.Complete(taskID, ".kmz", []byte("zip")))

	// Age the artifact past the expiration window.
	old := time.Now().Add(-2 * time.Hour)
	path, ok := store.ArtifactPath(taskID)
	require.True(t, ok)
	require.NoError(t, os.Chtimes(path, old, old))

	assert.Equal(t, 1, store.Sweep())

	status, message := store.Status(taskID)
	assert.Empty(t, string(status))
	assert.Equal(t, "Reporte no encontrado o expirado", message)

	// Second sweep finds nothing.
	assert.Equal(t, 0, store.Sweep())
}

func TestStoreSweepFreesAdmissionSlot(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, 1, time.Hour)
	require.NoError(t, err)

	taskID, err := store.Submit()
	require.NoError(t, err)

	// A crashed worker leaves a stale pending marker behind; aging it past
	// the window lets the next submission reclaim the slot.
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, taskID+".pending"), old, old))

	next, err := store.Submit()
	require.NoError(t, err)
	assert.NotEqual(t, taskID, next)
}

func TestStoreStatusRejectsWildcardTaskID(t *testing.T) {
	store := newTestStore(t, 1, time.Hour)

	taskID, err := store.Submit()
	require.NoError(t, err)
	require.True(t, store.Complete(taskID, ".xlsx", []byte("data")))

	for _, id := range []string{"*", "?", "[a-z]*", taskID + "*"} {
		status, message := store.Status(id)
		assert.Empty(t, string(status))
		assert.Equal(t, "Reporte no encontrado o expirado", message)

		_, ok := store.ArtifactPath(id)
		assert.False(t, ok)
	}
}

func TestStoreStatusIsPermanentAfterCompletion(t *testing.T) {
	store := newTestStore(t, 1, time.Hour)

	taskID, err := store.Submit()
	require.NoError(t, err)
	require.True(t, store.Complete(taskID, ".xlsx", []byte("data")))

	for i := 0; i < 3; i++ {
		status, _ := store.Status(taskID)
		assert.Equal(t, model.ReportStatusCompleted, status)
	}
}
