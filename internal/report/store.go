package report

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dotbassa/highway-inventory-backend/internal/logger"
	"github.com/dotbassa/highway-inventory-backend/internal/model"
	pkgerrors "github.com/dotbassa/highway-inventory-backend/pkg/errors"
)

const (
	pendingSuffix = ".pending"
	failedSuffix  = ".failed"
)

var artifactExts = []string{".xlsx", ".kmz"}

const (
	msgCompleted = "Reporte listo para descargar"
	msgPending   = "Generando reporte, por favor espere..."
	msgFailed    = "Error al generar el reporte"
	msgNotFound  = "Reporte no encontrado o expirado"
)

// Store tracks background report tasks as marker files in a single
// directory: <task_id>.pending, <task_id>.<artifact ext> or
// <task_id>.failed. A task holds exactly one marker at a time; transitions
// create the new marker before removing the old one, all under the mutex, so
// a reader observes either state but never neither. The same mutex makes the
// admission check atomic with pending-marker creation.
type Store struct {
	dir        string
	ceiling    int
	expiration time.Duration

	mu  sync.Mutex
	log zerolog.Logger
}

func NewStore(dir string, ceiling int, expiration time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return &Store{
		dir:        dir,
		ceiling:    ceiling,
		expiration: expiration,
		log:        logger.For("report_store"),
	}, nil
}

func (s *Store) path(taskID, suffix string) string {
	return filepath.Join(s.dir, taskID+suffix)
}

// Submit sweeps expired records, then admits a new task if the number of
// pending tasks is below the ceiling. On admission it creates the pending
// marker and returns the fresh task id; otherwise it returns
// AdmissionDeniedError with the observed pending count.
func (s *Store) Submit() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	pending := s.pendingCountLocked()
	if pending >= s.ceiling {
		return "", pkgerrors.AdmissionDeniedError{Pending: pending, Ceiling: s.ceiling}
	}

	taskID := uuid.NewString()
	f, err := os.OpenFile(s.path(taskID, pendingSuffix), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		s.log.Error().Err(err).Str("task_id", taskID).Msg("Failed to create pending report marker")
		return "", err
	}
	f.Close()

	s.log.Info().Str("task_id", taskID).Int("pending", pending+1).Msg("Created pending report marker")
	return taskID, nil
}

// Complete replaces the pending marker with the finished artifact. The
// artifact extension carries the report format (".xlsx" or ".kmz"). Returns
// false when persisting fails; the caller must then record a failure.
func (s *Store) Complete(taskID, ext string, artifact []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path(taskID, ext), artifact, 0o644); err != nil {
		s.log.Error().Err(err).Str("task_id", taskID).Msg("Failed to write report artifact")
		return false
	}

	if err := os.Remove(s.path(taskID, pendingSuffix)); err != nil && !os.IsNotExist(err) {
		s.log.Warn().Err(err).Str("task_id", taskID).Msg("Failed to remove pending marker")
	}

	s.log.Info().Str("task_id", taskID).Int("file_size", len(artifact)).Msg("Marked report as completed")
	return true
}

// Fail replaces the pending marker with a failed marker holding the message.
func (s *Store) Fail(taskID, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if message == "" {
		message = msgFailed
	}

	if err := os.WriteFile(s.path(taskID, failedSuffix), []byte(message), 0o644); err != nil {
		s.log.Error().Err(err).Str("task_id", taskID).Msg("Failed to write failed report marker")
		return false
	}

	if err := os.Remove(s.path(taskID, pendingSuffix)); err != nil && !os.IsNotExist(err) {
		s.log.Warn().Err(err).Str("task_id", taskID).Msg("Failed to remove pending marker")
	}

	s.log.Warn().Str("task_id", taskID).Str("error_message", message).Msg("Marked report as failed")
	return true
}

// Status reports the current state of a task. An unknown and an expired task
// look identical: empty status with the not-found message.
func (s *Store) Status(taskID string) (model.ReportStatus, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.artifactPathLocked(taskID); ok && p != "" {
		return model.ReportStatusCompleted, msgCompleted
	}
	if _, err := os.Stat(s.path(taskID, pendingSuffix)); err == nil {
		return model.ReportStatusPending, msgPending
	}
	if data, err := os.ReadFile(s.path(taskID, failedSuffix)); err == nil {
		if msg := string(data); msg != "" {
			return model.ReportStatusFailed, msg
		}
		return model.ReportStatusFailed, msgFailed
	}

	return "", msgNotFound
}

// ArtifactPath returns the location of the completed artifact, or false when
// the task has no completed artifact.
func (s *Store) ArtifactPath(taskID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifactPathLocked(taskID)
}

func (s *Store) artifactPathLocked(taskID string) (string, bool) {
	// Task ids come from the client on status and download requests; stat
	// the known artifact names literally so metacharacters cannot match
	// another task's files.
	for _, ext := range artifactExts {
		p := s.path(taskID, ext)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// Sweep removes every task record older than the expiration window,
// regardless of status, and returns the number of files deleted.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

func (s *Store) sweepLocked() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Error().Err(err).Msg("Error reading report directory during sweep")
		return 0
	}

	cutoff := time.Now().Add(-s.expiration)
	deleted := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
				s.log.Error().Err(err).Str("file", entry.Name()).Msg("Failed to delete expired report file")
				continue
			}
			deleted++
			s.log.Info().Str("file", entry.Name()).Msg("Deleted expired report file")
		}
	}

	if deleted > 0 {
		s.log.Info().Int("deleted_files", deleted).Msg("Report sweep completed")
	}

	return deleted
}

// PendingCount reports how many tasks are currently in the pending state.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingCountLocked()
}

func (s *Store) pendingCountLocked() int {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+pendingSuffix))
	if err != nil {
		return 0
	}
	return len(matches)
}
