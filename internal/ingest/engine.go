package ingest

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/dotbassa/highway-inventory-backend/internal/db"
	"github.com/dotbassa/highway-inventory-backend/internal/logger"
	"github.com/dotbassa/highway-inventory-backend/internal/model"
	pkgerrors "github.com/dotbassa/highway-inventory-backend/pkg/errors"
)

const DefaultBatchSize = 200

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeConflictive
	outcomeFailed
)

// Engine ingests batches of candidate assets. Each row ends in exactly one
// of three states: created in the primary table, quarantined in the
// conflictive table after a natural-key collision, or failed. A single
// classification map per natural key, updated once and only overwritten by
// the conflictive-upsert reclassification, keeps
// created+conflictive+failed == total.
type Engine struct {
	repo db.Repository
	log  zerolog.Logger
}

func NewEngine(repo db.Repository) *Engine {
	return &Engine{
		repo: repo,
		log:  logger.For("bulk_ingest"),
	}
}

// Ingest partitions rows into fixed-size batches, preserving input order,
// and issues each batch's conditional insert strictly after the previous one
// completes. A non-uniqueness integrity or data error fails the whole batch;
// no finer-grained retry is attempted since partial batch state cannot be
// disambiguated from the bulk statement. Connectivity and other unexpected
// database errors abort the call.
func (e *Engine) Ingest(ctx context.Context, rows []model.CandidateAsset, batchSize int) (model.BulkAssetResponse, error) {
	total := len(rows)
	if total == 0 {
		e.log.Info().Msg("Bulk asset ingestion called with empty asset list")
		return model.BulkAssetResponse{FailedIDsInterno: []int64{}}, nil
	}

	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	e.log.Info().
		Int("total_assets", total).
		Int("batch_size", batchSize).
		Int("num_batches", (total+batchSize-1)/batchSize).
		Msg("Starting bulk asset ingestion")

	classification := make(map[int64]outcome, total)
	var conflictiveRows []model.CandidateAsset
	batchNumber := 0

	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}
		batch := rows[start:end]
		batchNumber++

		inserted, err := e.repo.InsertAssetsIgnoreConflicts(ctx, batch)
		if err != nil {
			if !pkgerrors.IsBatchFailure(err) {
				return model.BulkAssetResponse{}, err
			}

			// The conditional insert only absorbs natural-key collisions;
			// anything else poisons the whole batch.
			failedIDs := make([]int64, 0, len(batch))
			for _, c := range batch {
				if _, seen := classification[c.IDInterno]; !seen {
					classification[c.IDInterno] = outcomeFailed
				}
				failedIDs = append(failedIDs, c.IDInterno)
			}
			e.log.Error().Err(err).
				Int("batch_number", batchNumber).
				Int("batch_size", len(batch)).
				Ints64("failed_ids_interno", failedIDs).
				Msg("Integrity or data error during asset insert, marking batch as failed")
			continue
		}

		insertedSet := make(map[int64]struct{}, len(inserted))
		for _, id := range inserted {
			insertedSet[id] = struct{}{}
		}

		conflictiveInBatch := 0
		for _, c := range batch {
			if _, seen := classification[c.IDInterno]; seen {
				continue
			}
			if _, ok := insertedSet[c.IDInterno]; ok {
				classification[c.IDInterno] = outcomeCreated
			} else {
				classification[c.IDInterno] = outcomeConflictive
				conflictiveRows = append(conflictiveRows, c)
				conflictiveInBatch++
			}
		}

		if conflictiveInBatch > 0 {
			e.log.Info().
				Int("batch_number", batchNumber).
				Int("inserted_count", len(inserted)).
				Int("conflictive_count", conflictiveInBatch).
				Msg("Detected unique constraint conflicts in batch")
		} else {
			e.log.Debug().
				Int("batch_number", batchNumber).
				Int("inserted_count", len(inserted)).
				Msg("All assets in batch inserted")
		}
	}

	if len(conflictiveRows) > 0 {
		if err := e.repo.UpsertConflictiveAssets(ctx, conflictiveRows); err != nil {
			if !pkgerrors.IsBatchFailure(err) {
				return model.BulkAssetResponse{}, err
			}

			// Rows already reported out of the primary path now exist in
			// neither table, which means possible data loss. The final
			// classification is authoritative.
			for _, c := range conflictiveRows {
				classification[c.IDInterno] = outcomeFailed
			}
			e.log.Error().Err(err).
				Int("conflictive_count", len(conflictiveRows)).
				Msg("CRITICAL: conflictive asset upsert failed, marking all conflictive assets as failed")
		}
	}

	resp := model.BulkAssetResponse{
		Total:            total,
		FailedIDsInterno: []int64{},
	}
	for id, oc := range classification {
		switch oc {
		case outcomeCreated:
			resp.Created++
		case outcomeConflictive:
			resp.Conflictive++
		case outcomeFailed:
			resp.Failed++
			resp.FailedIDsInterno = append(resp.FailedIDsInterno, id)
		}
	}
	sort.Slice(resp.FailedIDsInterno, func(i, j int) bool {
		return resp.FailedIDsInterno[i] < resp.FailedIDsInterno[j]
	})

	e.log.Info().
		Int("total_assets", resp.Total).
		Int("assets_created", resp.Created).
		Int("assets_conflictive", resp.Conflictive).
		Int("assets_failed", resp.Failed).
		Msg("Bulk asset ingestion completed")

	return resp, nil
}
