package photo

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dotbassa/highway-inventory-backend/internal/db"
	"github.com/dotbassa/highway-inventory-backend/internal/logger"
	"github.com/dotbassa/highway-inventory-backend/internal/model"
	"github.com/dotbassa/highway-inventory-backend/internal/storage"
	pkgerrors "github.com/dotbassa/highway-inventory-backend/pkg/errors"
)

const (
	reasonNotFound     = "Asset not found in regular or conflictive tables"
	reasonInconsistent = "Photo saved to filesystem but database update failed"
)

// Engine reconciles uploaded photo blobs against the two asset tables. A
// bulk call moves through four strict phases: resolution, blob save,
// per-table database update, and reconciliation of the two outcome flags.
// Phases never interleave; a phase processes its full working set before
// the next begins.
type Engine struct {
	repo              db.Repository
	assetPhotos       storage.Storage
	conflictivePhotos storage.Storage
	limits            Limits
	log               zerolog.Logger
}

func NewEngine(repo db.Repository, assetPhotos, conflictivePhotos storage.Storage, limits Limits) *Engine {
	return &Engine{
		repo:              repo,
		assetPhotos:       assetPhotos,
		conflictivePhotos: conflictivePhotos,
		limits:            limits,
		log:               logger.For("photo_reconcile"),
	}
}

func (e *Engine) storageFor(owner model.OwnerKind) storage.Storage {
	if owner == model.OwnerConflictive {
		return e.conflictivePhotos
	}
	return e.assetPhotos
}

type planItem struct {
	idInterno int64
	photo     Photo
	photoName string
	owner     model.OwnerKind
	fsSaved   bool
	dbUpdated bool
}

// Reconcile pairs ids with photos positionally and processes them through
// the four phases. It returns a per-item result list; aggregate counts are
// derived from that list. It only errors on precondition violations, before
// any side effect.
func (e *Engine) Reconcile(ctx context.Context, ids []int64, photos []Photo) (model.BulkPhotoUploadResponse, error) {
	if err := e.limits.Validate(ids, photos); err != nil {
		return model.BulkPhotoUploadResponse{}, err
	}

	e.log.Info().Int("photo_count", len(photos)).Msg("Validation done, starting bulk photo upload")

	results := make([]model.PhotoUploadResult, 0, len(ids))

	// Phase 1: resolution. Primary table wins; conflictive is the fallback;
	// unresolved ids are terminal here.
	plan, notFoundResults, err := e.resolve(ctx, ids, photos)
	if err != nil {
		return model.BulkPhotoUploadResponse{}, err
	}
	results = append(results, notFoundResults...)

	e.log.Info().Int("plan_size", len(plan)).Msg("Preparation phase completed")

	// Phase 2: blob saves, independent per item.
	saved := 0
	for i := range plan {
		item := &plan[i]
		err := e.storageFor(item.owner).Upload(ctx, item.photoName, bytes.NewReader(item.photo.Data))
		if err != nil {
			e.log.Error().Err(err).
				Str("photo_name", item.photoName).
				Str("owner", item.owner.String()).
				Msg("Error saving photo to storage")
			results = append(results, model.PhotoUploadResult{
				Success:      false,
				IDInterno:    item.idInterno,
				ErrorMessage: fmt.Sprintf("Error saving photo: %s", err),
			})
			continue
		}
		item.fsSaved = true
		saved++
	}

	e.log.Info().Int("saved_count", saved).Msg("Filesystem save phase completed")

	// Phase 3: database updates, one transaction per owning table. An
	// unexpected error rolls that table's whole update set back; the other
	// table is untouched.
	e.updatePhotoNames(ctx, plan, model.OwnerAsset)
	e.updatePhotoNames(ctx, plan, model.OwnerConflictive)

	// Phase 4: reconciliation. Success needs both flags; a saved blob whose
	// row update did not land is an inconsistent state, reported distinctly.
	for _, item := range plan {
		if !item.fsSaved {
			continue
		}
		if item.dbUpdated {
			results = append(results, model.PhotoUploadResult{
				Success:   true,
				IDInterno: item.idInterno,
				PhotoName: item.photoName,
			})
		} else {
			results = append(results, model.PhotoUploadResult{
				Success:      false,
				IDInterno:    item.idInterno,
				ErrorMessage: reasonInconsistent,
			})
		}
	}

	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
	}

	resp := model.BulkPhotoUploadResponse{
		TotalProcessed:  len(ids),
		TotalSuccessful: successful,
		TotalFailed:     len(ids) - successful,
		Results:         results,
	}

	e.log.Info().
		Int("total_processed", resp.TotalProcessed).
		Int("total_successful", resp.TotalSuccessful).
		Int("total_failed", resp.TotalFailed).
		Msg("Bulk photo upload completed")

	return resp, nil
}

func (e *Engine) resolve(ctx context.Context, ids []int64, photos []Photo) ([]planItem, []model.PhotoUploadResult, error) {
	assets, err := e.repo.GetAssetsByIDsInterno(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	conflictive, err := e.repo.GetConflictiveAssetsByIDsInterno(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	resolved := make(map[int64]model.ResolvedAsset, len(assets)+len(conflictive))
	for _, a := range conflictive {
		resolved[a.IDInterno] = a
	}
	for _, a := range assets {
		resolved[a.IDInterno] = a
	}

	var plan []planItem
	var notFound []model.PhotoUploadResult

	for i, id := range ids {
		owner, ok := resolved[id]
		if !ok {
			notFound = append(notFound, model.PhotoUploadResult{
				Success:      false,
				IDInterno:    id,
				ErrorMessage: reasonNotFound,
			})
			continue
		}

		ext, err := e.limits.extension(photos[i])
		if err != nil {
			return nil, nil, err
		}

		plan = append(plan, planItem{
			idInterno: id,
			photo:     photos[i],
			photoName: PhotoName(owner.FechaInstalacion, id, ext),
			owner:     owner.Owner,
		})
	}

	return plan, notFound, nil
}

func (e *Engine) updatePhotoNames(ctx context.Context, plan []planItem, owner model.OwnerKind) {
	var updates []db.PhotoNameUpdate
	var members []*planItem

	for i := range plan {
		item := &plan[i]
		if !item.fsSaved || item.owner != owner {
			continue
		}
		updates = append(updates, db.PhotoNameUpdate{IDInterno: item.idInterno, PhotoName: item.photoName})
		members = append(members, item)
	}
	if len(updates) == 0 {
		return
	}

	updatedIDs, err := e.repo.UpdatePhotoNames(ctx, owner, updates)
	if err != nil {
		e.log.Error().Err(err).
			Str("owner", owner.String()).
			Int("update_count", len(updates)).
			Msg("Critical error in database update phase, rolling back table updates")
		return
	}

	updatedSet := make(map[int64]struct{}, len(updatedIDs))
	for _, id := range updatedIDs {
		updatedSet[id] = struct{}{}
	}
	for _, item := range members {
		if _, ok := updatedSet[item.idInterno]; ok {
			item.dbUpdated = true
		}
	}
}

// UploadSingle resolves one natural key and runs the strict save-then-update
// path: unlike the bulk pipeline, a filesystem error here fails the request
// outright.
func (e *Engine) UploadSingle(ctx context.Context, idInterno int64, p Photo) (model.PhotoUploadResult, error) {
	if err := e.limits.Validate([]int64{idInterno}, []Photo{p}); err != nil {
		return model.PhotoUploadResult{}, err
	}

	plan, notFound, err := e.resolve(ctx, []int64{idInterno}, []Photo{p})
	if err != nil {
		return model.PhotoUploadResult{}, err
	}
	if len(notFound) > 0 {
		return model.PhotoUploadResult{}, pkgerrors.ErrNotFound
	}

	item := plan[0]
	if err := e.storageFor(item.owner).Upload(ctx, item.photoName, bytes.NewReader(p.Data)); err != nil {
		e.log.Error().Err(err).Str("photo_name", item.photoName).Msg("Error saving photo to storage")
		return model.PhotoUploadResult{}, fmt.Errorf("saving photo: %w", err)
	}

	updatedIDs, err := e.repo.UpdatePhotoNames(ctx, item.owner, []db.PhotoNameUpdate{
		{IDInterno: item.idInterno, PhotoName: item.photoName},
	})
	if err != nil {
		return model.PhotoUploadResult{}, err
	}
	if len(updatedIDs) == 0 {
		return model.PhotoUploadResult{}, pkgerrors.ErrNotFound
	}

	return model.PhotoUploadResult{
		Success:   true,
		IDInterno: item.idInterno,
		PhotoName: item.photoName,
	}, nil
}
