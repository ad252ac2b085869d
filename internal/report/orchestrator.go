package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dotbassa/highway-inventory-backend/internal/db"
	"github.com/dotbassa/highway-inventory-backend/internal/logger"
	"github.com/dotbassa/highway-inventory-backend/internal/model"
	"github.com/dotbassa/highway-inventory-backend/internal/storage"
	"github.com/dotbassa/highway-inventory-backend/internal/worker"
	pkgerrors "github.com/dotbassa/highway-inventory-backend/pkg/errors"
)

// Orchestrator coordinates admission, data fetch, generation and task-state
// transitions for background reports. The HTTP request returns as soon as
// Launch admits the task; everything after runs detached on the worker pool
// and records its terminal outcome in the store. Nothing is listening, so no
// error ever propagates out of the background unit.
type Orchestrator struct {
	store  *Store
	repo   db.Repository
	pool   *worker.Pool
	photos storage.Storage
	log    zerolog.Logger
}

func NewOrchestrator(store *Store, repo db.Repository, pool *worker.Pool, photos storage.Storage) *Orchestrator {
	return &Orchestrator{
		store:  store,
		repo:   repo,
		pool:   pool,
		photos: photos,
		log:    logger.For("report_orchestrator"),
	}
}

// Launch admits a new report task and spawns the detached build. It returns
// the task id on admission; AdmissionDeniedError when the ceiling is
// reached. A rejected pool submission still yields a task id, with the task
// already in its failed state.
func (o *Orchestrator) Launch(req model.ReportRequest) (string, error) {
	taskID, err := o.store.Submit()
	if err != nil {
		return "", err
	}

	accepted := o.pool.Submit(func(ctx context.Context) {
		o.run(ctx, taskID, req)
	})
	if !accepted {
		o.store.Fail(taskID, "Error interno al generar el reporte: sin capacidad de procesamiento")
	}

	return taskID, nil
}

func (o *Orchestrator) run(ctx context.Context, taskID string, req model.ReportRequest) {
	log := o.log.With().Str("task_id", taskID).Str("kind", string(req.Kind)).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Panic during report generation")
			o.store.Fail(taskID, fmt.Sprintf("Error interno al generar el reporte: %v", r))
		}
	}()

	log.Info().
		Str("contract_name", req.ContractName).
		Time("fecha_desde", req.FechaDesde).
		Time("fecha_hasta", req.FechaHasta).
		Bool("include_photos", req.IncludePhotos).
		Msg("Starting background report generation")

	o.store.Sweep()

	contract, err := o.repo.GetContractProjectByName(ctx, req.ContractName)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrContractNotFound) {
			log.Error().Str("contract_name", req.ContractName).Msg("Contract project not found")
			o.store.Fail(taskID, fmt.Sprintf("Proyecto de contrato '%s' no encontrado", req.ContractName))
			return
		}
		o.failInternal(taskID, log, err)
		return
	}

	var elementTypeID int64
	if req.ElementType != "" {
		elementType, err := o.repo.GetElementTypeByName(ctx, req.ElementType)
		if err != nil {
			if errors.Is(err, pkgerrors.ErrElementTypeNotFound) {
				log.Error().Str("element_type", req.ElementType).Msg("Element type not found")
				o.store.Fail(taskID, fmt.Sprintf("Tipo de elemento '%s' no encontrado", req.ElementType))
				return
			}
			o.failInternal(taskID, log, err)
			return
		}
		elementTypeID = elementType.ID
	}

	assets, err := o.repo.GetAssetsByDateRange(ctx, contract.ID, req.FechaDesde, req.FechaHasta, elementTypeID, req.AssetStatus)
	if err != nil {
		o.failInternal(taskID, log, err)
		return
	}

	log.Info().Int("asset_count", len(assets)).Msg("Assets fetched, generating report artifact")

	artifact, ext, err := o.generate(ctx, req, assets)
	if err != nil {
		o.failInternal(taskID, log, err)
		return
	}

	if !o.store.Complete(taskID, ext, artifact) {
		log.Error().Msg("Failed to save report file")
		o.store.Fail(taskID, "Error al guardar el archivo del reporte")
		return
	}

	log.Info().
		Int("file_size_bytes", len(artifact)).
		Int("asset_count", len(assets)).
		Msg("Report generated successfully")
}

func (o *Orchestrator) generate(ctx context.Context, req model.ReportRequest, assets []model.Asset) ([]byte, string, error) {
	switch req.Kind {
	case model.ReportKindInstallers:
		artifact, err := BuildInstallerWorkbook(assets)
		return artifact, ".xlsx", err
	case model.ReportKindKMZ:
		artifact, _, err := BuildKMZ(assets)
		return artifact, ".kmz", err
	default:
		artifact, err := BuildAssetWorkbook(ctx, assets, req.IncludePhotos, o.photos)
		return artifact, ".xlsx", err
	}
}

func (o *Orchestrator) failInternal(taskID string, log zerolog.Logger, err error) {
	log.Error().Err(err).Msg("Exception during report generation")
	o.store.Fail(taskID, fmt.Sprintf("Error interno al generar el reporte: %s", err))
}
