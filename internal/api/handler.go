package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dotbassa/highway-inventory-backend/internal/config"
	"github.com/dotbassa/highway-inventory-backend/internal/db"
	"github.com/dotbassa/highway-inventory-backend/internal/ingest"
	"github.com/dotbassa/highway-inventory-backend/internal/logger"
	"github.com/dotbassa/highway-inventory-backend/internal/model"
	"github.com/dotbassa/highway-inventory-backend/internal/photo"
	"github.com/dotbassa/highway-inventory-backend/internal/report"
	pkgerrors "github.com/dotbassa/highway-inventory-backend/pkg/errors"
)

type Handler struct {
	repo         db.Repository
	store        *report.Store
	orchestrator *report.Orchestrator
	ingestEngine *ingest.Engine
	photoEngine  *photo.Engine
	cfg          *config.Config
	log          zerolog.Logger
}

func NewHandler(
	repo db.Repository,
	store *report.Store,
	orchestrator *report.Orchestrator,
	ingestEngine *ingest.Engine,
	photoEngine *photo.Engine,
	cfg *config.Config,
) *Handler {
	return &Handler{
		repo:         repo,
		store:        store,
		orchestrator: orchestrator,
		ingestEngine: ingestEngine,
		photoEngine:  photoEngine,
		cfg:          cfg,
		log:          logger.Get(),
	}
}

type reportRequestBody struct {
	ContractName  string    `json:"contract_name" binding:"required"`
	FechaDesde    time.Time `json:"fecha_desde" binding:"required"`
	FechaHasta    time.Time `json:"fecha_hasta" binding:"required"`
	IncludePhotos bool      `json:"include_photos"`
	ElementType   string    `json:"element_type"`
	AssetStatus   string    `json:"asset_status"`
}

func (h *Handler) InitiateAssetReport(c *gin.Context) {
	h.initiateReport(c, model.ReportKindAssets)
}

func (h *Handler) InitiateInstallerReport(c *gin.Context) {
	h.initiateReport(c, model.ReportKindInstallers)
}

func (h *Handler) InitiateKMZReport(c *gin.Context) {
	h.initiateReport(c, model.ReportKindKMZ)
}

func (h *Handler) initiateReport(c *gin.Context, kind model.ReportKind) {
	var body reportRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if body.FechaHasta.Before(body.FechaDesde) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fecha_hasta must not be before fecha_desde"})
		return
	}

	maxRange := time.Duration(h.cfg.Reports.MaxRangeDays) * 24 * time.Hour
	if body.FechaHasta.Sub(body.FechaDesde) > maxRange {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("El rango de fechas no puede exceder %d días", h.cfg.Reports.MaxRangeDays),
		})
		return
	}

	req := model.ReportRequest{
		Kind:          kind,
		ContractName:  body.ContractName,
		FechaDesde:    body.FechaDesde,
		FechaHasta:    body.FechaHasta,
		IncludePhotos: body.IncludePhotos,
		ElementType:   body.ElementType,
		AssetStatus:   model.AssetStatus(body.AssetStatus),
	}

	taskID, err := h.orchestrator.Launch(req)
	if err != nil {
		if pkgerrors.IsAdmissionDenied(err) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
			return
		}
		h.log.Error().Err(err).Str("report_kind", string(kind)).Msg("Failed to launch report task")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	h.log.Info().
		Str("task_id", taskID).
		Str("report_kind", string(kind)).
		Str("contract", body.ContractName).
		Msg("Report task admitted")

	c.JSON(http.StatusAccepted, model.ReportInitResponse{
		TaskID:  taskID,
		Status:  string(model.ReportStatusPending),
		Message: "Generando reporte, por favor espere...",
	})
}

func (h *Handler) GetReportStatus(c *gin.Context) {
	taskID := c.Param("task_id")

	status, message := h.store.Status(taskID)
	if status == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, model.ReportStatusResponse{
		TaskID:  taskID,
		Status:  string(status),
		Message: message,
	})
}

func (h *Handler) DownloadReport(c *gin.Context) {
	taskID := c.Param("task_id")

	status, message := h.store.Status(taskID)
	switch status {
	case model.ReportStatusCompleted:
	case "":
		c.JSON(http.StatusNotFound, gin.H{"error": message})
		return
	default:
		c.JSON(http.StatusConflict, gin.H{"error": message, "status": string(status)})
		return
	}

	path, ok := h.store.ArtifactPath(taskID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Reporte no encontrado o expirado"})
		return
	}

	name, contentType := artifactDisposition(taskID, path)
	c.Header("Content-Type", contentType)
	c.FileAttachment(path, name)
}

func artifactDisposition(taskID, path string) (string, string) {
	if len(path) > 4 && path[len(path)-4:] == ".kmz" {
		return "reporte_" + taskID + ".kmz", "application/vnd.google-earth.kmz"
	}
	return "reporte_" + taskID + ".xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (h *Handler) BulkCreateAssets(c *gin.Context) {
	var req model.BulkAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if len(req.Assets) == 0 {
		c.JSON(http.StatusOK, model.BulkAssetResponse{FailedIDsInterno: []int64{}})
		return
	}

	summary, err := h.ingestEngine.Ingest(c.Request.Context(), req.Assets, h.cfg.Ingest.BatchSize)
	if err != nil {
		h.log.Error().Err(err).Int("total", len(req.Assets)).Msg("Bulk asset ingestion failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *Handler) BulkUploadPhotos(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form"})
		return
	}

	ids, err := parseIDsInterno(form.Value["ids_internos"])
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	photos, err := readPhotoFiles(form.File["photos"])
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded files"})
		return
	}

	resp, err := h.photoEngine.Reconcile(c.Request.Context(), ids, photos)
	if err != nil {
		if pkgerrors.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Error().Err(err).Int("photo_count", len(photos)).Msg("Bulk photo upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) UploadPhoto(c *gin.Context) {
	idInterno, err := strconv.ParseInt(c.Param("id_interno"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id_interno"})
		return
	}

	fileHeader, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}

	photos, err := readPhotoFiles([]*multipart.FileHeader{fileHeader})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return
	}

	result, err := h.photoEngine.UploadSingle(c.Request.Context(), idInterno, photos[0])
	if err != nil {
		switch {
		case pkgerrors.IsValidation(err):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case pkgerrors.IsNotFound(err):
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Activo %d no encontrado", idInterno)})
		default:
			h.log.Error().Err(err).Int64("id_interno", idInterno).Msg("Photo upload failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) MobileSync(c *gin.Context) {
	var req model.MobileSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	assets, total, err := h.repo.GetAssetsForMobileSync(c.Request.Context(), req)
	if err != nil {
		h.log.Error().Err(err).Msg("Mobile sync query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, model.MobileSyncResponse{Assets: assets, Total: total})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.cfg.App.Name,
		"version": h.cfg.App.Version,
	})
}

func parseIDsInterno(values []string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id_interno %q", v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func readPhotoFiles(headers []*multipart.FileHeader) ([]photo.Photo, error) {
	photos := make([]photo.Photo, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		photos = append(photos, photo.Photo{Filename: fh.Filename, Data: data})
	}
	return photos, nil
}
