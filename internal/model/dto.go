package model

import "time"

type BulkAssetRequest struct {
	Assets []CandidateAsset `json:"assets" binding:"required"`
}

type BulkAssetResponse struct {
	Created          int     `json:"created"`
	Conflictive      int     `json:"conflictive"`
	Failed           int     `json:"failed"`
	Total            int     `json:"total"`
	FailedIDsInterno []int64 `json:"failed_ids_interno"`
}

type PhotoUploadResult struct {
	Success      bool   `json:"success"`
	IDInterno    int64  `json:"id_interno"`
	PhotoName    string `json:"photo_name,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type BulkPhotoUploadResponse struct {
	TotalProcessed  int                 `json:"total_processed"`
	TotalSuccessful int                 `json:"total_successful"`
	TotalFailed     int                 `json:"total_failed"`
	Results         []PhotoUploadResult `json:"results"`
}

type ReportInitResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ReportStatusResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type MobileSyncRequest struct {
	FechaInstalacionDesde time.Time `json:"fecha_instalacion_desde" binding:"required"`
	FechaInstalacionHasta time.Time `json:"fecha_instalacion_hasta"`
	ExcludeIDsInterno     []int64   `json:"exclude_ids_interno"`
	Limit                 int       `json:"limit"`
	Offset                int       `json:"offset"`
}

type MobileSyncResponse struct {
	Assets []Asset `json:"assets"`
	Total  int     `json:"total"`
}
