package model

import "time"

type ReportStatus string

const (
	ReportStatusPending   ReportStatus = "pending"
	ReportStatusCompleted ReportStatus = "completed"
	ReportStatusFailed    ReportStatus = "failed"
)

type ReportKind string

const (
	ReportKindAssets     ReportKind = "assets"
	ReportKindInstallers ReportKind = "installers"
	ReportKindKMZ        ReportKind = "kmz"
)

// ReportRequest is the fully-validated filter window handed to the
// background orchestrator. Dates are UTC; the range ceiling is enforced by
// the HTTP layer before admission.
type ReportRequest struct {
	Kind          ReportKind
	ContractName  string
	FechaDesde    time.Time
	FechaHasta    time.Time
	IncludePhotos bool
	ElementType   string
	AssetStatus   AssetStatus
}
