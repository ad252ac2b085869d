package model

import "time"

type AssetStatus string

const (
	AssetStatusNuevo     AssetStatus = "nuevo"
	AssetStatusExistente AssetStatus = "existente"
	AssetStatusRetirado  AssetStatus = "retirado"
)

type RoadDirection string

const (
	RoadAscendente    RoadDirection = "ascendente"
	RoadDescendente   RoadDirection = "descendente"
	RoadBidireccional RoadDirection = "bidireccional"
)

// Asset is a row of the primary inventory table. IDInterno is the
// client-supplied natural key, unique across the table and distinct from the
// surrogate ID.
type Asset struct {
	ID                int64         `json:"id"`
	IDInterno         int64         `json:"id_interno"`
	TagBIM            string        `json:"tag_bim"`
	FechaInstalacion  time.Time     `json:"fecha_instalacion"`
	ContractProjectID int64         `json:"contract_project_id"`
	ElementTypeID     int64         `json:"element_type_id"`
	InstallerID       int64         `json:"installer_id"`
	MacroLocationID   int64         `json:"macro_location_id"`
	UbicacionVia      RoadDirection `json:"ubicacion_via"`
	Georeferenciacion string        `json:"georeferenciacion"`
	Descripcion       string        `json:"descripcion"`
	NombreFotoCodigo  string        `json:"nombre_foto_codigo_barra"`
	Estado            AssetStatus   `json:"estado"`
	Version           int           `json:"version"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`

	// Resolved lookups, populated only by queries that join them.
	ContractProjectNombre string `json:"contract_project_nombre,omitempty"`
	ElementTypeNombre     string `json:"element_type_nombre,omitempty"`
	InstallerNombre       string `json:"installer_nombre,omitempty"`
	MacroLocationNombre   string `json:"macro_location_nombre,omitempty"`
}

// CandidateAsset is one submitted row of a bulk ingestion batch.
type CandidateAsset struct {
	IDInterno         int64         `json:"id_interno" binding:"required"`
	TagBIM            string        `json:"tag_bim"`
	FechaInstalacion  time.Time     `json:"fecha_instalacion" binding:"required"`
	ContractProjectID int64         `json:"contract_project_id" binding:"required"`
	ElementTypeID     int64         `json:"element_type_id" binding:"required"`
	InstallerID       int64         `json:"installer_id" binding:"required"`
	MacroLocationID   int64         `json:"macro_location_id"`
	UbicacionVia      RoadDirection `json:"ubicacion_via"`
	Georeferenciacion string        `json:"georeferenciacion"`
	Descripcion       string        `json:"descripcion"`
	Estado            AssetStatus   `json:"estado"`
}

type ContractProject struct {
	ID     int64  `json:"id"`
	Nombre string `json:"nombre"`
}

type ElementType struct {
	ID     int64  `json:"id"`
	Nombre string `json:"nombre"`
}

// OwnerKind discriminates which table a resolved natural key belongs to.
type OwnerKind int

const (
	OwnerAsset OwnerKind = iota
	OwnerConflictive
)

func (k OwnerKind) String() string {
	if k == OwnerConflictive {
		return "conflictive_asset"
	}
	return "asset"
}

// ResolvedAsset is the subset of columns the photo pipeline needs, plus the
// owning-table discriminant.
type ResolvedAsset struct {
	IDInterno        int64
	FechaInstalacion time.Time
	Owner            OwnerKind
}
