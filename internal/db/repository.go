package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dotbassa/highway-inventory-backend/internal/model"
	pkgerrors "github.com/dotbassa/highway-inventory-backend/pkg/errors"
)

type PhotoNameUpdate struct {
	IDInterno int64
	PhotoName string
}

type Repository interface {
	GetContractProjectByName(ctx context.Context, nombre string) (*model.ContractProject, error)
	GetElementTypeByName(ctx context.Context, nombre string) (*model.ElementType, error)
	GetAssetsByDateRange(ctx context.Context, contractProjectID int64, desde, hasta time.Time, elementTypeID int64, estado model.AssetStatus) ([]model.Asset, error)

	InsertAssetsIgnoreConflicts(ctx context.Context, batch []model.CandidateAsset) ([]int64, error)
	UpsertConflictiveAssets(ctx context.Context, rows []model.CandidateAsset) error

	GetAssetsByIDsInterno(ctx context.Context, ids []int64) ([]model.ResolvedAsset, error)
	GetConflictiveAssetsByIDsInterno(ctx context.Context, ids []int64) ([]model.ResolvedAsset, error)
	UpdatePhotoNames(ctx context.Context, owner model.OwnerKind, updates []PhotoNameUpdate) ([]int64, error)

	GetAssetsForMobileSync(ctx context.Context, req model.MobileSyncRequest) ([]model.Asset, int, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) GetContractProjectByName(ctx context.Context, nombre string) (*model.ContractProject, error) {
	query := `SELECT id, nombre FROM contract_projects WHERE nombre = $1`

	var cp model.ContractProject
	err := r.pool.QueryRow(ctx, query, nombre).Scan(&cp.ID, &cp.Nombre)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.ErrContractNotFound
	}
	if err != nil {
		return nil, err
	}

	return &cp, nil
}

func (r *repository) GetElementTypeByName(ctx context.Context, nombre string) (*model.ElementType, error) {
	query := `SELECT id, nombre FROM element_types WHERE nombre = $1`

	var et model.ElementType
	err := r.pool.QueryRow(ctx, query, nombre).Scan(&et.ID, &et.Nombre)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.ErrElementTypeNotFound
	}
	if err != nil {
		return nil, err
	}

	return &et, nil
}

func (r *repository) GetAssetsByDateRange(ctx context.Context, contractProjectID int64, desde, hasta time.Time, elementTypeID int64, estado model.AssetStatus) ([]model.Asset, error) {
	query := `SELECT a.id, a.id_interno, COALESCE(a.tag_bim, ''), a.fecha_instalacion,
			a.contract_project_id, a.element_type_id, a.installer_id, COALESCE(a.macro_location_id, 0),
			a.ubicacion_via, COALESCE(a.georeferenciacion, ''), COALESCE(a.descripcion, ''),
			COALESCE(a.nombre_foto_codigo_barra, ''), a.estado, a.version, a.created_at, a.updated_at,
			COALESCE(cp.nombre, ''), COALESCE(et.nombre, ''), COALESCE(i.nombre, ''), COALESCE(ml.nombre, '')
		FROM assets a
		LEFT JOIN contract_projects cp ON cp.id = a.contract_project_id
		LEFT JOIN element_types et ON et.id = a.element_type_id
		LEFT JOIN installers i ON i.id = a.installer_id
		LEFT JOIN macro_locations ml ON ml.id = a.macro_location_id
		WHERE a.contract_project_id = $1 AND a.created_at >= $2 AND a.created_at <= $3`

	args := []any{contractProjectID, desde, hasta}
	if elementTypeID != 0 {
		args = append(args, elementTypeID)
		query += fmt.Sprintf(" AND a.element_type_id = $%d", len(args))
	}
	if estado != "" {
		args = append(args, estado)
		query += fmt.Sprintf(" AND a.estado = $%d", len(args))
	}
	query += " ORDER BY a.created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []model.Asset
	for rows.Next() {
		var a model.Asset
		err := rows.Scan(&a.ID, &a.IDInterno, &a.TagBIM, &a.FechaInstalacion,
			&a.ContractProjectID, &a.ElementTypeID, &a.InstallerID, &a.MacroLocationID,
			&a.UbicacionVia, &a.Georeferenciacion, &a.Descripcion,
			&a.NombreFotoCodigo, &a.Estado, &a.Version, &a.CreatedAt, &a.UpdatedAt,
			&a.ContractProjectNombre, &a.ElementTypeNombre, &a.InstallerNombre, &a.MacroLocationNombre)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}

	return assets, rows.Err()
}

const assetInsertColumns = `id_interno, tag_bim, fecha_instalacion, contract_project_id,
	element_type_id, installer_id, macro_location_id, ubicacion_via, georeferenciacion,
	descripcion, estado, version, created_at, updated_at`

func candidateArgs(c model.CandidateAsset, now time.Time, withVersion bool) []any {
	estado := c.Estado
	if estado == "" {
		estado = model.AssetStatusNuevo
	}
	args := []any{
		c.IDInterno, nullableText(c.TagBIM), c.FechaInstalacion, c.ContractProjectID,
		c.ElementTypeID, c.InstallerID, nullableID(c.MacroLocationID), c.UbicacionVia,
		nullableText(c.Georeferenciacion), nullableText(c.Descripcion), estado,
	}
	if withVersion {
		args = append(args, 1)
	}
	return append(args, now, now)
}

// InsertAssetsIgnoreConflicts inserts one batch into the primary table,
// silently skipping natural-key collisions and returning exactly the
// id_internos that were inserted.
func (r *repository) InsertAssetsIgnoreConflicts(ctx context.Context, batch []model.CandidateAsset) ([]int64, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	var sb strings.Builder
	args := make([]any, 0, len(batch)*14)

	sb.WriteString("INSERT INTO assets (" + assetInsertColumns + ") VALUES ")
	for i, c := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(valuesPlaceholders(len(args), 14))
		args = append(args, candidateArgs(c, now, true)...)
	}
	sb.WriteString(" ON CONFLICT (id_interno) DO NOTHING RETURNING id_interno")

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inserted []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		inserted = append(inserted, id)
	}

	return inserted, rows.Err()
}

// UpsertConflictiveAssets writes the quarantine table, overwriting an
// existing record with the same natural key.
func (r *repository) UpsertConflictiveAssets(ctx context.Context, rowsIn []model.CandidateAsset) error {
	if len(rowsIn) == 0 {
		return nil
	}

	now := time.Now().UTC()
	var sb strings.Builder
	args := make([]any, 0, len(rowsIn)*13)

	sb.WriteString(`INSERT INTO conflictive_assets (id_interno, tag_bim, fecha_instalacion,
		contract_project_id, element_type_id, installer_id, macro_location_id, ubicacion_via,
		georeferenciacion, descripcion, estado, created_at, updated_at) VALUES `)
	for i, c := range rowsIn {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(valuesPlaceholders(len(args), 13))
		args = append(args, candidateArgs(c, now, false)...)
	}
	sb.WriteString(` ON CONFLICT (id_interno) DO UPDATE SET
		tag_bim = EXCLUDED.tag_bim,
		fecha_instalacion = EXCLUDED.fecha_instalacion,
		contract_project_id = EXCLUDED.contract_project_id,
		element_type_id = EXCLUDED.element_type_id,
		installer_id = EXCLUDED.installer_id,
		macro_location_id = EXCLUDED.macro_location_id,
		ubicacion_via = EXCLUDED.ubicacion_via,
		georeferenciacion = EXCLUDED.georeferenciacion,
		descripcion = EXCLUDED.descripcion,
		estado = EXCLUDED.estado,
		updated_at = EXCLUDED.updated_at`)

	_, err := r.pool.Exec(ctx, sb.String(), args...)
	return err
}

func (r *repository) GetAssetsByIDsInterno(ctx context.Context, ids []int64) ([]model.ResolvedAsset, error) {
	return r.resolveByIDsInterno(ctx, "assets", model.OwnerAsset, ids)
}

func (r *repository) GetConflictiveAssetsByIDsInterno(ctx context.Context, ids []int64) ([]model.ResolvedAsset, error) {
	return r.resolveByIDsInterno(ctx, "conflictive_assets", model.OwnerConflictive, ids)
}

func (r *repository) resolveByIDsInterno(ctx context.Context, table string, owner model.OwnerKind, ids []int64) ([]model.ResolvedAsset, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT id_interno, fecha_instalacion FROM %s WHERE id_interno = ANY($1)`, table)

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resolved []model.ResolvedAsset
	for rows.Next() {
		ra := model.ResolvedAsset{Owner: owner}
		if err := rows.Scan(&ra.IDInterno, &ra.FechaInstalacion); err != nil {
			return nil, err
		}
		resolved = append(resolved, ra)
	}

	return resolved, rows.Err()
}

// UpdatePhotoNames sets the photo-name column for each update, one statement
// per row so success is confirmed per key, all inside a single transaction
// scoped to the owning table. An unexpected error rolls back every update in
// the set; a statement matching zero rows is a silent per-item miss.
func (r *repository) UpdatePhotoNames(ctx context.Context, owner model.OwnerKind, updates []PhotoNameUpdate) ([]int64, error) {
	if len(updates) == 0 {
		return nil, nil
	}

	table := "assets"
	if owner == model.OwnerConflictive {
		table = "conflictive_assets"
	}
	query := fmt.Sprintf(`UPDATE %s SET nombre_foto_codigo_barra = $1, updated_at = NOW()
		WHERE id_interno = $2 RETURNING id_interno`, table)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var updated []int64
	for _, u := range updates {
		var id int64
		err := tx.QueryRow(ctx, query, u.PhotoName, u.IDInterno).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		updated = append(updated, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return updated, nil
}

func (r *repository) GetAssetsForMobileSync(ctx context.Context, req model.MobileSyncRequest) ([]model.Asset, int, error) {
	hasta := req.FechaInstalacionHasta
	if hasta.IsZero() {
		hasta = req.FechaInstalacionDesde
	}

	where := `WHERE fecha_instalacion >= $1 AND fecha_instalacion <= $2`
	args := []any{req.FechaInstalacionDesde, hasta}
	if len(req.ExcludeIDsInterno) > 0 {
		args = append(args, req.ExcludeIDsInterno)
		where += fmt.Sprintf(" AND NOT (id_interno = ANY($%d))", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM assets "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, nil
	}

	limit := req.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	args = append(args, limit, req.Offset)
	query := fmt.Sprintf(`SELECT id, id_interno, COALESCE(tag_bim, ''), fecha_instalacion,
			contract_project_id, element_type_id, installer_id, COALESCE(macro_location_id, 0),
			ubicacion_via, COALESCE(georeferenciacion, ''), COALESCE(descripcion, ''),
			COALESCE(nombre_foto_codigo_barra, ''), estado, version, created_at, updated_at
		FROM assets %s ORDER BY fecha_instalacion ASC, id ASC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var assets []model.Asset
	for rows.Next() {
		var a model.Asset
		err := rows.Scan(&a.ID, &a.IDInterno, &a.TagBIM, &a.FechaInstalacion,
			&a.ContractProjectID, &a.ElementTypeID, &a.InstallerID, &a.MacroLocationID,
			&a.UbicacionVia, &a.Georeferenciacion, &a.Descripcion,
			&a.NombreFotoCodigo, &a.Estado, &a.Version, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, 0, err
		}
		assets = append(assets, a)
	}

	return assets, total, rows.Err()
}

func valuesPlaceholders(offset, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", offset+i+1)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func nullableText(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func nullableID(value int64) *int64 {
	if value == 0 {
		return nil
	}
	return &value
}
