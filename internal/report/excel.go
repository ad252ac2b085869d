package report

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dotbassa/highway-inventory-backend/internal/logger"
	"github.com/dotbassa/highway-inventory-backend/internal/model"
	"github.com/dotbassa/highway-inventory-backend/internal/storage"
)

const (
	assetSheetName  = "Assets"
	photoRowHeight  = 115
	excelHeaderFill = "4472C4"
	statsLabelFill  = "D9E1F2"
)

var monthsES = []string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

var (
	santiagoOnce sync.Once
	santiagoLoc  *time.Location
)

// Business dates are rendered in continental Chile time regardless of
// server locale.
func santiago() *time.Location {
	santiagoOnce.Do(func() {
		loc, err := time.LoadLocation("America/Santiago")
		if err != nil {
			loc = time.UTC
		}
		santiagoLoc = loc
	})
	return santiagoLoc
}

func formatSpanishDatetime(t time.Time) string {
	local := t.In(santiago())
	return fmt.Sprintf("%d %s %d %s",
		local.Day(), monthsES[int(local.Month())-1], local.Year(), local.Format("03:04PM"))
}

type workbookStyles struct {
	header     int
	cell       int
	statsLabel int
	statsValue int
}

func newWorkbookStyles(f *excelize.File) (workbookStyles, error) {
	var ws workbookStyles
	var err error

	border := []excelize.Border{
		{Type: "left", Style: 1, Color: "000000"},
		{Type: "right", Style: 1, Color: "000000"},
		{Type: "top", Style: 1, Color: "000000"},
		{Type: "bottom", Style: 1, Color: "000000"},
	}

	ws.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{excelHeaderFill}},
		Border:    border,
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return ws, err
	}

	ws.cell, err = f.NewStyle(&excelize.Style{
		Border:    border,
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	if err != nil {
		return ws, err
	}

	ws.statsLabel, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{statsLabelFill}},
		Border:    border,
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	if err != nil {
		return ws, err
	}

	ws.statsValue, err = f.NewStyle(&excelize.Style{
		Border:    border,
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	return ws, err
}

func setRow(f *excelize.File, sheet string, row int, style int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}
	}
	return nil
}

// BuildAssetWorkbook produces the tabular asset report. When includePhotos
// is set each row embeds the asset's barcode photo; a missing or unreadable
// blob degrades to a placeholder cell and never aborts the report.
func BuildAssetWorkbook(ctx context.Context, assets []model.Asset, includePhotos bool, photos storage.Storage) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", assetSheetName); err != nil {
		return nil, err
	}

	styles, err := newWorkbookStyles(f)
	if err != nil {
		return nil, err
	}

	headers := []any{
		"Tag BIM", "ID Interno", "Fecha Instalación", "Proyecto", "Elemento",
		"Instalador", "Macro Ubicación", "Dirección Calzada", "Georeferenciación", "Descripción",
	}
	if includePhotos {
		headers = append(headers, "Foto")
	}
	if err := setRow(f, assetSheetName, 1, styles.header, headers); err != nil {
		return nil, err
	}

	widths := []float64{20, 15, 18, 25, 50, 30, 20, 15, 30, 25, 22}
	for i, w := range widths {
		if i >= len(headers) {
			break
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(assetSheetName, col, col, w); err != nil {
			return nil, err
		}
	}

	if err := f.SetPanes(assetSheetName, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return nil, err
	}

	for i, asset := range assets {
		row := i + 2

		values := []any{
			asset.TagBIM,
			asset.IDInterno,
			asset.FechaInstalacion.Format("2006-01-02"),
			asset.ContractProjectNombre,
			asset.ElementTypeNombre,
			asset.InstallerNombre,
			asset.MacroLocationNombre,
			string(asset.UbicacionVia),
			asset.Georeferenciacion,
			asset.Descripcion,
		}
		if err := setRow(f, assetSheetName, row, styles.cell, values); err != nil {
			return nil, err
		}

		if !includePhotos {
			continue
		}

		if err := f.SetRowHeight(assetSheetName, row, photoRowHeight); err != nil {
			return nil, err
		}

		photoCell, _ := excelize.CoordinatesToCellName(len(values)+1, row)
		placeholder := embedPhoto(ctx, f, photos, asset, photoCell)
		if placeholder != "" {
			if err := f.SetCellValue(assetSheetName, photoCell, placeholder); err != nil {
				return nil, err
			}
			if err := f.SetCellStyle(assetSheetName, photoCell, photoCell, styles.cell); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// embedPhoto inserts the asset photo at cell and returns "" on success, or
// the placeholder text to write instead.
func embedPhoto(ctx context.Context, f *excelize.File, photos storage.Storage, asset model.Asset, cell string) string {
	log := logger.For("asset_report")

	if asset.NombreFotoCodigo == "" {
		return "Sin foto"
	}

	reader, err := photos.Download(ctx, asset.NombreFotoCodigo)
	if err != nil {
		log.Warn().
			Int64("id_interno", asset.IDInterno).
			Str("photo_name", asset.NombreFotoCodigo).
			Msg("Photo file not found in storage")
		return "Archivo no encontrado"
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		log.Error().Err(err).
			Int64("id_interno", asset.IDInterno).
			Str("photo_name", asset.NombreFotoCodigo).
			Msg("Error reading photo for report")
		return "Error al procesar"
	}

	err = f.AddPictureFromBytes(assetSheetName, cell, &excelize.Picture{
		Extension: filepath.Ext(asset.NombreFotoCodigo),
		File:      data,
		Format:    &excelize.GraphicOptions{OffsetX: 5, OffsetY: 5, AutoFit: true},
	})
	if err != nil {
		log.Error().Err(err).
			Int64("id_interno", asset.IDInterno).
			Str("photo_name", asset.NombreFotoCodigo).
			Msg("Error inserting photo in report")
		return "Error al procesar"
	}

	return ""
}

var sheetNameSanitizer = strings.NewReplacer("[", "", "]", "", "*", "", "?", "", ":", "", "/", "", "\\", "")

func installerSheetName(installer string) string {
	name := sheetNameSanitizer.Replace(installer)
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}

// BuildInstallerWorkbook produces one sheet per installer, each prefixed
// with the installer's aggregates: asset count, most recent installation
// (Chile time, Spanish month names) and the maximum gap between
// chronologically consecutive installations.
func BuildInstallerWorkbook(assets []model.Asset) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	styles, err := newWorkbookStyles(f)
	if err != nil {
		return nil, err
	}

	byInstaller := make(map[string][]model.Asset)
	for _, a := range assets {
		if a.InstallerNombre == "" {
			continue
		}
		byInstaller[a.InstallerNombre] = append(byInstaller[a.InstallerNombre], a)
	}

	names := make([]string, 0, len(byInstaller))
	for name := range byInstaller {
		names = append(names, name)
	}
	sort.Strings(names)

	for sheetIdx, installer := range names {
		sheet := installerSheetName(installer)
		if sheetIdx == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, err
			}
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return nil, err
			}
		}

		group := byInstaller[installer]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].CreatedAt.After(group[j].CreatedAt)
		})

		lastCreation := group[0].CreatedAt

		ascending := make([]model.Asset, len(group))
		copy(ascending, group)
		sort.SliceStable(ascending, func(i, j int) bool {
			return ascending[i].CreatedAt.Before(ascending[j].CreatedAt)
		})

		var maxDelta time.Duration
		for i := 1; i < len(ascending); i++ {
			if delta := ascending[i].CreatedAt.Sub(ascending[i-1].CreatedAt); delta > maxDelta {
				maxDelta = delta
			}
		}

		maxDeltaStr := "N/A"
		if len(group) >= 2 {
			hours := int(maxDelta.Hours())
			minutes := int(maxDelta.Minutes()) % 60
			maxDeltaStr = fmt.Sprintf("%d horas, %d minutos", hours, minutes)
		}

		statRows := [][2]any{
			{"Instalador:", installer},
			{"Estadísticas del Instalador", ""},
			{"Total de Activos:", len(group)},
			{"Última Instalación:", formatSpanishDatetime(lastCreation)},
			{"Delta Máximo Entre Instalaciones:", maxDeltaStr},
		}
		for i, sr := range statRows {
			labelCell, _ := excelize.CoordinatesToCellName(1, i+1)
			valueCell, _ := excelize.CoordinatesToCellName(2, i+1)
			if err := f.SetCellValue(sheet, labelCell, sr[0]); err != nil {
				return nil, err
			}
			if err := f.SetCellStyle(sheet, labelCell, labelCell, styles.statsLabel); err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, valueCell, sr[1]); err != nil {
				return nil, err
			}
			if err := f.SetCellStyle(sheet, valueCell, valueCell, styles.statsValue); err != nil {
				return nil, err
			}
		}

		const tableStartRow = 7
		headers := []any{"ID Único", "Tipo de Elemento", "Dirección Calzada", "Georeferenciación", "Fecha de Creación"}
		if err := setRow(f, sheet, tableStartRow, styles.header, headers); err != nil {
			return nil, err
		}

		widths := []float64{15, 50, 20, 30, 32}
		for i, w := range widths {
			col, _ := excelize.ColumnNumberToName(i + 1)
			if err := f.SetColWidth(sheet, col, col, w); err != nil {
				return nil, err
			}
		}

		if err := f.SetPanes(sheet, &excelize.Panes{
			Freeze: true, YSplit: tableStartRow, TopLeftCell: fmt.Sprintf("A%d", tableStartRow+1), ActivePane: "bottomLeft",
		}); err != nil {
			return nil, err
		}

		for i, asset := range group {
			values := []any{
				asset.IDInterno,
				asset.ElementTypeNombre,
				string(asset.UbicacionVia),
				asset.Georeferenciacion,
				formatSpanishDatetime(asset.CreatedAt),
			}
			if err := setRow(f, sheet, tableStartRow+1+i, styles.cell, values); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
