package report

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dotbassa/highway-inventory-backend/internal/logger"
	"github.com/dotbassa/highway-inventory-backend/internal/model"
)

var decimalPattern = regexp.MustCompile(`-?\d+\.\d+`)

// parseGeoref extracts latitude and longitude from a free-text
// "lat, lon[, alt]" field (e.g. "-30.002523, -71.329657, 159.60m").
func parseGeoref(georef string) (float64, float64, bool) {
	if georef == "" {
		return 0, 0, false
	}

	matches := decimalPattern.FindAllString(georef, 2)
	if len(matches) < 2 {
		return 0, 0, false
	}

	lat, err := strconv.ParseFloat(matches[0], 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, 0, false
	}

	return lat, lon, true
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeXML(text string) string {
	return xmlEscaper.Replace(text)
}

// BuildKMZ emits a single-document KML point collection zipped into a KMZ
// archive. Rows whose georeference text cannot be parsed are skipped and
// counted, never aborting the batch. The skipped count is returned alongside
// the archive.
func BuildKMZ(assets []model.Asset) ([]byte, int, error) {
	log := logger.For("kmz_report")

	var placemarks strings.Builder
	skipped := 0
	valid := 0

	for _, asset := range assets {
		lat, lon, ok := parseGeoref(asset.Georeferenciacion)
		if !ok {
			skipped++
			if asset.Georeferenciacion != "" {
				log.Warn().
					Int64("id_interno", asset.IDInterno).
					Str("georeferenciacion", asset.Georeferenciacion).
					Msg("Asset skipped due to invalid georeferenciacion")
			}
			continue
		}
		valid++

		name := escapeXML(strconv.FormatInt(asset.IDInterno, 10))
		if asset.ElementTypeNombre != "" {
			name = fmt.Sprintf("%s - %s", name, escapeXML(asset.ElementTypeNombre))
		}

		fmt.Fprintf(&placemarks, `
        <Placemark>
            <name>%s</name>
            <Point>
                <coordinates>%g,%g,0</coordinates>
            </Point>
        </Placemark>`, name, lon, lat)
	}

	log.Info().
		Int("total_assets", len(assets)).
		Int("valid_assets", valid).
		Int("skipped_assets", skipped).
		Msg("KMZ report generation")

	kml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <name>Activos Viales</name>
    <description>Activos extraídos desde base de datos</description>
    %s
  </Document>
</kml>
`, placemarks.String())

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("doc.kml")
	if err != nil {
		zw.Close()
		return nil, skipped, err
	}
	if _, err := w.Write([]byte(kml)); err != nil {
		zw.Close()
		return nil, skipped, err
	}
	if err := zw.Close(); err != nil {
		return nil, skipped, err
	}

	return buf.Bytes(), skipped, nil
}
