package photo

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/dotbassa/highway-inventory-backend/pkg/errors"
)

// Photo is one uploaded blob paired positionally with a natural key.
type Photo struct {
	Filename string
	Data     []byte
}

type Limits struct {
	MaxPerRequest     int
	AllowedExtensions []string
	MaxFileSize       int64
}

// Validate is the all-or-nothing precondition gate: any violation rejects
// the whole request before a single filesystem or database write happens.
func (l Limits) Validate(ids []int64, photos []Photo) error {
	if len(ids) != len(photos) {
		return pkgerrors.ValidationError{
			Field:   "photos",
			Value:   len(photos),
			Message: "the number of ids_internos must match the number of photos",
		}
	}

	if len(photos) > l.MaxPerRequest {
		return pkgerrors.ValidationError{
			Field:   "photos",
			Value:   len(photos),
			Message: fmt.Sprintf("maximum %d photos allowed per request", l.MaxPerRequest),
		}
	}

	for _, p := range photos {
		if _, err := l.extension(p); err != nil {
			return err
		}
		if int64(len(p.Data)) > l.MaxFileSize {
			return pkgerrors.ValidationError{
				Field:   "photos",
				Value:   p.Filename,
				Message: fmt.Sprintf("photo size exceeds %.1fMB limit", float64(l.MaxFileSize)/(1<<20)),
			}
		}
	}

	return nil
}

func (l Limits) extension(p Photo) (string, error) {
	if p.Filename == "" {
		return "", pkgerrors.ValidationError{
			Field:   "photos",
			Value:   "",
			Message: "photo filename is required",
		}
	}

	parts := strings.Split(p.Filename, ".")
	ext := strings.ToLower(parts[len(parts)-1])
	for _, allowed := range l.AllowedExtensions {
		if ext == allowed {
			return ext, nil
		}
	}

	return "", pkgerrors.ValidationError{
		Field:   "photos",
		Value:   p.Filename,
		Message: fmt.Sprintf("invalid file extension, allowed: %s", strings.Join(l.AllowedExtensions, ", ")),
	}
}

// PhotoName derives the deterministic blob name for a resolved item:
// <YYYYMMDD>_<id_interno>_codigo_barra.<ext>.
func PhotoName(fechaInstalacion time.Time, idInterno int64, ext string) string {
	return fechaInstalacion.Format("20060102") + "_" + strconv.FormatInt(idInterno, 10) + "_codigo_barra." + ext
}
