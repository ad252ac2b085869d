package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound            = errors.New("resource not found")
	ErrContractNotFound    = errors.New("contract project not found")
	ErrElementTypeNotFound = errors.New("element type not found")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrContractNotFound) ||
		errors.Is(err, ErrElementTypeNotFound)
}

// AdmissionDeniedError is returned when the report concurrency ceiling is
// reached. It is a client-visible retry-later condition, not a server error.
type AdmissionDeniedError struct {
	Pending int
	Ceiling int
}

func (e AdmissionDeniedError) Error() string {
	return fmt.Sprintf("Ya hay %d reporte(s) generándose. Por favor intente en unos minutos.", e.Pending)
}

func IsAdmissionDenied(err error) bool {
	var ad AdmissionDeniedError
	return errors.As(err, &ad)
}

type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// SQLSTATE class 23 covers integrity constraint violations, class 22 covers
// data exceptions (bad enum value, string too long, type mismatch). 23505 is
// the unique violation absorbed by the ingestion conflict path.
const (
	sqlstateUniqueViolation = "23505"
	classIntegrityViolation = "23"
	classDataException      = "22"
)

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateUniqueViolation
}

// IsIntegrityError reports non-uniqueness constraint violations (foreign key,
// not-null, check). Unique violations are excluded since the bulk insert
// absorbs them via ON CONFLICT.
func IsIntegrityError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return len(pgErr.Code) >= 2 && pgErr.Code[:2] == classIntegrityViolation &&
		!IsUniqueViolation(err)
}

func IsDataError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && len(pgErr.Code) >= 2 && pgErr.Code[:2] == classDataException
}

// IsBatchFailure reports errors that fail an entire ingestion batch: any
// integrity or data-format violation the conditional insert cannot absorb.
func IsBatchFailure(err error) bool {
	return IsIntegrityError(err) || IsDataError(err)
}
