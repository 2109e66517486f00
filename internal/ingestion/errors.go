package ingestion

import "errors"

// Validation errors are user-correctable and reported as bad requests.
var (
	ErrMissingFile   = errors.New("a non-empty file is required")
	ErrInvalidKind   = errors.New("tipo must be 'detecciones' or 'revisiones'")
	ErrNoWorksheets  = errors.New("the workbook has no worksheets")
	ErrNoUsableSheet = errors.New("no worksheet has a header row and at least one data row")
	ErrNoColumns     = errors.New("the selected worksheet has no columns")
	ErrNoDataRows    = errors.New("the worksheet has no data rows")
)

// ErrUnauthorized is returned when the uploading user cannot be resolved or is inactive.
var ErrUnauthorized = errors.New("user could not be resolved or is inactive")

// IsValidationError reports whether err is one of the user-correctable input errors.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMissingFile) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrNoWorksheets) ||
		errors.Is(err, ErrNoUsableSheet) ||
		errors.Is(err, ErrNoColumns) ||
		errors.Is(err, ErrNoDataRows)
}
