package repository

import (
	"fmt"

	"github.com/rpattn/opsreport/internal/domain"
)

const (
	uploadsTable     = "excel_uploads"
	projectionsTable = "excel_data"
)

// recordTable maps an upload kind to its raw row table. Table names are
// interpolated into SQL, so only the two known kinds are accepted.
func recordTable(kind domain.UploadKind) (string, error) {
	switch kind {
	case domain.UploadKindDetecciones:
		return "detecciones", nil
	case domain.UploadKindRevisiones:
		return "revisiones", nil
	default:
		return "", fmt.Errorf("unknown upload kind %q", kind)
	}
}
