package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UploadKind selects which raw row table an upload is written to.
type UploadKind string

const (
	UploadKindDetecciones UploadKind = "detecciones"
	UploadKindRevisiones  UploadKind = "revisiones"
)

// ParseUploadKind accepts the kind case-insensitively, ignoring surrounding whitespace.
func ParseUploadKind(raw string) (UploadKind, bool) {
	switch UploadKind(strings.ToLower(strings.TrimSpace(raw))) {
	case UploadKindDetecciones:
		return UploadKindDetecciones, true
	case UploadKindRevisiones:
		return UploadKindRevisiones, true
	default:
		return "", false
	}
}

func (k UploadKind) String() string {
	return string(k)
}

// Upload is the manifest describing one ingested workbook.
type Upload struct {
	ID               uuid.UUID  `json:"id"`
	UploadType       UploadKind `json:"uploadType"`
	FileName         string     `json:"fileName"`
	SheetName        string     `json:"sheetName"`
	Headers          []string   `json:"headersJson"`
	TotalRows        int        `json:"totalRows"`
	UploadedAt       time.Time  `json:"uploadedAt"`
	UploadedByUserID uuid.UUID  `json:"uploadedByUserId"`
}

// NewUpload creates a manifest with a fresh identifier.
func NewUpload(kind UploadKind, fileName, sheetName string, headers []string, uploadedBy uuid.UUID, uploadedAt time.Time) Upload {
	return Upload{
		ID:               uuid.New(),
		UploadType:       kind,
		FileName:         fileName,
		SheetName:        sheetName,
		Headers:          append([]string(nil), headers...),
		UploadedAt:       uploadedAt,
		UploadedByUserID: uploadedBy,
	}
}

// UploadFilter narrows manifest listings.
type UploadFilter struct {
	Kind *UploadKind
}
