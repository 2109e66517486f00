package domain

import (
	"time"

	"github.com/google/uuid"
)

// Projection is the structured, kind-independent view of an ingested row.
// It pairs with the raw row sharing (UploadID, RowIndex); no foreign key
// enforces that pairing, the ingestion transaction keeps them consistent.
type Projection struct {
	ID                 uuid.UUID  `json:"id"`
	UploadID           *uuid.UUID `json:"uploadId"`
	SheetName          string     `json:"sheetName"`
	Columna1           *string    `json:"columna1"`
	Columna2           *string    `json:"columna2"`
	Columna3           *int       `json:"columna3"`
	RowIndex           int        `json:"rowIndex"`
	Mes                time.Time  `json:"mes"`
	MesTexto           *string    `json:"mesTexto"`
	Almacen            *string    `json:"almacen"`
	MonitoristaReporta *string    `json:"monitoristaReporta"`
	CoordinadorTurno   *string    `json:"coordinadorTurno"`
	FechaEnvio         *string    `json:"fechaEnvio"`
	FechaCreacion      time.Time  `json:"fechaCreacion"`
	UploadedByUserID   uuid.UUID  `json:"uploadedByUserId"`
}

// ProjectionKey identifies the projection paired with a raw row.
type ProjectionKey struct {
	UploadID uuid.UUID
	RowIndex int
}

// Key returns the join key of the projection. Orphaned projections return false.
func (p Projection) Key() (ProjectionKey, bool) {
	if p.UploadID == nil {
		return ProjectionKey{}, false
	}
	return ProjectionKey{UploadID: *p.UploadID, RowIndex: p.RowIndex}, true
}

// EnrichedRecord is a raw row with its projection attached when one exists.
type EnrichedRecord struct {
	RawRecord
	Projection *Projection `json:"projection,omitempty"`
}

// SummaryBucket is one group of the aggregate report.
type SummaryBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Summary groups projections by warehouse and by month.
type Summary struct {
	Total     int             `json:"total"`
	ByAlmacen []SummaryBucket `json:"byAlmacen"`
	ByMes     []SummaryBucket `json:"byMes"`
}
