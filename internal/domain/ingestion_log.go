package domain

import (
	"time"

	"github.com/google/uuid"
)

// IngestionLogEntry records an ingestion attempt that failed, for operator diagnosis.
type IngestionLogEntry struct {
	ID           uuid.UUID  `json:"id"`
	UploadType   string     `json:"uploadType"`
	FileName     string     `json:"fileName"`
	UserID       *uuid.UUID `json:"userId,omitempty"`
	RowNumber    *int       `json:"rowNumber,omitempty"`
	ErrorMessage string     `json:"errorMessage"`
	CreatedAt    time.Time  `json:"createdAt"`
}
