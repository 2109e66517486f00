package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rpattn/opsreport/internal/domain"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup by identifier matches nothing.
var ErrNotFound = errors.New("not found")

// UploadWriter performs the bulk writes of one ingestion inside a transaction.
type UploadWriter interface {
	CreateUpload(ctx context.Context, upload domain.Upload) error
	CreateRecords(ctx context.Context, kind domain.UploadKind, records []domain.RawRecord) error
	CreateProjections(ctx context.Context, projections []domain.Projection) error
}

// UploadRepository defines manifest operations. InTx commits everything
// written through the UploadWriter, or nothing when fn returns an error.
type UploadRepository interface {
	InTx(ctx context.Context, fn func(UploadWriter) error) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.Upload, error)
	List(ctx context.Context, filter domain.UploadFilter, limit int, offset int) ([]domain.Upload, int, error)
	// Delete removes the manifest together with its raw rows and projections.
	Delete(ctx context.Context, id uuid.UUID) error
}

// RecordRepository defines raw detection/revision row operations.
type RecordRepository interface {
	List(ctx context.Context, kind domain.UploadKind, filter domain.RecordFilter, limit int, offset int) ([]domain.RawRecord, int, error)
	ListByUpload(ctx context.Context, kind domain.UploadKind, uploadID uuid.UUID) ([]domain.RawRecord, error)
	// Delete removes one row, its projection, and decrements the manifest row count.
	Delete(ctx context.Context, kind domain.UploadKind, id uuid.UUID) error
}

// ProjectionRepository defines structured projection lookups.
type ProjectionRepository interface {
	ListByUploads(ctx context.Context, uploadIDs []uuid.UUID) ([]domain.Projection, error)
	// ListByKeys returns only the projections paired with the given raw rows.
	ListByKeys(ctx context.Context, keys []domain.ProjectionKey) ([]domain.Projection, error)
	Summarize(ctx context.Context, kind *domain.UploadKind, from, to *time.Time) (domain.Summary, error)
}

// UserRepository resolves accounts for the identity check.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.User, error)
}

// IngestionLogRepository persists ingestion failures.
type IngestionLogRepository interface {
	Record(ctx context.Context, entry domain.IngestionLogEntry) error
	List(ctx context.Context, limit int, offset int) ([]domain.IngestionLogEntry, error)
}
