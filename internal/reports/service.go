package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/opsreport/internal/domain"
	"github.com/rpattn/opsreport/internal/middleware"
	"github.com/rpattn/opsreport/internal/projectionloader"
	"github.com/rpattn/opsreport/internal/repository"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ErrInvalidRange is returned when a month range ends before it starts.
var ErrInvalidRange = errors.New("mesDesde must not be after mesHasta")

// Service answers the read and delete side of the ingested data.
type Service struct {
	uploads     repository.UploadRepository
	records     repository.RecordRepository
	projections repository.ProjectionRepository
	logs        repository.IngestionLogRepository
}

func NewService(
	uploads repository.UploadRepository,
	records repository.RecordRepository,
	projections repository.ProjectionRepository,
	logs repository.IngestionLogRepository,
) *Service {
	return &Service{uploads: uploads, records: records, projections: projections, logs: logs}
}

// Page describes a window into a listing. Page numbers start at 1.
type Page struct {
	Number int `json:"page"`
	Size   int `json:"pageSize"`
}

// Normalize clamps the page to valid bounds.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

func (p Page) offset() int {
	return (p.Number - 1) * p.Size
}

// UploadPage is a page of manifests.
type UploadPage struct {
	Items []domain.Upload `json:"items"`
	Total int             `json:"total"`
	Page
}

// RecordPage is a page of raw rows with their projections.
type RecordPage struct {
	Items []domain.EnrichedRecord `json:"items"`
	Total int                     `json:"total"`
	Page
}

func (s *Service) ListUploads(ctx context.Context, filter domain.UploadFilter, page Page) (UploadPage, error) {
	page = page.Normalize()
	uploads, total, err := s.uploads.List(ctx, filter, page.Size, page.offset())
	if err != nil {
		return UploadPage{}, fmt.Errorf("list uploads: %w", err)
	}
	if uploads == nil {
		uploads = []domain.Upload{}
	}
	return UploadPage{Items: uploads, Total: total, Page: page}, nil
}

func (s *Service) GetUpload(ctx context.Context, id uuid.UUID) (domain.Upload, error) {
	upload, err := s.uploads.GetByID(ctx, id)
	if err != nil {
		return domain.Upload{}, fmt.Errorf("get upload: %w", err)
	}
	return upload, nil
}

// DeleteUpload removes a manifest with every row it produced.
func (s *Service) DeleteUpload(ctx context.Context, id uuid.UUID) error {
	if err := s.uploads.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	return nil
}

// ListRecords pages raw rows of one kind and attaches the projection of each
// row. The request-scoped loader is used when present.
func (s *Service) ListRecords(ctx context.Context, kind domain.UploadKind, filter domain.RecordFilter, page Page) (RecordPage, error) {
	if filter.MesDesde != nil && filter.MesHasta != nil && filter.MesDesde.After(*filter.MesHasta) {
		return RecordPage{}, ErrInvalidRange
	}
	page = page.Normalize()

	records, total, err := s.records.List(ctx, kind, filter, page.Size, page.offset())
	if err != nil {
		return RecordPage{}, fmt.Errorf("list %s records: %w", kind, err)
	}

	loader := middleware.ProjectionLoaderFromContext(ctx)
	if loader == nil {
		loader = projectionloader.NewProjectionLoader(s.projections).Loader
	}
	projections, err := projectionloader.LoadMany(ctx, loader, records)
	if err != nil {
		return RecordPage{}, err
	}

	items := make([]domain.EnrichedRecord, len(records))
	for i, rec := range records {
		items[i] = domain.EnrichedRecord{RawRecord: rec, Projection: projections[i]}
	}
	return RecordPage{Items: items, Total: total, Page: page}, nil
}

// DeleteRecord removes one raw row and its projection.
func (s *Service) DeleteRecord(ctx context.Context, kind domain.UploadKind, id uuid.UUID) error {
	if err := s.records.Delete(ctx, kind, id); err != nil {
		return fmt.Errorf("delete %s record: %w", kind, err)
	}
	return nil
}

func (s *Service) Summary(ctx context.Context, kind *domain.UploadKind, from, to *time.Time) (domain.Summary, error) {
	if from != nil && to != nil && from.After(*to) {
		return domain.Summary{}, ErrInvalidRange
	}
	summary, err := s.projections.Summarize(ctx, kind, from, to)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("summarize projections: %w", err)
	}
	if summary.ByAlmacen == nil {
		summary.ByAlmacen = []domain.SummaryBucket{}
	}
	if summary.ByMes == nil {
		summary.ByMes = []domain.SummaryBucket{}
	}
	return summary, nil
}

// IngestionLogs lists recorded ingestion failures, newest first.
func (s *Service) IngestionLogs(ctx context.Context, page Page) ([]domain.IngestionLogEntry, error) {
	page = page.Normalize()
	entries, err := s.logs.List(ctx, page.Size, page.offset())
	if err != nil {
		return nil, fmt.Errorf("list ingestion logs: %w", err)
	}
	if entries == nil {
		entries = []domain.IngestionLogEntry{}
	}
	return entries, nil
}
