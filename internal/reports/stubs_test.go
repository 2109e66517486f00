package reports

import (
	"context"
	"time"

	"github.com/rpattn/opsreport/internal/domain"
	"github.com/rpattn/opsreport/internal/repository"

	"github.com/google/uuid"
)

type stubUploadRepo struct {
	uploads    map[uuid.UUID]domain.Upload
	lastFilter domain.UploadFilter
	lastLimit  int
	lastOffset int
	deleted    []uuid.UUID
}

func (s *stubUploadRepo) InTx(context.Context, func(repository.UploadWriter) error) error {
	return nil
}

func (s *stubUploadRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Upload, error) {
	upload, ok := s.uploads[id]
	if !ok {
		return domain.Upload{}, repository.ErrNotFound
	}
	return upload, nil
}

func (s *stubUploadRepo) List(_ context.Context, filter domain.UploadFilter, limit, offset int) ([]domain.Upload, int, error) {
	s.lastFilter = filter
	s.lastLimit = limit
	s.lastOffset = offset
	out := make([]domain.Upload, 0, len(s.uploads))
	for _, upload := range s.uploads {
		if filter.Kind != nil && upload.UploadType != *filter.Kind {
			continue
		}
		out = append(out, upload)
	}
	return out, len(out), nil
}

func (s *stubUploadRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := s.uploads[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.uploads, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type stubRecordRepo struct {
	records    []domain.RawRecord
	lastKind   domain.UploadKind
	lastFilter domain.RecordFilter
	deleted    []uuid.UUID
}

func (s *stubRecordRepo) List(_ context.Context, kind domain.UploadKind, filter domain.RecordFilter, limit, offset int) ([]domain.RawRecord, int, error) {
	s.lastKind = kind
	s.lastFilter = filter
	return s.records, len(s.records), nil
}

func (s *stubRecordRepo) ListByUpload(_ context.Context, _ domain.UploadKind, uploadID uuid.UUID) ([]domain.RawRecord, error) {
	var out []domain.RawRecord
	for _, rec := range s.records {
		if rec.UploadID == uploadID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *stubRecordRepo) Delete(_ context.Context, _ domain.UploadKind, id uuid.UUID) error {
	for i, rec := range s.records {
		if rec.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			s.deleted = append(s.deleted, id)
			return nil
		}
	}
	return repository.ErrNotFound
}

type stubProjectionRepo struct {
	projections []domain.Projection
	summary     domain.Summary
	lastKind    *domain.UploadKind
	lastFrom    *time.Time
	lastTo      *time.Time
}

func (s *stubProjectionRepo) ListByUploads(context.Context, []uuid.UUID) ([]domain.Projection, error) {
	return s.projections, nil
}

func (s *stubProjectionRepo) ListByKeys(context.Context, []domain.ProjectionKey) ([]domain.Projection, error) {
	return s.projections, nil
}

func (s *stubProjectionRepo) Summarize(_ context.Context, kind *domain.UploadKind, from, to *time.Time) (domain.Summary, error) {
	s.lastKind = kind
	s.lastFrom = from
	s.lastTo = to
	return s.summary, nil
}

type stubLogRepo struct {
	entries    []domain.IngestionLogEntry
	lastLimit  int
	lastOffset int
}

func (s *stubLogRepo) Record(_ context.Context, entry domain.IngestionLogEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubLogRepo) List(_ context.Context, limit, offset int) ([]domain.IngestionLogEntry, error) {
	s.lastLimit = limit
	s.lastOffset = offset
	return s.entries, nil
}

func strPtr(v string) *string {
	return &v
}
