package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/rpattn/opsreport/internal/domain"
	"github.com/rpattn/opsreport/internal/repository"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const maxSheetNameLength = 31

// canonicalHeaders are appended after the original columns of an export.
var canonicalHeaders = []string{
	"Mes",
	"Mes (texto)",
	"Almacén",
	"Monitorista quien reporta",
	"Coordinador en turno",
	"Fecha de envío",
}

type Service struct {
	uploads     repository.UploadRepository
	records     repository.RecordRepository
	projections repository.ProjectionRepository
	now         func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source used for document properties.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(
	uploads repository.UploadRepository,
	records repository.RecordRepository,
	projections repository.ProjectionRepository,
	opts ...Option,
) *Service {
	service := &Service{
		uploads:     uploads,
		records:     records,
		projections: projections,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Result describes a finished export.
type Result struct {
	FileName string
	Rows     int
}

// ExportUpload writes the rows of an upload as an xlsx workbook to w. The
// original columns keep the manifest order; the resolved canonical fields
// follow them.
func (s *Service) ExportUpload(ctx context.Context, uploadID uuid.UUID, w io.Writer) (Result, error) {
	upload, err := s.uploads.GetByID(ctx, uploadID)
	if err != nil {
		return Result{}, fmt.Errorf("load upload: %w", err)
	}
	records, err := s.records.ListByUpload(ctx, upload.UploadType, upload.ID)
	if err != nil {
		return Result{}, fmt.Errorf("load %s rows: %w", upload.UploadType, err)
	}
	projections, err := s.projections.ListByUploads(ctx, []uuid.UUID{upload.ID})
	if err != nil {
		return Result{}, fmt.Errorf("load projections: %w", err)
	}
	byRow := make(map[int]domain.Projection, len(projections))
	for _, p := range projections {
		if _, dup := byRow[p.RowIndex]; !dup {
			byRow[p.RowIndex] = p
		}
	}

	file := excelize.NewFile()
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			log.Printf("[EXPORT] failed to close workbook for upload %s: %v", upload.ID, closeErr)
		}
	}()

	sheet := sheetName(upload.SheetName)
	if err := file.SetSheetName("Sheet1", sheet); err != nil {
		return Result{}, fmt.Errorf("rename sheet: %w", err)
	}
	if err := file.SetDocProps(&excelize.DocProperties{
		Title:    upload.FileName,
		Subject:  string(upload.UploadType),
		Created:  s.now().UTC().Format(time.RFC3339),
		Creator:  "opsreport",
		Language: "es-MX",
	}); err != nil {
		return Result{}, fmt.Errorf("set document properties: %w", err)
	}

	headerStyle, err := file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9E1F2"}},
	})
	if err != nil {
		return Result{}, fmt.Errorf("create header style: %w", err)
	}

	stream, err := file.NewStreamWriter(sheet)
	if err != nil {
		return Result{}, fmt.Errorf("open stream writer: %w", err)
	}

	headers := make([]any, 0, len(upload.Headers)+len(canonicalHeaders))
	for _, h := range upload.Headers {
		headers = append(headers, h)
	}
	for _, h := range canonicalHeaders {
		headers = append(headers, h)
	}
	if err := stream.SetRow("A1", headers, excelize.RowOpts{StyleID: headerStyle}); err != nil {
		return Result{}, fmt.Errorf("write header row: %w", err)
	}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return Result{}, err
		}
		var projection *domain.Projection
		if p, ok := byRow[rec.RowIndex]; ok {
			projection = &p
		}
		if err := stream.SetRow(cell, exportRow(upload.Headers, rec, projection)); err != nil {
			return Result{}, fmt.Errorf("write row %d: %w", rec.RowIndex, err)
		}
	}

	if err := stream.Flush(); err != nil {
		return Result{}, fmt.Errorf("flush worksheet: %w", err)
	}
	if _, err := file.WriteTo(w); err != nil {
		return Result{}, fmt.Errorf("write workbook: %w", err)
	}

	log.Printf("[EXPORT] upload %s exported (rows=%d)", upload.ID, len(records))
	return Result{FileName: exportFileName(upload), Rows: len(records)}, nil
}

func exportRow(headers []string, rec domain.RawRecord, projection *domain.Projection) []any {
	row := make([]any, 0, len(headers)+len(canonicalHeaders))
	for _, h := range headers {
		value, _ := rec.Data.Get(h)
		row = append(row, deref(value))
	}
	if projection == nil {
		for range canonicalHeaders {
			row = append(row, nil)
		}
		return row
	}
	return append(row,
		projection.Mes.Format("2006-01"),
		deref(projection.MesTexto),
		deref(projection.Almacen),
		deref(projection.MonitoristaReporta),
		deref(projection.CoordinadorTurno),
		deref(projection.FechaEnvio),
	)
}

func deref(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

// sheetName turns the source sheet name into a valid worksheet name.
func sheetName(value string) string {
	value = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '-'
		}
		return r
	}, strings.TrimSpace(value))
	value = strings.Trim(value, "'")
	if value == "" {
		return "Datos"
	}
	if runes := []rune(value); len(runes) > maxSheetNameLength {
		value = string(runes[:maxSheetNameLength])
	}
	return value
}

func exportFileName(upload domain.Upload) string {
	base := sanitizeFileComponent(strings.TrimSuffix(upload.FileName, filepath.Ext(upload.FileName)))
	if base == "" {
		base = string(upload.UploadType)
	}
	return fmt.Sprintf("%s-%s.xlsx", base, upload.ID.String()[:8])
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	return strings.Trim(builder.String(), "-")
}

// IsNotFound reports whether err means the upload does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
