package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/rpattn/opsreport/internal/domain"
	"github.com/rpattn/opsreport/internal/repository"

	"github.com/google/uuid"
)

// Service ingests detection and revision workbooks.
type Service struct {
	uploads     repository.UploadRepository
	users       repository.UserRepository
	logRepo     repository.IngestionLogRepository
	transformer *Transformer
	open        WorkbookOpener
	now         func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithMatchFunc replaces the fallback header matching strategy.
func WithMatchFunc(match MatchFunc) Option {
	return func(s *Service) {
		s.transformer = NewTransformer(NewResolver(match))
	}
}

// WithWorkbookOpener replaces the excelize-backed workbook reader.
func WithWorkbookOpener(open WorkbookOpener) Option {
	return func(s *Service) {
		if open != nil {
			s.open = open
		}
	}
}

// WithClock overrides the time source used for upload timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a new ingestion service.
func NewService(
	uploads repository.UploadRepository,
	users repository.UserRepository,
	logRepo repository.IngestionLogRepository,
	opts ...Option,
) *Service {
	service := &Service{
		uploads:     uploads,
		users:       users,
		logRepo:     logRepo,
		transformer: NewTransformer(NewResolver(ContainsMatch)),
		open:        OpenExcelWorkbook,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Request describes the ingestion input.
type Request struct {
	Kind     string
	FileName string
	UserID   uuid.UUID
	Data     io.Reader
}

// Summary returns what was persisted.
type Summary struct {
	UploadID  uuid.UUID         `json:"uploadId"`
	Kind      domain.UploadKind `json:"tipo"`
	TotalRows int               `json:"totalRows"`
}

type sheetTable struct {
	name    string
	headers []string
	rows    int
	cols    int
}

// Ingest validates the upload, reads the first worksheet holding data, and
// writes the manifest, raw rows and projections in a single transaction.
func (s *Service) Ingest(ctx context.Context, req Request) (Summary, error) {
	// VALIDATE_INPUT
	if req.Data == nil {
		return Summary{}, ErrMissingFile
	}
	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return Summary{}, ErrMissingFile
	}

	kind, ok := domain.ParseUploadKind(req.Kind)
	if !ok {
		return Summary{}, fmt.Errorf("%w: got %q", ErrInvalidKind, strings.TrimSpace(req.Kind))
	}

	user, err := s.resolveUser(ctx, req.UserID)
	if err != nil {
		return Summary{}, err
	}

	// PARSE_WORKBOOK
	workbook, err := s.open(bytes.NewReader(payload))
	if err != nil {
		s.logFailure(ctx, kind, req.FileName, user.ID, err)
		return Summary{}, err
	}
	defer func() { _ = workbook.Close() }()

	// SELECT_SHEET, EXTRACT_HEADERS
	table, err := selectSheet(workbook)
	if err != nil {
		s.logFailure(ctx, kind, req.FileName, user.ID, err)
		return Summary{}, err
	}

	// PROCESS_ROWS
	uploadedAt := s.now()
	upload := domain.NewUpload(kind, req.FileName, table.name, table.headers, user.ID, uploadedAt)
	uploadCtx := UploadContext{
		UploadID:   upload.ID,
		SheetName:  table.name,
		UploadedAt: uploadedAt,
		UploadedBy: user.ID,
	}

	records := make([]domain.RawRecord, 0, table.rows-1)
	projections := make([]domain.Projection, 0, table.rows-1)
	for rowIndex := 2; rowIndex <= table.rows; rowIndex++ {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}

		row, err := readRow(workbook, table, rowIndex)
		if err != nil {
			s.logFailure(ctx, kind, req.FileName, user.ID, err)
			return Summary{}, err
		}
		if row.IsBlank() {
			continue
		}

		data, projection := s.transformer.Transform(row, uploadCtx)
		records = append(records, domain.RawRecord{
			ID:       uuid.New(),
			UploadID: upload.ID,
			Kind:     kind,
			RowIndex: rowIndex,
			Data:     data,
		})
		projections = append(projections, projection)
	}

	// PERSIST
	if len(records) == 0 {
		return Summary{}, ErrNoDataRows
	}
	upload.TotalRows = len(records)

	err = s.uploads.InTx(ctx, func(w repository.UploadWriter) error {
		if err := w.CreateUpload(ctx, upload); err != nil {
			return err
		}
		if err := w.CreateRecords(ctx, kind, records); err != nil {
			return err
		}
		return w.CreateProjections(ctx, projections)
	})
	if err != nil {
		err = fmt.Errorf("failed to persist upload: %w", err)
		s.logFailure(ctx, kind, req.FileName, user.ID, err)
		return Summary{}, err
	}

	log.Printf("[INGEST] %s upload %s stored (file=%q sheet=%q rows=%d user=%s)",
		kind, upload.ID, req.FileName, table.name, upload.TotalRows, user.ID)

	return Summary{
		UploadID:  upload.ID,
		Kind:      kind,
		TotalRows: upload.TotalRows,
	}, nil
}

func (s *Service) resolveUser(ctx context.Context, userID uuid.UUID) (domain.User, error) {
	if userID == uuid.Nil || s.users == nil {
		return domain.User{}, ErrUnauthorized
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUnauthorized
		}
		return domain.User{}, fmt.Errorf("failed to resolve user: %w", err)
	}
	if !user.IsActive {
		return domain.User{}, ErrUnauthorized
	}
	return user, nil
}

// selectSheet picks the first worksheet with a header row and at least one
// data row and extracts its headers, naming blank header cells Columna{N}.
// Header text is kept as written; repeated headers get a _{N} suffix so each
// column has its own key.
func selectSheet(workbook Workbook) (sheetTable, error) {
	sheets := workbook.SheetNames()
	if len(sheets) == 0 {
		return sheetTable{}, ErrNoWorksheets
	}

	for _, name := range sheets {
		rows, cols, err := workbook.Dimensions(name)
		if err != nil {
			return sheetTable{}, err
		}
		if rows < 2 {
			continue
		}
		if cols == 0 {
			return sheetTable{}, fmt.Errorf("%w: %s", ErrNoColumns, name)
		}

		headers := make([]string, cols)
		for col := 1; col <= cols; col++ {
			text, err := workbook.CellText(name, 1, col)
			if err != nil {
				return sheetTable{}, err
			}
			header := text
			if strings.TrimSpace(header) == "" {
				header = fmt.Sprintf("Columna%d", col)
			}
			headers[col-1] = header
		}

		return sheetTable{name: name, headers: uniqueHeaders(headers), rows: rows, cols: cols}, nil
	}

	return sheetTable{}, ErrNoUsableSheet
}

// uniqueHeaders suffixes a repeated header with its 1-based column number,
// repeating the suffix until the key is unused.
func uniqueHeaders(headers []string) []string {
	seen := make(map[string]struct{}, len(headers))
	for i, header := range headers {
		key := header
		for {
			if _, taken := seen[key]; !taken {
				break
			}
			key = fmt.Sprintf("%s_%d", key, i+1)
		}
		seen[key] = struct{}{}
		headers[i] = key
	}
	return headers
}

func readRow(workbook Workbook, table sheetTable, rowIndex int) (SheetRow, error) {
	cells := make([]string, table.cols)
	for col := 1; col <= table.cols; col++ {
		text, err := workbook.CellText(table.name, rowIndex, col)
		if err != nil {
			return SheetRow{}, err
		}
		cells[col-1] = text
	}
	return SheetRow{Index: rowIndex, Headers: table.headers, Cells: cells}, nil
}

func (s *Service) logFailure(ctx context.Context, kind domain.UploadKind, fileName string, userID uuid.UUID, err error) {
	log.Printf("[INGEST] %s upload of %q failed: %v", kind, fileName, err)
	if s.logRepo == nil || err == nil {
		return
	}
	entry := domain.IngestionLogEntry{
		UploadType:   string(kind),
		FileName:     fileName,
		ErrorMessage: err.Error(),
	}
	if userID != uuid.Nil {
		entry.UserID = &userID
	}
	// The request context may already be cancelled; the log write is independent of it.
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if recordErr := s.logRepo.Record(logCtx, entry); recordErr != nil {
		log.Printf("[INGEST] failed to record ingestion log: %v", recordErr)
	}
}
