package ingestion

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rpattn/opsreport/internal/domain"
	"github.com/rpattn/opsreport/internal/repository"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// stubStore keeps committed writes and discards the staged ones when the
// transaction callback fails.
type stubStore struct {
	uploads     []domain.Upload
	records     map[domain.UploadKind][]domain.RawRecord
	projections []domain.Projection

	failProjections error
}

type stagedWriter struct {
	uploads     []domain.Upload
	records     map[domain.UploadKind][]domain.RawRecord
	projections []domain.Projection
	fail        error
}

func (w *stagedWriter) CreateUpload(_ context.Context, upload domain.Upload) error {
	w.uploads = append(w.uploads, upload)
	return nil
}

func (w *stagedWriter) CreateRecords(_ context.Context, kind domain.UploadKind, records []domain.RawRecord) error {
	if w.records == nil {
		w.records = make(map[domain.UploadKind][]domain.RawRecord)
	}
	w.records[kind] = append(w.records[kind], records...)
	return nil
}

func (w *stagedWriter) CreateProjections(_ context.Context, projections []domain.Projection) error {
	if w.fail != nil {
		return w.fail
	}
	w.projections = append(w.projections, projections...)
	return nil
}

func (s *stubStore) InTx(_ context.Context, fn func(repository.UploadWriter) error) error {
	staged := &stagedWriter{fail: s.failProjections}
	if err := fn(staged); err != nil {
		return err
	}
	s.uploads = append(s.uploads, staged.uploads...)
	if s.records == nil {
		s.records = make(map[domain.UploadKind][]domain.RawRecord)
	}
	for kind, records := range staged.records {
		s.records[kind] = append(s.records[kind], records...)
	}
	s.projections = append(s.projections, staged.projections...)
	return nil
}

func (s *stubStore) GetByID(_ context.Context, id uuid.UUID) (domain.Upload, error) {
	for _, upload := range s.uploads {
		if upload.ID == id {
			return upload, nil
		}
	}
	return domain.Upload{}, repository.ErrNotFound
}

func (s *stubStore) List(context.Context, domain.UploadFilter, int, int) ([]domain.Upload, int, error) {
	return s.uploads, len(s.uploads), nil
}

func (s *stubStore) Delete(context.Context, uuid.UUID) error {
	return nil
}

type stubUserRepo struct {
	users map[uuid.UUID]domain.User
	err   error
}

func (s *stubUserRepo) GetByID(_ context.Context, id uuid.UUID) (domain.User, error) {
	if s.err != nil {
		return domain.User{}, s.err
	}
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return user, nil
}

type stubLogRepo struct {
	entries []domain.IngestionLogEntry
}

func (s *stubLogRepo) Record(_ context.Context, entry domain.IngestionLogEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubLogRepo) List(context.Context, int, int) ([]domain.IngestionLogEntry, error) {
	return s.entries, nil
}

// fakeWorkbook serves fixed sheets without an xlsx package.
type fakeWorkbook struct {
	sheets map[string][][]string
	order  []string
}

func (f *fakeWorkbook) SheetNames() []string { return f.order }

func (f *fakeWorkbook) Dimensions(sheet string) (int, int, error) {
	rows := f.sheets[sheet]
	cols := 0
	for _, row := range rows {
		if len(row) > cols {
			cols = len(row)
		}
	}
	return len(rows), cols, nil
}

func (f *fakeWorkbook) CellText(sheet string, row, col int) (string, error) {
	rows := f.sheets[sheet]
	if row < 1 || row > len(rows) || col < 1 || col > len(rows[row-1]) {
		return "", nil
	}
	return rows[row-1][col-1], nil
}

func (f *fakeWorkbook) Close() error { return nil }

type serviceFixture struct {
	service *Service
	store   *stubStore
	logs    *stubLogRepo
	userID  uuid.UUID
	now     time.Time
}

func newServiceFixture(opts ...Option) *serviceFixture {
	userID := uuid.New()
	now := time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)
	store := &stubStore{}
	logs := &stubLogRepo{}
	users := &stubUserRepo{users: map[uuid.UUID]domain.User{
		userID: {ID: userID, Username: "ana", Role: "monitorista", IsActive: true},
	}}
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return &serviceFixture{
		service: NewService(store, users, logs, opts...),
		store:   store,
		logs:    logs,
		userID:  userID,
		now:     now,
	}
}

// buildWorkbook writes rows into the named sheets of a new xlsx package.
func buildWorkbook(t *testing.T, sheets map[string][][]any, order ...string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			t.Fatalf("new sheet: %v", err)
		}
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				t.Fatalf("write row: %v", err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestIngest_EndToEnd(t *testing.T) {
	fx := newServiceFixture()
	payload := buildWorkbook(t, map[string][][]any{
		"Reporte": {
			{"Almacén", "Monitorista Quien Reporta", "Fecha de Envío"},
			{"Centro", "Ana", "01/02/2024"},
			{"", "", ""},
		},
	}, "Reporte")

	summary, err := fx.service.Ingest(context.Background(), Request{
		Kind:     " Detecciones ",
		FileName: "detecciones.xlsx",
		UserID:   fx.userID,
		Data:     bytes.NewReader(payload),
	})
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if summary.TotalRows != 1 || summary.Kind != domain.UploadKindDetecciones {
		t.Fatalf("unexpected summary %+v", summary)
	}

	if len(fx.store.uploads) != 1 {
		t.Fatalf("expected one manifest, got %d", len(fx.store.uploads))
	}
	upload := fx.store.uploads[0]
	if upload.ID != summary.UploadID || upload.TotalRows != 1 || upload.SheetName != "Reporte" || upload.FileName != "detecciones.xlsx" {
		t.Fatalf("unexpected manifest %+v", upload)
	}
	if strings.Join(upload.Headers, "|") != "Almacén|Monitorista Quien Reporta|Fecha de Envío" {
		t.Fatalf("unexpected headers %v", upload.Headers)
	}
	if upload.UploadedByUserID != fx.userID || !upload.UploadedAt.Equal(fx.now) {
		t.Fatalf("expected uploader and timestamp to be recorded")
	}

	records := fx.store.records[domain.UploadKindDetecciones]
	if len(records) != 1 || len(fx.store.records[domain.UploadKindRevisiones]) != 0 {
		t.Fatalf("expected one detection row, got %+v", fx.store.records)
	}
	if records[0].RowIndex != 2 || records[0].UploadID != upload.ID {
		t.Fatalf("unexpected raw row %+v", records[0])
	}
	if strings.Join(records[0].Data.Keys(), "|") != strings.Join(upload.Headers, "|") {
		t.Fatalf("raw row keys %v differ from manifest headers", records[0].Data.Keys())
	}

	if len(fx.store.projections) != 1 {
		t.Fatalf("expected one projection, got %d", len(fx.store.projections))
	}
	p := fx.store.projections[0]
	if p.Almacen == nil || *p.Almacen != "Centro" {
		t.Fatalf("unexpected almacen %v", p.Almacen)
	}
	if p.MonitoristaReporta == nil || *p.MonitoristaReporta != "Ana" {
		t.Fatalf("unexpected monitorista %v", p.MonitoristaReporta)
	}
	if p.FechaEnvio == nil || *p.FechaEnvio != "2024-02-01" {
		t.Fatalf("unexpected fechaEnvio %v", p.FechaEnvio)
	}
	if p.UploadID == nil || *p.UploadID != upload.ID || p.RowIndex != records[0].RowIndex {
		t.Fatalf("projection does not pair with its raw row: %+v", p)
	}
}

func TestIngest_SkipsBlankRows(t *testing.T) {
	fx := newServiceFixture()
	payload := buildWorkbook(t, map[string][][]any{
		"Hoja1": {
			{"Almacén", "Coordinador"},
			{"Norte", "Luis"},
			{"  ", " "},
			{"Sur", "Marta"},
		},
	}, "Hoja1")

	summary, err := fx.service.Ingest(context.Background(), Request{
		Kind:   "revisiones",
		UserID: fx.userID,
		Data:   bytes.NewReader(payload),
	})
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if summary.TotalRows != 2 {
		t.Fatalf("expected 2 rows, got %d", summary.TotalRows)
	}
	records := fx.store.records[domain.UploadKindRevisiones]
	if len(records) != 2 || records[0].RowIndex != 2 || records[1].RowIndex != 4 {
		t.Fatalf("expected rows 2 and 4 to be kept, got %+v", records)
	}
}

func TestIngest_SynthesizesMissingHeaders(t *testing.T) {
	fx := newServiceFixture()
	payload := buildWorkbook(t, map[string][][]any{
		"Hoja1": {
			{"Almacén", "Monitorista", "", "Coordinador"},
			{"Norte", "Ana", "valor sin encabezado", "Luis"},
		},
	}, "Hoja1")

	if _, err := fx.service.Ingest(context.Background(), Request{
		Kind:   "detecciones",
		UserID: fx.userID,
		Data:   bytes.NewReader(payload),
	}); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	headers := fx.store.uploads[0].Headers
	if len(headers) != 4 || headers[2] != "Columna3" {
		t.Fatalf("expected synthesized Columna3, got %v", headers)
	}
	value, ok := fx.store.records[domain.UploadKindDetecciones][0].Data.Get("Columna3")
	if !ok || value == nil || *value != "valor sin encabezado" {
		t.Fatalf("expected value under Columna3, got %v (ok=%t)", value, ok)
	}
}

func TestIngest_DisambiguatesDuplicateHeaders(t *testing.T) {
	fx := newServiceFixture()
	payload := buildWorkbook(t, map[string][][]any{
		"Hoja1": {
			{"Almacén", "Observaciones", "Observaciones"},
			{"Norte", "primera nota", "segunda nota"},
		},
	}, "Hoja1")

	if _, err := fx.service.Ingest(context.Background(), Request{
		Kind:   "detecciones",
		UserID: fx.userID,
		Data:   bytes.NewReader(payload),
	}); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	headers := fx.store.uploads[0].Headers
	if strings.Join(headers, "|") != "Almacén|Observaciones|Observaciones_3" {
		t.Fatalf("unexpected headers %v", headers)
	}
	data := fx.store.records[domain.UploadKindDetecciones][0].Data
	if strings.Join(data.Keys(), "|") != strings.Join(headers, "|") {
		t.Fatalf("raw row keys %v differ from manifest headers", data.Keys())
	}
	for key, want := range map[string]string{
		"Observaciones":   "primera nota",
		"Observaciones_3": "segunda nota",
	} {
		value, ok := data.Get(key)
		if !ok || value == nil || *value != want {
			t.Fatalf("expected %q under %s, got %v (ok=%t)", want, key, value, ok)
		}
	}
}

func TestSelectSheet_KeepsHeaderTextAndAvoidsCollisions(t *testing.T) {
	workbook := &fakeWorkbook{
		order: []string{"Hoja1"},
		sheets: map[string][][]string{"Hoja1": {
			{" Almacén ", "", "Columna2", "Columna2"},
			{"Norte", "a", "b", "c"},
		}},
	}

	table, err := selectSheet(workbook)
	if err != nil {
		t.Fatalf("selectSheet returned error: %v", err)
	}
	want := []string{" Almacén ", "Columna2", "Columna2_3", "Columna2_4"}
	if strings.Join(table.headers, "|") != strings.Join(want, "|") {
		t.Fatalf("expected headers %q, got %q", want, table.headers)
	}
}

func TestIngest_SelectsFirstSheetWithData(t *testing.T) {
	fx := newServiceFixture()
	payload := buildWorkbook(t, map[string][][]any{
		"Portada": {{"Reporte mensual"}},
		"Datos": {
			{"Almacén"},
			{"Norte"},
		},
	}, "Portada", "Datos")

	if _, err := fx.service.Ingest(context.Background(), Request{
		Kind:   "detecciones",
		UserID: fx.userID,
		Data:   bytes.NewReader(payload),
	}); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if fx.store.uploads[0].SheetName != "Datos" {
		t.Fatalf("expected Datos sheet, got %q", fx.store.uploads[0].SheetName)
	}
}

func TestIngest_AtomicOnProjectionFailure(t *testing.T) {
	fx := newServiceFixture()
	fx.store.failProjections = errors.New("disk full")
	payload := buildWorkbook(t, map[string][][]any{
		"Hoja1": {
			{"Almacén"},
			{"Norte"},
			{"Sur"},
		},
	}, "Hoja1")

	_, err := fx.service.Ingest(context.Background(), Request{
		Kind:     "detecciones",
		FileName: "roto.xlsx",
		UserID:   fx.userID,
		Data:     bytes.NewReader(payload),
	})
	if err == nil {
		t.Fatalf("expected persistence error")
	}
	if IsValidationError(err) || errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected an internal error, got %v", err)
	}

	if len(fx.store.uploads) != 0 || len(fx.store.records[domain.UploadKindDetecciones]) != 0 || len(fx.store.projections) != 0 {
		t.Fatalf("expected nothing to be stored, got uploads=%d records=%d projections=%d",
			len(fx.store.uploads), len(fx.store.records[domain.UploadKindDetecciones]), len(fx.store.projections))
	}
	if len(fx.logs.entries) != 1 || fx.logs.entries[0].FileName != "roto.xlsx" {
		t.Fatalf("expected the failure to be logged, got %+v", fx.logs.entries)
	}
}

func TestIngest_ValidationErrors(t *testing.T) {
	fx := newServiceFixture()
	headerOnly := buildWorkbook(t, map[string][][]any{"Hoja1": {{"Almacén"}}}, "Hoja1")
	blankRows := buildWorkbook(t, map[string][][]any{"Hoja1": {{"Almacén"}, {" "}}}, "Hoja1")
	valid := buildWorkbook(t, map[string][][]any{"Hoja1": {{"Almacén"}, {"Norte"}}}, "Hoja1")

	cases := []struct {
		name string
		req  Request
		want error
	}{
		{name: "nil data", req: Request{Kind: "detecciones", UserID: fx.userID}, want: ErrMissingFile},
		{name: "empty data", req: Request{Kind: "detecciones", UserID: fx.userID, Data: bytes.NewReader(nil)}, want: ErrMissingFile},
		{name: "bad kind", req: Request{Kind: "incidencias", UserID: fx.userID, Data: bytes.NewReader(valid)}, want: ErrInvalidKind},
		{name: "header only", req: Request{Kind: "detecciones", UserID: fx.userID, Data: bytes.NewReader(headerOnly)}, want: ErrNoUsableSheet},
		{name: "only blank rows", req: Request{Kind: "detecciones", UserID: fx.userID, Data: bytes.NewReader(blankRows)}, want: ErrNoDataRows},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.service.Ingest(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !IsValidationError(err) {
				t.Fatalf("expected a validation error, got %v", err)
			}
		})
	}
	if len(fx.store.uploads) != 0 {
		t.Fatalf("expected nothing stored after validation errors")
	}
}

func TestIngest_WorkbookShapeErrors(t *testing.T) {
	cases := []struct {
		name     string
		workbook *fakeWorkbook
		want     error
	}{
		{name: "no worksheets", workbook: &fakeWorkbook{}, want: ErrNoWorksheets},
		{
			name: "no columns",
			workbook: &fakeWorkbook{
				order:  []string{"Hoja1"},
				sheets: map[string][][]string{"Hoja1": {{}, {}}},
			},
			want: ErrNoColumns,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newServiceFixture(WithWorkbookOpener(func(io.Reader) (Workbook, error) {
				return tc.workbook, nil
			}))
			_, err := fx.service.Ingest(context.Background(), Request{
				Kind:   "detecciones",
				UserID: fx.userID,
				Data:   strings.NewReader("x"),
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestIngest_Unauthorized(t *testing.T) {
	fx := newServiceFixture()
	inactiveID := uuid.New()
	users := &stubUserRepo{users: map[uuid.UUID]domain.User{
		inactiveID: {ID: inactiveID, IsActive: false},
	}}
	service := NewService(fx.store, users, fx.logs)
	valid := buildWorkbook(t, map[string][][]any{"Hoja1": {{"Almacén"}, {"Norte"}}}, "Hoja1")

	for name, userID := range map[string]uuid.UUID{
		"nil user":      uuid.Nil,
		"unknown user":  uuid.New(),
		"inactive user": inactiveID,
	} {
		_, err := service.Ingest(context.Background(), Request{Kind: "detecciones", UserID: userID, Data: bytes.NewReader(valid)})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: expected ErrUnauthorized, got %v", name, err)
		}
	}
}

func TestIngest_CorruptWorkbookIsInternal(t *testing.T) {
	fx := newServiceFixture()

	_, err := fx.service.Ingest(context.Background(), Request{
		Kind:   "detecciones",
		UserID: fx.userID,
		Data:   strings.NewReader("Almacén,Monitorista\nNorte,Ana\n"),
	})
	if err == nil {
		t.Fatalf("expected error for non-xlsx payload")
	}
	if IsValidationError(err) {
		t.Fatalf("expected corrupt workbook to be an internal error, got %v", err)
	}
}

func TestIngest_CancelledContextStoresNothing(t *testing.T) {
	fx := newServiceFixture()
	valid := buildWorkbook(t, map[string][][]any{"Hoja1": {{"Almacén"}, {"Norte"}}}, "Hoja1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.service.Ingest(ctx, Request{Kind: "detecciones", UserID: fx.userID, Data: bytes.NewReader(valid)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(fx.store.uploads) != 0 {
		t.Fatalf("expected nothing stored")
	}
}

func TestIngest_ExactOnlyMatching(t *testing.T) {
	fx := newServiceFixture(WithMatchFunc(ExactOnly))
	payload := buildWorkbook(t, map[string][][]any{
		"Hoja1": {
			{"Almacén Destino", "Monitorista"},
			{"Norte", "Ana"},
		},
	}, "Hoja1")

	if _, err := fx.service.Ingest(context.Background(), Request{Kind: "detecciones", UserID: fx.userID, Data: bytes.NewReader(payload)}); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	p := fx.store.projections[0]
	if p.Almacen == nil || *p.Almacen != "Norte" {
		t.Fatalf("expected exact ALMACEN DESTINO candidate to match, got %v", p.Almacen)
	}
	if p.MonitoristaReporta == nil || *p.MonitoristaReporta != "Ana" {
		t.Fatalf("expected exact MONITORISTA candidate to match, got %v", p.MonitoristaReporta)
	}
}
