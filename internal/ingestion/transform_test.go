package ingestion

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func transformFixture() UploadContext {
	return UploadContext{
		UploadID:   uuid.New(),
		SheetName:  "Hoja1",
		UploadedAt: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
		UploadedBy: uuid.New(),
	}
}

func TestTransform_ResolvesCanonicalFields(t *testing.T) {
	headers := []string{"Folio", "Unidad", "Cantidad", "Mes Incidencia", "Almacén Destino", "Monitorista", "Coordinador en Turno", "Fecha de Envío"}
	row := SheetRow{
		Index:   4,
		Headers: headers,
		Cells:   []string{"F-001", " 1234 ", "3", "marzo 2024", "CEDIS Norte", " Ana ", "Luis", "01/02/2024"},
	}
	upload := transformFixture()

	data, p := NewTransformer(NewResolver(nil)).Transform(row, upload)

	if p.UploadID == nil || *p.UploadID != upload.UploadID {
		t.Fatalf("expected upload id %s, got %v", upload.UploadID, p.UploadID)
	}
	if p.RowIndex != 4 || p.SheetName != "Hoja1" {
		t.Fatalf("unexpected row index/sheet %d %q", p.RowIndex, p.SheetName)
	}
	if p.Columna1 == nil || *p.Columna1 != "F-001" {
		t.Fatalf("unexpected columna1 %v", p.Columna1)
	}
	if p.Columna2 == nil || *p.Columna2 != "1234" {
		t.Fatalf("expected trimmed columna2, got %v", p.Columna2)
	}
	if p.Columna3 == nil || *p.Columna3 != 3 {
		t.Fatalf("expected columna3 3, got %v", p.Columna3)
	}
	if !p.Mes.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected mes 2024-03-01, got %s", p.Mes)
	}
	if p.MesTexto == nil || *p.MesTexto != "marzo 2024" {
		t.Fatalf("unexpected mesTexto %v", p.MesTexto)
	}
	if p.Almacen == nil || *p.Almacen != "CEDIS Norte" {
		t.Fatalf("unexpected almacen %v", p.Almacen)
	}
	if p.MonitoristaReporta == nil || *p.MonitoristaReporta != "Ana" {
		t.Fatalf("unexpected monitorista %v", p.MonitoristaReporta)
	}
	if p.CoordinadorTurno == nil || *p.CoordinadorTurno != "Luis" {
		t.Fatalf("unexpected coordinador %v", p.CoordinadorTurno)
	}
	if p.FechaEnvio == nil || *p.FechaEnvio != "2024-02-01" {
		t.Fatalf("unexpected fechaEnvio %v", p.FechaEnvio)
	}
	if !p.FechaCreacion.Equal(upload.UploadedAt) || p.UploadedByUserID != upload.UploadedBy {
		t.Fatalf("expected upload timestamp and user to be copied")
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal row data: %v", err)
	}
	want := `{"Folio":"F-001","Unidad":" 1234 ","Cantidad":"3","Mes Incidencia":"marzo 2024","Almacén Destino":"CEDIS Norte","Monitorista":" Ana ","Coordinador en Turno":"Luis","Fecha de Envío":"01/02/2024"}`
	if string(encoded) != want {
		t.Fatalf("unexpected row data\n got: %s\nwant: %s", encoded, want)
	}
}

func TestTransform_MissingFieldsStayNil(t *testing.T) {
	headers := []string{"Observaciones", "Columna2", "Total"}
	row := SheetRow{Index: 2, Headers: headers, Cells: []string{"sin novedad", "", "3.5"}}
	upload := transformFixture()

	data, p := NewTransformer(NewResolver(nil)).Transform(row, upload)

	if p.Almacen != nil || p.MonitoristaReporta != nil || p.CoordinadorTurno != nil || p.FechaEnvio != nil || p.MesTexto != nil {
		t.Fatalf("expected unresolved fields to be nil, got %+v", p)
	}
	if !p.Mes.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected mes to fall back to upload month, got %s", p.Mes)
	}
	if p.Columna2 != nil {
		t.Fatalf("expected blank columna2 to be nil")
	}
	if p.Columna3 != nil {
		t.Fatalf("expected non-integer columna3 to be nil, got %d", *p.Columna3)
	}
	if value, ok := data.Get("Columna2"); !ok || value != nil {
		t.Fatalf("expected blank cell stored as null, got %v (ok=%t)", value, ok)
	}
}

func TestTransform_UnparseableFechaEnvioPassesThrough(t *testing.T) {
	headers := []string{"Fecha Envio"}
	row := SheetRow{Index: 2, Headers: headers, Cells: []string{"  pendiente de confirmar "}}

	_, p := NewTransformer(NewResolver(nil)).Transform(row, transformFixture())

	if p.FechaEnvio == nil || *p.FechaEnvio != "pendiente de confirmar" {
		t.Fatalf("expected raw trimmed text, got %v", p.FechaEnvio)
	}
}

func TestTransform_ShortRowsPadWithNull(t *testing.T) {
	headers := []string{"Almacén", "Monitorista", "Coordinador"}
	row := SheetRow{Index: 2, Headers: headers, Cells: []string{"Sur"}}

	data, p := NewTransformer(NewResolver(nil)).Transform(row, transformFixture())

	if data.Len() != 3 {
		t.Fatalf("expected every header as a key, got %v", data.Keys())
	}
	if p.Almacen == nil || *p.Almacen != "Sur" {
		t.Fatalf("unexpected almacen %v", p.Almacen)
	}
	if p.MonitoristaReporta != nil {
		t.Fatalf("expected missing monitorista to be nil")
	}
}

func TestOptionalInt(t *testing.T) {
	cases := []struct {
		in   string
		want *int
	}{
		{in: "42", want: intPtr(42)},
		{in: " -7 ", want: intPtr(-7)},
		{in: "3.0", want: intPtr(3)},
		{in: "3.5", want: nil},
		{in: "abc", want: nil},
		{in: "", want: nil},
		{in: "99999999999", want: nil},
	}
	for _, tc := range cases {
		got := optionalInt(tc.in)
		switch {
		case got == nil && tc.want == nil:
		case got == nil || tc.want == nil || *got != *tc.want:
			t.Fatalf("optionalInt(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func intPtr(v int) *int {
	return &v
}
