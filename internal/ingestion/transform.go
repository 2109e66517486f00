package ingestion

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/opsreport/internal/domain"

	"github.com/google/uuid"
)

// Candidate headers per canonical field, highest priority first.
var (
	monthCandidates       = []string{"MES", "MES INCIDENCIA", "FECHA", "MES REPORTE"}
	almacenCandidates     = []string{"ALMACEN", "ALMACEN DESTINO", "ALMACEN ORIGEN"}
	monitoristaCandidates = []string{"MONITORISTA QUIEN REPORTA", "MONITORISTA", "REPORTA"}
	coordinadorCandidates = []string{"COORDINADOR EN TURNO", "COORDINADOR", "COORD"}
	fechaEnvioCandidates  = []string{
		"FECHA DE ENVIO",
		"FECHA DE ENVÍO",
		"FECHA ENVIO",
		"FECHA ENVÍO",
		"FECHA EN ENVIO",
		"FECHA EN ENVÍO",
		"FECHA DE ENVIO DE REPORTE",
		"FECHA ENVIO REPORTE",
		"FECHA Y HORA DE ENVIO",
		"FECHA DE ENVIADO",
		"ENVIO",
		"ENVÍO",
	}
)

// SheetRow is one data row of the selected worksheet.
type SheetRow struct {
	// Index is the 1-based row number in the sheet; the header is row 1.
	Index   int
	Headers []string
	// Cells holds one value per header, in column order.
	Cells []string
}

// IsBlank reports whether every cell is empty or whitespace.
func (r SheetRow) IsBlank() bool {
	for _, cell := range r.Cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func (r SheetRow) cell(col int) string {
	if col < 0 || col >= len(r.Cells) {
		return ""
	}
	return r.Cells[col]
}

// UploadContext carries the manifest attributes every row of an upload shares.
type UploadContext struct {
	UploadID   uuid.UUID
	SheetName  string
	UploadedAt time.Time
	UploadedBy uuid.UUID
}

// Transformer turns sheet rows into the raw row payload and its projection.
type Transformer struct {
	resolver Resolver
}

// NewTransformer builds a transformer resolving fields with resolver.
func NewTransformer(resolver Resolver) *Transformer {
	return &Transformer{resolver: resolver}
}

// Transform builds the stored row payload and the structured projection for
// row. Fields that cannot be resolved stay nil; nothing here fails.
func (t *Transformer) Transform(row SheetRow, upload UploadContext) (domain.RowData, domain.Projection) {
	data := domain.NewRowData(len(row.Headers))
	lookup := NewLookup(len(row.Headers))
	for col, header := range row.Headers {
		value := row.cell(col)
		data.Set(header, cellValue(value))
		lookup.Add(header, value)
	}

	uploadID := upload.UploadID
	projection := domain.Projection{
		ID:               uuid.New(),
		UploadID:         &uploadID,
		SheetName:        upload.SheetName,
		Columna1:         optionalString(row.cell(0)),
		Columna2:         optionalString(row.cell(1)),
		Columna3:         optionalInt(row.cell(2)),
		RowIndex:         row.Index,
		FechaCreacion:    upload.UploadedAt,
		UploadedByUserID: upload.UploadedBy,
	}

	mesTexto, _ := t.resolver.Resolve(lookup, monthCandidates...)
	projection.MesTexto = optionalString(mesTexto)
	projection.Mes = ParseMonthValue(mesTexto, upload.UploadedAt)

	if value, ok := t.resolver.Resolve(lookup, almacenCandidates...); ok {
		projection.Almacen = optionalString(value)
	}
	if value, ok := t.resolver.Resolve(lookup, monitoristaCandidates...); ok {
		projection.MonitoristaReporta = optionalString(value)
	}
	if value, ok := t.resolver.Resolve(lookup, coordinadorCandidates...); ok {
		projection.CoordinadorTurno = optionalString(value)
	}
	if value, ok := t.resolver.Resolve(lookup, fechaEnvioCandidates...); ok {
		projection.FechaEnvio = optionalString(normalizeFechaEnvio(value))
	}

	return data, projection
}

// normalizeFechaEnvio renders parseable dates as yyyy-MM-dd and passes
// anything else through trimmed.
func normalizeFechaEnvio(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if parsed, ok := ParseFlexibleDate(trimmed); ok {
		return FormatDate(parsed)
	}
	return trimmed
}

// cellValue keeps the cell text as read; blank cells are stored as null.
func cellValue(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	v := value
	return &v
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// optionalInt accepts 32-bit integers and whole floats such as "3.0".
func optionalInt(value string) *int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	if i64, err := strconv.ParseInt(trimmed, 10, 32); err == nil {
		i := int(i64)
		return &i
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && math.Mod(f, 1) == 0 && math.Abs(f) <= math.MaxInt32 {
		i := int(f)
		return &i
	}
	return nil
}
