package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/rpattn/opsreport/internal/domain"

	"github.com/google/uuid"
)

func TestBuildRecordListQuery_NoFilters(t *testing.T) {
	query, args := buildRecordListQuery("detecciones", domain.RecordFilter{}, 25, 50)

	if strings.Contains(query, "WHERE") {
		t.Fatalf("did not expect a WHERE clause: %s", query)
	}
	if !strings.Contains(query, "FROM detecciones r") {
		t.Fatalf("expected detecciones table in query: %s", query)
	}
	if !strings.Contains(query, "LIMIT $1 OFFSET $2") {
		t.Fatalf("expected limit/offset placeholders, got: %s", query)
	}
	if len(args) != 2 || args[0] != 25 || args[1] != 50 {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestBuildRecordListQuery_NumbersPlaceholdersInOrder(t *testing.T) {
	uploadID := uuid.New()
	from := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	filter := domain.RecordFilter{
		UploadID: &uploadID,
		Almacen:  "  Centro ",
		MesDesde: &from,
	}

	query, args := buildRecordListQuery("revisiones", filter, 10, 0)

	for _, fragment := range []string{
		"r.upload_id = $1",
		"p.almacen ILIKE $2",
		"p.mes >= $3::date",
		"LIMIT $4 OFFSET $5",
	} {
		if !strings.Contains(query, fragment) {
			t.Fatalf("expected %q in query:\n%s", fragment, query)
		}
	}
	if len(args) != 5 {
		t.Fatalf("expected 5 args, got %d", len(args))
	}
	if args[1] != "%Centro%" {
		t.Fatalf("expected trimmed ILIKE pattern, got %#v", args[1])
	}
}

func TestRecordTable_RejectsUnknownKind(t *testing.T) {
	if _, err := recordTable(domain.UploadKind("usuarios")); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	table, err := recordTable(domain.UploadKindRevisiones)
	if err != nil || table != "revisiones" {
		t.Fatalf("unexpected table %q err %v", table, err)
	}
}
