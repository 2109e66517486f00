package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/opsreport/internal/db"
	"github.com/rpattn/opsreport/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type recordRepository struct {
	pool *pgxpool.Pool
}

// NewRecordRepository wires a raw row repository backed by pgxpool.
func NewRecordRepository(pool *pgxpool.Pool) RecordRepository {
	return &recordRepository{pool: pool}
}

func (r *recordRepository) List(ctx context.Context, kind domain.UploadKind, filter domain.RecordFilter, limit int, offset int) ([]domain.RawRecord, int, error) {
	table, err := recordTable(kind)
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query, args := buildRecordListQuery(table, filter, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list %s rows: %w", table, err)
	}
	defer rows.Close()

	records := []domain.RawRecord{}
	total := 0
	for rows.Next() {
		var (
			record     domain.RawRecord
			totalCount int64
		)
		if err := rows.Scan(&record.ID, &record.UploadID, &record.RowIndex, &record.Data, &totalCount); err != nil {
			return nil, 0, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		record.Kind = kind
		total = int(totalCount)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate %s rows: %w", table, err)
	}

	return records, total, nil
}

func (r *recordRepository) ListByUpload(ctx context.Context, kind domain.UploadKind, uploadID uuid.UUID) ([]domain.RawRecord, error) {
	table, err := recordTable(kind)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, upload_id, row_index, data_json FROM `+table+` WHERE upload_id = $1 ORDER BY row_index`,
		uploadID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s rows for upload: %w", table, err)
	}
	defer rows.Close()

	records := []domain.RawRecord{}
	for rows.Next() {
		var record domain.RawRecord
		if err := rows.Scan(&record.ID, &record.UploadID, &record.RowIndex, &record.Data); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		record.Kind = kind
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", table, err)
	}
	return records, nil
}

func (r *recordRepository) Delete(ctx context.Context, kind domain.UploadKind, id uuid.UUID) error {
	table, err := recordTable(kind)
	if err != nil {
		return err
	}

	return db.RunInTx(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			uploadID uuid.UUID
			rowIndex int
		)
		err := tx.QueryRow(ctx,
			`DELETE FROM `+table+` WHERE id = $1 RETURNING upload_id, row_index`,
			id,
		).Scan(&uploadID, &rowIndex)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%s row %s: %w", table, id, ErrNotFound)
			}
			return fmt.Errorf("failed to delete %s row: %w", table, err)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM `+projectionsTable+` WHERE upload_id = $1 AND row_index = $2`,
			uploadID, rowIndex,
		); err != nil {
			return fmt.Errorf("failed to delete projection row: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE `+uploadsTable+` SET total_rows = GREATEST(total_rows - 1, 0) WHERE id = $1`,
			uploadID,
		); err != nil {
			return fmt.Errorf("failed to decrement upload row count: %w", err)
		}
		return nil
	})
}

// buildRecordListQuery joins the raw row table to its projections so rows
// can be filtered on the resolved canonical fields.
func buildRecordListQuery(table string, filter domain.RecordFilter, limit int, offset int) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	addArg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UploadID != nil {
		conditions = append(conditions, "r.upload_id = "+addArg(*filter.UploadID))
	}
	if value := strings.TrimSpace(filter.Almacen); value != "" {
		conditions = append(conditions, "p.almacen ILIKE "+addArg("%"+value+"%"))
	}
	if value := strings.TrimSpace(filter.Monitorista); value != "" {
		conditions = append(conditions, "p.monitorista_reporta ILIKE "+addArg("%"+value+"%"))
	}
	if value := strings.TrimSpace(filter.Coordinador); value != "" {
		conditions = append(conditions, "p.coordinador_turno ILIKE "+addArg("%"+value+"%"))
	}
	if filter.MesDesde != nil {
		conditions = append(conditions, "p.mes >= "+addArg(*filter.MesDesde)+"::date")
	}
	if filter.MesHasta != nil {
		conditions = append(conditions, "p.mes <= "+addArg(*filter.MesHasta)+"::date")
	}

	var b strings.Builder
	b.WriteString("SELECT r.id, r.upload_id, r.row_index, r.data_json, COUNT(*) OVER() AS total_count\n")
	b.WriteString("FROM " + table + " r\n")
	b.WriteString("LEFT JOIN " + projectionsTable + " p ON p.upload_id = r.upload_id AND p.row_index = r.row_index\n")
	if len(conditions) > 0 {
		b.WriteString("WHERE " + strings.Join(conditions, " AND ") + "\n")
	}
	b.WriteString("ORDER BY r.upload_id, r.row_index\n")
	b.WriteString("LIMIT " + addArg(limit) + " OFFSET " + addArg(offset))

	return b.String(), args
}
