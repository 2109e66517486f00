package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/opsreport/internal/db"
	"github.com/rpattn/opsreport/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type uploadRepository struct {
	pool *pgxpool.Pool
}

// NewUploadRepository wires a manifest repository backed by pgxpool.
func NewUploadRepository(pool *pgxpool.Pool) UploadRepository {
	return &uploadRepository{pool: pool}
}

func (r *uploadRepository) InTx(ctx context.Context, fn func(UploadWriter) error) error {
	if r.pool == nil {
		return fmt.Errorf("upload repository not initialized")
	}
	return db.RunInTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&txUploadWriter{tx: tx})
	})
}

func (r *uploadRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Upload, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, upload_type, file_name, sheet_name, headers_json, total_rows, uploaded_at, uploaded_by_user_id
		 FROM `+uploadsTable+`
		 WHERE id = $1`,
		id,
	)
	upload, err := scanUpload(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Upload{}, fmt.Errorf("upload %s: %w", id, ErrNotFound)
		}
		return domain.Upload{}, fmt.Errorf("failed to get upload: %w", err)
	}
	return upload, nil
}

func (r *uploadRepository) List(ctx context.Context, filter domain.UploadFilter, limit int, offset int) ([]domain.Upload, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var kind any
	if filter.Kind != nil {
		kind = string(*filter.Kind)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, upload_type, file_name, sheet_name, headers_json, total_rows, uploaded_at, uploaded_by_user_id,
		        COUNT(*) OVER() AS total_count
		 FROM `+uploadsTable+`
		 WHERE ($1::text IS NULL OR upload_type = $1)
		 ORDER BY uploaded_at DESC
		 LIMIT $2 OFFSET $3`,
		kind, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	uploads := []domain.Upload{}
	total := 0
	for rows.Next() {
		var (
			upload     domain.Upload
			uploadType string
			headers    []byte
			totalCount int64
		)
		if err := rows.Scan(
			&upload.ID,
			&uploadType,
			&upload.FileName,
			&upload.SheetName,
			&headers,
			&upload.TotalRows,
			&upload.UploadedAt,
			&upload.UploadedByUserID,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan upload: %w", err)
		}
		upload.UploadType = domain.UploadKind(uploadType)
		if err := json.Unmarshal(headers, &upload.Headers); err != nil {
			return nil, 0, fmt.Errorf("failed to decode upload headers: %w", err)
		}
		total = int(totalCount)
		uploads = append(uploads, upload)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate uploads: %w", err)
	}

	return uploads, total, nil
}

func (r *uploadRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return db.RunInTx(ctx, r.pool, func(tx pgx.Tx) error {
		var uploadType string
		err := tx.QueryRow(ctx, `DELETE FROM `+uploadsTable+` WHERE id = $1 RETURNING upload_type`, id).Scan(&uploadType)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("upload %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to delete upload: %w", err)
		}

		table, err := recordTable(domain.UploadKind(uploadType))
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE upload_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete %s rows: %w", table, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM `+projectionsTable+` WHERE upload_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete projection rows: %w", err)
		}
		return nil
	})
}

// txUploadWriter writes an ingestion batch with COPY inside one transaction.
type txUploadWriter struct {
	tx pgx.Tx
}

func (w *txUploadWriter) CreateUpload(ctx context.Context, upload domain.Upload) error {
	headers, err := json.Marshal(upload.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}

	_, err = w.tx.Exec(ctx,
		`INSERT INTO `+uploadsTable+` (id, upload_type, file_name, sheet_name, headers_json, total_rows, uploaded_at, uploaded_by_user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		upload.ID,
		string(upload.UploadType),
		upload.FileName,
		upload.SheetName,
		headers,
		upload.TotalRows,
		upload.UploadedAt,
		upload.UploadedByUserID,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}
	return nil
}

func (w *txUploadWriter) CreateRecords(ctx context.Context, kind domain.UploadKind, records []domain.RawRecord) error {
	if len(records) == 0 {
		return nil
	}
	table, err := recordTable(kind)
	if err != nil {
		return err
	}

	copied, err := w.tx.CopyFrom(ctx,
		pgx.Identifier{table},
		[]string{"id", "upload_id", "row_index", "data_json"},
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			record := records[i]
			data, err := json.Marshal(record.Data)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", record.RowIndex, err)
			}
			return []any{record.ID, record.UploadID, record.RowIndex, data}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy %s rows: %w", table, err)
	}
	if int(copied) != len(records) {
		return fmt.Errorf("copied %d of %d %s rows", copied, len(records), table)
	}
	return nil
}

func (w *txUploadWriter) CreateProjections(ctx context.Context, projections []domain.Projection) error {
	if len(projections) == 0 {
		return nil
	}

	copied, err := w.tx.CopyFrom(ctx,
		pgx.Identifier{projectionsTable},
		projectionColumns,
		pgx.CopyFromSlice(len(projections), func(i int) ([]any, error) {
			p := projections[i]
			return []any{
				p.ID,
				nullableUUID(p.UploadID),
				p.SheetName,
				p.Columna1,
				p.Columna2,
				p.Columna3,
				p.RowIndex,
				pgtype.Date{Time: p.Mes, Valid: true},
				p.MesTexto,
				p.Almacen,
				p.MonitoristaReporta,
				p.CoordinadorTurno,
				p.FechaEnvio,
				p.FechaCreacion,
				p.UploadedByUserID,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy projection rows: %w", err)
	}
	if int(copied) != len(projections) {
		return fmt.Errorf("copied %d of %d projection rows", copied, len(projections))
	}
	return nil
}

var projectionColumns = []string{
	"id", "upload_id", "sheet_name", "columna1", "columna2", "columna3", "row_index",
	"mes", "mes_texto", "almacen", "monitorista_reporta", "coordinador_turno",
	"fecha_envio", "fecha_creacion", "uploaded_by_user_id",
}

var projectionSelectList = "p." + strings.Join(projectionColumns, ", p.")

func scanUpload(row pgx.Row) (domain.Upload, error) {
	var (
		upload     domain.Upload
		uploadType string
		headers    []byte
	)
	if err := row.Scan(
		&upload.ID,
		&uploadType,
		&upload.FileName,
		&upload.SheetName,
		&headers,
		&upload.TotalRows,
		&upload.UploadedAt,
		&upload.UploadedByUserID,
	); err != nil {
		return domain.Upload{}, err
	}
	upload.UploadType = domain.UploadKind(uploadType)
	if err := json.Unmarshal(headers, &upload.Headers); err != nil {
		return domain.Upload{}, fmt.Errorf("failed to decode upload headers: %w", err)
	}
	return upload, nil
}

func nullableUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}
