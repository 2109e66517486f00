package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/opsreport/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type projectionRepository struct {
	pool *pgxpool.Pool
}

// NewProjectionRepository wires a projection repository backed by pgxpool.
func NewProjectionRepository(pool *pgxpool.Pool) ProjectionRepository {
	return &projectionRepository{pool: pool}
}

func (r *projectionRepository) ListByUploads(ctx context.Context, uploadIDs []uuid.UUID) ([]domain.Projection, error) {
	if len(uploadIDs) == 0 {
		return []domain.Projection{}, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+projectionSelectList+`
		 FROM `+projectionsTable+` p
		 WHERE p.upload_id = ANY($1)
		 ORDER BY p.upload_id, p.row_index`,
		uploadIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list projections: %w", err)
	}
	return collectProjections(rows)
}

func (r *projectionRepository) ListByKeys(ctx context.Context, keys []domain.ProjectionKey) ([]domain.Projection, error) {
	if len(keys) == 0 {
		return []domain.Projection{}, nil
	}

	uploadIDs := make([]uuid.UUID, len(keys))
	rowIndexes := make([]int32, len(keys))
	for i, key := range keys {
		uploadIDs[i] = key.UploadID
		rowIndexes[i] = int32(key.RowIndex)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+projectionSelectList+`
		 FROM `+projectionsTable+` p
		 JOIN unnest($1::uuid[], $2::int[]) AS k(upload_id, row_index)
		   ON p.upload_id = k.upload_id AND p.row_index = k.row_index
		 ORDER BY p.upload_id, p.row_index`,
		uploadIDs, rowIndexes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list projections by key: %w", err)
	}
	return collectProjections(rows)
}

func collectProjections(rows pgx.Rows) ([]domain.Projection, error) {
	defer rows.Close()

	projections := []domain.Projection{}
	for rows.Next() {
		var (
			p        domain.Projection
			uploadID pgtype.UUID
			mes      pgtype.Date
		)
		if err := rows.Scan(
			&p.ID,
			&uploadID,
			&p.SheetName,
			&p.Columna1,
			&p.Columna2,
			&p.Columna3,
			&p.RowIndex,
			&mes,
			&p.MesTexto,
			&p.Almacen,
			&p.MonitoristaReporta,
			&p.CoordinadorTurno,
			&p.FechaEnvio,
			&p.FechaCreacion,
			&p.UploadedByUserID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan projection: %w", err)
		}
		if uploadID.Valid {
			id := uuid.UUID(uploadID.Bytes)
			p.UploadID = &id
		}
		if mes.Valid {
			p.Mes = mes.Time
		}
		projections = append(projections, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projections: %w", err)
	}

	return projections, nil
}

func (r *projectionRepository) Summarize(ctx context.Context, kind *domain.UploadKind, from, to *time.Time) (domain.Summary, error) {
	var kindArg, fromArg, toArg any
	if kind != nil {
		kindArg = string(*kind)
	}
	if from != nil {
		fromArg = *from
	}
	if to != nil {
		toArg = *to
	}

	scope := `FROM ` + projectionsTable + ` p
		 JOIN ` + uploadsTable + ` u ON u.id = p.upload_id
		 WHERE ($1::text IS NULL OR u.upload_type = $1)
		   AND ($2::date IS NULL OR p.mes >= $2::date)
		   AND ($3::date IS NULL OR p.mes <= $3::date)`

	summary := domain.Summary{ByAlmacen: []domain.SummaryBucket{}, ByMes: []domain.SummaryBucket{}}

	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) `+scope, kindArg, fromArg, toArg).Scan(&summary.Total); err != nil {
		return domain.Summary{}, fmt.Errorf("failed to count projections: %w", err)
	}

	byAlmacen, err := r.buckets(ctx,
		`SELECT COALESCE(NULLIF(p.almacen, ''), 'Sin almacén') AS label, COUNT(*) `+scope+`
		 GROUP BY label ORDER BY COUNT(*) DESC, label`,
		kindArg, fromArg, toArg,
	)
	if err != nil {
		return domain.Summary{}, err
	}
	summary.ByAlmacen = byAlmacen

	byMes, err := r.buckets(ctx,
		`SELECT to_char(p.mes, 'YYYY-MM') AS label, COUNT(*) `+scope+`
		 GROUP BY label ORDER BY label`,
		kindArg, fromArg, toArg,
	)
	if err != nil {
		return domain.Summary{}, err
	}
	summary.ByMes = byMes

	return summary, nil
}

func (r *projectionRepository) buckets(ctx context.Context, query string, args ...any) ([]domain.SummaryBucket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize projections: %w", err)
	}
	defer rows.Close()

	buckets := []domain.SummaryBucket{}
	for rows.Next() {
		var bucket domain.SummaryBucket
		if err := rows.Scan(&bucket.Label, &bucket.Count); err != nil {
			return nil, fmt.Errorf("failed to scan summary bucket: %w", err)
		}
		buckets = append(buckets, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate summary buckets: %w", err)
	}
	return buckets, nil
}
