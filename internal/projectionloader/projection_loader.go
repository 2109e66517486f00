package projectionloader

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/opsreport/internal/domain"
	"github.com/rpattn/opsreport/internal/repository"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"
)

// ProjectionLoader batches projection lookups for raw rows of a request.
type ProjectionLoader struct {
	Loader *dataloader.Loader
}

// KeyFor builds the loader key of the projection paired with a raw row.
func KeyFor(uploadID uuid.UUID, rowIndex int) dataloader.Key {
	return dataloader.StringKey(uploadID.String() + ":" + strconv.Itoa(rowIndex))
}

func parseKey(raw string) (domain.ProjectionKey, error) {
	idPart, rowPart, ok := strings.Cut(raw, ":")
	if !ok {
		return domain.ProjectionKey{}, fmt.Errorf("invalid projection key %q", raw)
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return domain.ProjectionKey{}, fmt.Errorf("invalid UUID: %w", err)
	}
	row, err := strconv.Atoi(rowPart)
	if err != nil {
		return domain.ProjectionKey{}, fmt.Errorf("invalid row index: %w", err)
	}
	return domain.ProjectionKey{UploadID: id, RowIndex: row}, nil
}

func NewProjectionLoader(repo repository.ProjectionRepository) *ProjectionLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))

		parsed := make([]domain.ProjectionKey, len(keys))
		seen := make(map[domain.ProjectionKey]struct{}, len(keys))
		unique := make([]domain.ProjectionKey, 0, len(keys))
		for i, k := range keys {
			key, err := parseKey(k.String())
			if err != nil {
				for j := range results {
					results[j] = &dataloader.Result{Error: err}
				}
				return results
			}
			parsed[i] = key
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				unique = append(unique, key)
			}
		}

		projections, err := repo.ListByKeys(ctx, unique)
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		byKey := make(map[domain.ProjectionKey]domain.Projection, len(projections))
		for _, p := range projections {
			key, ok := p.Key()
			if !ok {
				continue
			}
			if _, dup := byKey[key]; !dup {
				byKey[key] = p
			}
		}

		// Results follow key order; rows without a projection resolve to nil.
		for i, key := range parsed {
			if p, ok := byKey[key]; ok {
				p := p
				results[i] = &dataloader.Result{Data: &p}
			} else {
				results[i] = &dataloader.Result{Data: (*domain.Projection)(nil)}
			}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &ProjectionLoader{Loader: loader}
}

// LoadMany resolves the projections of records, index-aligned with the input.
func LoadMany(ctx context.Context, loader *dataloader.Loader, records []domain.RawRecord) ([]*domain.Projection, error) {
	if len(records) == 0 {
		return nil, nil
	}
	keys := make(dataloader.Keys, len(records))
	for i, rec := range records {
		keys[i] = KeyFor(rec.UploadID, rec.RowIndex)
	}

	data, errs := loader.LoadMany(ctx, keys)()
	out := make([]*domain.Projection, len(records))
	for i := range records {
		if i < len(errs) && errs[i] != nil {
			return nil, fmt.Errorf("failed to load projection: %w", errs[i])
		}
		if i < len(data) {
			out[i], _ = data[i].(*domain.Projection)
		}
	}
	return out, nil
}
