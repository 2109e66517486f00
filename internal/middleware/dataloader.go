package middleware

import (
	"context"
	"net/http"

	"github.com/rpattn/opsreport/internal/projectionloader"
	"github.com/rpattn/opsreport/internal/repository"

	"github.com/graph-gophers/dataloader"
)

type ctxKey string

const projectionLoaderKey ctxKey = "projectionLoader"

// DataLoaderMiddleware attaches a per-request projection loader to the context
func DataLoaderMiddleware(repo repository.ProjectionRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := projectionloader.NewProjectionLoader(repo)
			next.ServeHTTP(w, r.WithContext(WithProjectionLoader(r.Context(), loader.Loader)))
		})
	}
}

// WithProjectionLoader stores loader in ctx.
func WithProjectionLoader(ctx context.Context, loader *dataloader.Loader) context.Context {
	return context.WithValue(ctx, projectionLoaderKey, loader)
}

// ProjectionLoaderFromContext retrieves the dataloader from context
func ProjectionLoaderFromContext(ctx context.Context) *dataloader.Loader {
	if l, ok := ctx.Value(projectionLoaderKey).(*dataloader.Loader); ok {
		return l
	}
	return nil
}
