package api

import (
	"context"
	"time"
)

const defaultQueryTimeout = 15 * time.Second

// WithQueryTimeout derives a context bounded by the default database query
// timeout from the given request context
func WithQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}
