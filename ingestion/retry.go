package ingestion

import (
	"context"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/poiesic/annotit/storage"
)

// maxBackoffFactor caps exponential store backoff at this multiple of the base delay.
const maxBackoffFactor = 16

// storePolicy retries store calls up to maxRetries times after the first
// attempt. Context errors abort immediately.
func storePolicy[R any](maxRetries int, delay time.Duration, logger *slog.Logger, op string) retrypolicy.RetryPolicy[R] {
	builder := retrypolicy.Builder[R]().
		AbortOnErrors(context.Canceled, context.DeadlineExceeded).
		WithMaxRetries(max(maxRetries, 0)).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[R]) {
			logger.Warn("retrying store operation", "op", op, "attempt", e.Attempts(), "error", e.LastError())
		})
	if delay > 0 {
		builder = builder.WithBackoff(delay, delay*maxBackoffFactor)
	}
	return builder.Build()
}

// retryingSource retries page fetches with a failsafe policy.
type retryingSource struct {
	storage.SourceStore
	policy retrypolicy.RetryPolicy[*storage.Page]
}

func (s retryingSource) FetchPage(ctx context.Context, q storage.RangeQuery, cursor storage.Cursor) (*storage.Page, error) {
	return failsafe.NewExecutor[*storage.Page](s.policy).
		WithContext(ctx).
		Get(func() (*storage.Page, error) {
			return s.SourceStore.FetchPage(ctx, q, cursor)
		})
}
