// Package readiness blocks until the services a run depends on accept
// connections.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/hashicorp/go-retryablehttp"
)

// ErrNotReady is returned when a target did not become ready in time.
var ErrNotReady = errors.New("service not ready")

const (
	DefaultTimeout  = 2 * time.Minute
	DefaultInterval = 500 * time.Millisecond
	maxInterval     = 10 * time.Second
)

// Waiter probes targets until they answer. URL targets must answer a GET
// with a 2xx status; host:port targets must accept a TCP connection.
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger
}

type Option func(*Waiter)

func WithTimeout(d time.Duration) Option {
	return func(w *Waiter) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithInterval sets the first delay between probes. Later delays grow
// exponentially.
func WithInterval(d time.Duration) Option {
	return func(w *Waiter) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Waiter) {
		w.logger = logger
	}
}

func NewWaiter(opts ...Option) *Waiter {
	w := &Waiter{
		timeout:  DefaultTimeout,
		interval: DefaultInterval,
		logger:   slog.Default().With("component", "readiness"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Wait probes all targets concurrently and returns once every one is ready
// or the timeout expires. The error joins the failure of each target.
func (w *Waiter) Wait(ctx context.Context, targets ...string) error {
	if len(targets) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			var err error
			if isURL(target) {
				err = w.probeHTTP(ctx, target)
			} else {
				err = w.probeTCP(ctx, target)
			}
			if err != nil {
				errs[i] = fmt.Errorf("%w: %s: %w", ErrNotReady, target, err)
				return
			}
			w.logger.Info("service ready", "target", target, "waited", time.Since(start).Round(time.Millisecond))
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func isURL(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}

func (w *Waiter) probeHTTP(ctx context.Context, target string) error {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = math.MaxInt32
	client.RetryWaitMin = w.interval
	client.RetryWaitMax = max(w.interval, maxInterval)
	client.HTTPClient.Timeout = max(w.interval, 5*time.Second)
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil || resp.StatusCode < 200 || resp.StatusCode > 299 {
			w.logger.Debug("waiting for service", "target", target, "error", err)
			return true, nil
		}
		return false, nil
	}
	defer client.HTTPClient.CloseIdleConnections()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (w *Waiter) probeTCP(ctx context.Context, addr string) error {
	policy := retrypolicy.Builder[any]().
		AbortOnErrors(context.Canceled, context.DeadlineExceeded).
		WithMaxRetries(-1).
		WithBackoff(w.interval, max(w.interval, maxInterval)).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[any]) {
			w.logger.Debug("waiting for service", "target", addr, "attempt", e.Attempts(), "error", e.LastError())
		}).
		Build()

	var dialer net.Dialer
	return failsafe.NewExecutor[any](policy).
		WithContext(ctx).
		Run(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				return err
			}
			return conn.Close()
		})
}
