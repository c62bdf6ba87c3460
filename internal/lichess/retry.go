package lichess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/park285/cheese-lichess/internal/obslog"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var ErrRetriesExhausted = errors.New("retries exhausted")

// ErrUnconfirmed marks a refusal that followed a lost connection: the earlier
// attempt may have reached the server, so the refusal can be about a request
// that already succeeded.
var ErrUnconfirmed = errors.New("earlier attempt may have been applied")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lichess api error: status=%d body=%s", e.Status, e.Body)
}

// RetryError is returned once every attempt failed transiently. It matches
// ErrRetriesExhausted and unwraps to the last cause.
type RetryError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s: %s after %d attempts: %v", e.Op, ErrRetriesExhausted, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

func (e *RetryError) Is(target error) bool { return target == ErrRetriesExhausted }

// IsTransient reports failures worth another attempt: connection drops,
// timeouts, rate limiting and server-side errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return shouldRetryStatus(apiErr.Status)
	}
	if errors.Is(err, fasthttp.ErrTimeout) ||
		errors.Is(err, fasthttp.ErrDialTimeout) ||
		errors.Is(err, fasthttp.ErrConnectionClosed) ||
		errors.Is(err, fasthttp.ErrNoFreeConns) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// RetryPolicy bounds attempts and spaces them with a doubling backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BaseDelay: time.Second}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 10 {
		attempt = 10
	}
	return time.Duration(1<<uint(attempt-1)) * p.BaseDelay // base, 2x base ...
}

// Do runs fn until it succeeds, fails non-transiently or runs out of attempts.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}
	max := p.attempts()

	var lastErr error
	inDoubt := false // a transport failure may have let an attempt through
	for attempt := 1; attempt <= max; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return &RetryError{Op: op, Attempts: attempt - 1, Err: lastErr}
			}
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			if inDoubt {
				return fmt.Errorf("%w: %w", ErrUnconfirmed, err)
			}
			return err
		}
		lastErr = err
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			inDoubt = true
		}
		if attempt == max {
			break
		}
		delay := p.backoff(attempt)
		obslog.L().Warn("lichess_retry",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", max),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return &RetryError{Op: op, Attempts: attempt, Err: lastErr}
		}
	}
	return &RetryError{Op: op, Attempts: max, Err: lastErr}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
