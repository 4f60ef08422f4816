package ai

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// FailKind classifies provider failures for retry decisions and error
// surfaces.
type FailKind string

const (
	FailRateLimited  FailKind = "rate_limited"
	FailUnavailable  FailKind = "unavailable"
	FailTimeout      FailKind = "timeout"
	FailAuth         FailKind = "auth"
	FailInvalidInput FailKind = "invalid_input"
	FailExhausted    FailKind = "exhausted"
)

// ProviderError wraps a provider failure with its classification.
type ProviderError struct {
	Op   string // "embed" or "generate"
	Kind FailKind
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether a retry could succeed.
func (e *ProviderError) Transient() bool {
	switch e.Kind {
	case FailRateLimited, FailUnavailable, FailTimeout:
		return true
	}
	return false
}

// classify maps a raw provider error to a FailKind. Providers return
// heterogeneous error types, so this leans on status text.
func classify(err error) FailKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailUnavailable
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return FailUnavailable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "resource exhausted") || strings.Contains(msg, "quota"):
		return FailRateLimited
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "504") ||
		strings.Contains(msg, "unavailable") || strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "connection") || strings.Contains(msg, "eof"):
		return FailUnavailable
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "api key") || strings.Contains(msg, "unauthenticated") ||
		strings.Contains(msg, "permission"):
		return FailAuth
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid"):
		return FailInvalidInput
	default:
		return FailUnavailable
	}
}

// withRetry runs fn up to maxAttempts times with exponential backoff and
// full jitter. Non-transient failures surface immediately.
func withRetry(ctx context.Context, op string, maxAttempts int, initialDelay time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	delay := initialDelay
	var last *ProviderError

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		last = &ProviderError{Op: op, Kind: classify(err), Err: err}
		if !last.Transient() {
			return last
		}
		if attempt == maxAttempts {
			break
		}

		sleep := time.Duration(rand.Int63n(int64(delay) + 1))
		select {
		case <-ctx.Done():
			return &ProviderError{Op: op, Kind: FailTimeout, Err: ctx.Err()}
		case <-time.After(sleep):
		}
		delay *= 2
	}

	return &ProviderError{Op: op, Kind: FailExhausted, Err: last.Err}
}
