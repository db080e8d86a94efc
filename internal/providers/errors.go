package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"contentflow/internal/retry"
)

type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
)

// ClassifyError buckets a provider failure. Typed transport errors are
// inspected first; anything else falls back to the message text.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	var rl *retry.RateLimitError
	if errors.As(err, &rl) {
		return ErrorRate
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTransient
	}
	var se *retry.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusPaymentRequired:
			return ErrorQuota
		case se.StatusCode == http.StatusRequestEntityTooLarge:
			return ErrorContext
		case se.StatusCode >= 500 || se.StatusCode == http.StatusRequestTimeout:
			return ErrorTransient
		}
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "quota"), strings.Contains(e, "credit"), strings.Contains(e, "insufficient_quota"):
		return ErrorQuota
	case strings.Contains(e, "rate"), strings.Contains(e, "429"):
		return ErrorRate
	case strings.Contains(e, "context length"), strings.Contains(e, "too long"), strings.Contains(e, "maximum context"):
		return ErrorContext
	case strings.Contains(e, "timeout"), strings.Contains(e, "temporarily"), strings.Contains(e, "unavailable"),
		strings.Contains(e, "connection refused"), strings.Contains(e, "eof"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

// Rotatable reports whether another provider might succeed where this one failed.
func (t ErrorType) Rotatable() bool {
	return t != ErrorContext
}
