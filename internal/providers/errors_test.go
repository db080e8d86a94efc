package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"contentflow/internal/retry"
)

func TestClassifyError(t *testing.T) {
	cases := map[string]ErrorType{
		"insufficient_quota":           ErrorQuota,
		"429 rate":                     ErrorRate,
		"maximum context length is 8k": ErrorContext,
		"timeout":                      ErrorTransient,
		"read tcp: connection refused": ErrorTransient,
		"bad request":                  ErrorPermanent,
	}
	for msg, want := range cases {
		if got := ClassifyError(errors.New(msg)); got != want {
			t.Fatalf("classify %q: got %s want %s", msg, got, want)
		}
	}
}

func TestClassifyTypedErrors(t *testing.T) {
	rl := fmt.Errorf("embed: %w", &retry.RateLimitError{Service: "openai", RetryAfter: time.Second})
	if got := ClassifyError(rl); got != ErrorRate {
		t.Fatalf("rate limit: got %s", got)
	}
	down := fmt.Errorf("embed: %w", &retry.StatusError{Service: "openai", StatusCode: http.StatusBadGateway})
	if got := ClassifyError(down); got != ErrorTransient {
		t.Fatalf("502: got %s", got)
	}
	big := &retry.StatusError{Service: "openai", StatusCode: http.StatusRequestEntityTooLarge}
	if got := ClassifyError(big); got != ErrorContext || got.Rotatable() {
		t.Fatalf("413: got %s rotatable=%v", got, got.Rotatable())
	}
	if got := ClassifyError(context.DeadlineExceeded); got != ErrorTransient {
		t.Fatalf("deadline: got %s", got)
	}
	if ClassifyError(nil) != "" {
		t.Fatalf("nil error must not classify")
	}
}
