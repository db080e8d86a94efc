package activities

import (
	"errors"
	"fmt"

	"contentflow/internal/retry"
	"contentflow/internal/util"

	"go.temporal.io/sdk/temporal"
)

// Application error types beyond the util kinds.
const (
	KindExhausted = "RetriesExhaustedError"
	KindPermanent = "PermanentError"
	KindRateLimit = "RateLimitError"
)

// NonRetryableKinds are never retried by an activity retry policy.
func NonRetryableKinds() []string {
	return []string{
		util.KindClassification,
		util.KindDuplicate,
		util.KindQuota,
		util.KindTooLarge,
		util.KindUnsupported,
		util.KindNoText,
		util.KindNotFound,
		KindExhausted,
		KindPermanent,
	}
}

// toApplicationError maps a step error onto a Temporal application error.
// Fatal kinds and exhausted in-process retries stop the step; a rate limit
// with a server hint delays the next activity attempt by that much.
func toApplicationError(step string, err error) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf("%s: %v", step, err)
	if kind := util.Kind(err); kind != "" {
		return temporal.NewNonRetryableApplicationError(msg, kind, err)
	}
	if retry.IsExhausted(err) {
		return temporal.NewNonRetryableApplicationError(msg, KindExhausted, err)
	}
	if retry.IsPermanent(err) {
		return temporal.NewNonRetryableApplicationError(msg, KindPermanent, err)
	}
	if d, ok := retry.RetryAfterOf(err); ok {
		return temporal.NewApplicationErrorWithOptions(msg, KindRateLimit, temporal.ApplicationErrorOptions{
			Cause:          err,
			NextRetryDelay: d,
		})
	}
	return fmt.Errorf("%s: %w", step, err)
}

// ErrorKind extracts the application error type from an activity or child
// workflow failure. It returns "" for anything untyped.
func ErrorKind(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Type()
	}
	return util.Kind(err)
}
