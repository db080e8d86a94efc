package util

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	cases := map[error]string{
		fmt.Errorf("check: %w", ErrDuplicateContent): KindDuplicate,
		fmt.Errorf("quota: %w", ErrQuotaExceeded):    KindQuota,
		ErrContentTooLarge:                           KindTooLarge,
		fmt.Errorf("x: %w", ErrUnsupportedDocument):  KindUnsupported,
		fmt.Errorf("x: %w", ErrClassification):       KindClassification,
		errors.New("connection reset by peer"):       "",
	}
	for err, want := range cases {
		if got := Kind(err); got != want {
			t.Fatalf("kind of %v: got %q want %q", err, got, want)
		}
	}
	if Kind(nil) != "" {
		t.Fatalf("nil error must have no kind")
	}
}

func TestSentinelForKindRoundTrip(t *testing.T) {
	for _, kind := range []string{KindClassification, KindDuplicate, KindQuota, KindTooLarge, KindNoText} {
		err := SentinelForKind(kind)
		if err == nil {
			t.Fatalf("no sentinel for %s", kind)
		}
		if Kind(err) != kind {
			t.Fatalf("round trip for %s gave %s", kind, Kind(err))
		}
	}
	if SentinelForKind("whatever") != nil {
		t.Fatalf("unknown kind must map to nil")
	}
}
