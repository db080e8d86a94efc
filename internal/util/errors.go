package util

import "errors"

var (
	ErrClassification      = errors.New("content could not be classified")
	ErrDuplicateContent    = errors.New("duplicate content")
	ErrQuotaExceeded       = errors.New("document quota exceeded")
	ErrContentTooLarge     = errors.New("content exceeds maximum length")
	ErrUnsupportedDocument = errors.New("unsupported document extension")
	ErrUnsupportedType     = errors.New("content type cannot be fetched individually")
	ErrNoExtractableText   = errors.New("no extractable text found")
	ErrNotFound            = errors.New("not found")
)

// Error kinds double as Temporal application error types, so they must stay stable.
const (
	KindClassification = "ClassificationError"
	KindDuplicate      = "DuplicateContentError"
	KindQuota          = "QuotaExceededError"
	KindTooLarge       = "OversizedContentError"
	KindUnsupported    = "UnsupportedContentError"
	KindNoText         = "NoExtractableTextError"
	KindNotFound       = "NotFoundError"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrClassification, KindClassification},
	{ErrDuplicateContent, KindDuplicate},
	{ErrQuotaExceeded, KindQuota},
	{ErrContentTooLarge, KindTooLarge},
	{ErrUnsupportedDocument, KindUnsupported},
	{ErrUnsupportedType, KindUnsupported},
	{ErrNoExtractableText, KindNoText},
	{ErrNotFound, KindNotFound},
}

// Kind returns the stable kind of a fatal pipeline error, or "" for anything else.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return ""
}

// SentinelForKind maps a kind back to its sentinel so errors can cross process
// boundaries and still satisfy errors.Is.
func SentinelForKind(kind string) error {
	for _, k := range kinds {
		if k.kind == kind {
			return k.err
		}
	}
	return nil
}
