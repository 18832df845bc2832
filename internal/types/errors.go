package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrEmptyMarkup      = errors.New("empty markup")
	ErrNoAnchors        = errors.New("no anchors found on page")
	ErrAllSourcesFailed = errors.New("every source ended in an empty page or a configuration error")
)

// RejectReason classifies why a raw listing failed normalization.
type RejectReason string

const (
	RejectBadPrice     RejectReason = "bad_price"
	RejectMissingURL   RejectReason = "missing_url"
	RejectMissingTitle RejectReason = "missing_title"
)

// Rejection is returned by the normalizer when a raw listing cannot become a
// canonical one. Rejections are counted and dropped, never fatal.
type Rejection struct {
	Reason RejectReason
	Source string
	Value  string // the offending raw value, for logging
}

func (r *Rejection) Error() string {
	if r.Value != "" {
		return fmt.Sprintf("listing rejected (%s): %q", r.Reason, r.Value)
	}
	return fmt.Sprintf("listing rejected (%s)", r.Reason)
}

// EmptyPageError signals that a page parsed fine but contained zero anchors.
// Distinct from a per-listing miss and from an unparsable page; the fetch
// layer may treat it as a retry/backoff hint.
type EmptyPageError struct {
	Source string
	Page   string
}

func (e *EmptyPageError) Error() string {
	return fmt.Sprintf("empty page for %s (%s): %v", e.Source, e.Page, ErrNoAnchors)
}

func (e *EmptyPageError) Unwrap() error { return ErrNoAnchors }

// ExtractError signals that page markup could not be parsed at all, so the
// page yielded zero listings. Distinct from EmptyPageError so callers can
// tell "structure changed" from "no content returned".
type ExtractError struct {
	Source string
	Page   string
	Err    error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("unparsable page for %s (%s): %v", e.Source, e.Page, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// ConfigError signals that a source profile lacks a required table or
// pattern. Fatal for that source only; sibling sources in the same batch are
// unaffected.
type ConfigError struct {
	Source string
	Field  string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("profile error for %s (field %q): %v", e.Source, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// FetchError wraps errors from the page fetch layer.
type FetchError struct {
	URL       string
	Err       error
	Retryable bool
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
