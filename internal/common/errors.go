package common

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for retry and outcome decisions.
type ErrorKind int

const (
	// KindTransient - network blip, 5xx, timeout; retried with backoff
	KindTransient ErrorKind = iota

	// KindPermanent - invalid request, schema mismatch, rejected write; not retried
	KindPermanent

	// KindEligibility - the item should be silently skipped, not counted as an error
	KindEligibility

	// KindCancelled - cooperative cancellation; partial work is checkpointed
	KindCancelled

	// KindFatal - startup-level failure, no recovery
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindEligibility:
		return "eligibility"
	case KindCancelled:
		return "cancelled"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifiedError carries an ErrorKind alongside the underlying error.
// Retryable vs permanent is a property of the error kind, not the call
// site.
type ClassifiedError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *ClassifiedError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable external failure.
func Transient(op string, err error) error {
	return &ClassifiedError{Kind: KindTransient, Op: op, Err: err}
}

// Permanent wraps err as a non-retryable external failure.
func Permanent(op string, err error) error {
	return &ClassifiedError{Kind: KindPermanent, Op: op, Err: err}
}

// Eligibility wraps err as a silent skip condition.
func Eligibility(op string, err error) error {
	return &ClassifiedError{Kind: KindEligibility, Op: op, Err: err}
}

// Fatal wraps err as an unrecoverable startup failure.
func Fatal(op string, err error) error {
	return &ClassifiedError{Kind: KindFatal, Op: op, Err: err}
}

// KindOf extracts the classification of an error. Context deadline and
// cancellation map to their kinds; unclassified errors are treated as
// permanent so unknown failures are never retried blindly.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindPermanent
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindPermanent
}

// IsTransient reports whether err should enter the retry loop.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// IsCancelled reports whether err stems from cooperative cancellation.
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}
