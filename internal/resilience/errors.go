// Package resilience classifies pipeline errors and provides bounded
// retry with exponential backoff for the transient class.
package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry (network timeout,
// 429, 5xx). Everything else fails its unit of work immediately.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient with an optional HTTP
// status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IntegrityError signals a provider integrity violation: a capped result
// window that overflowed, or a record shape that drifted from the mapping's
// expectations. These fail their unit of work and are never retried —
// a retry would either silently drop data or fail the same way again.
type IntegrityError struct {
	Source string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: integrity violation: %s", e.Source, e.Reason)
}

// NewIntegrityError builds an IntegrityError for the given source.
func NewIntegrityError(source, format string, args ...any) *IntegrityError {
	return &IntegrityError{Source: source, Reason: fmt.Sprintf(format, args...)}
}

// IsIntegrity reports whether the chain contains an IntegrityError.
func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// TaxonomyError signals that a parsed unit is missing from the pre-seeded
// distance_units vocabulary. The vocabulary is closed, so this is a
// configuration fault, fatal at first use.
type TaxonomyError struct {
	Unit string
}

func (e *TaxonomyError) Error() string {
	return fmt.Sprintf("unknown stored unit: %s", e.Unit)
}

// IsTaxonomy reports whether the chain contains a TaxonomyError.
func IsTaxonomy(err error) bool {
	var te *TaxonomyError
	return errors.As(err, &te)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or matches common transient network failure patterns.
// Integrity and taxonomy errors are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsIntegrity(err) || IsTaxonomy(err) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped client errors often only surface as text.
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection reset by peer",
		"broken pipe",
		"timeout",
		"temporary failure",
		"no such host",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
