// Package apperr defines the error taxonomy shared by the audit, ledger and firewall
// packages. Callers branch with errors.Is on the sentinels below; denials (blocked IP,
// rate limited, wrong password) are never errors and are returned as values instead.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is fatal: the process must not start.
	ErrConfiguration = errors.New("configuration error")
	// ErrIntegrity signals a hash mismatch; it is logged as critical and surfaced.
	ErrIntegrity = errors.New("integrity violation")
	// ErrNotFound is returned for lookups of unknown hashes or users.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write collides with an existing unique record.
	ErrConflict = errors.New("conflict")
	// ErrDependencyUnavailable wraps storage failures; reads may be retried, writes
	// must be re-checked before retrying.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// Unavailable wraps a storage error so that errors.Is(err, ErrDependencyUnavailable) holds
// while the original cause stays reachable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrDependencyUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrDependencyUnavailable, err)
}

// Configuration builds an ErrConfiguration for a missing or invalid setting.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Integrity builds an ErrIntegrity for the given hash.
func Integrity(txHash, detail string) error {
	return fmt.Errorf("%w: tx %s: %s", ErrIntegrity, txHash, detail)
}

// Retryable reports whether the caller may retry the failed call.
func Retryable(err error) bool {
	return errors.Is(err, ErrDependencyUnavailable)
}

// Ambiguous reports whether a write may or may not have landed.
func Ambiguous(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
