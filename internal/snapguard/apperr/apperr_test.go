package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnavailable_WrapsSentinelAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unavailable("ledger.insert", cause)

	assert.ErrorIs(t, err, ErrDependencyUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.True(t, Retryable(err))
	assert.Contains(t, err.Error(), "ledger.insert")
}

func TestUnavailable_PassesThroughKnownErrors(t *testing.T) {
	assert.Nil(t, Unavailable("op", nil))

	nf := fmt.Errorf("user u1: %w", ErrNotFound)
	assert.Equal(t, nf, Unavailable("op", nf))
	assert.False(t, Retryable(nf))
}

func TestConfigurationAndIntegrity(t *testing.T) {
	assert.ErrorIs(t, Configuration("missing %s", "ENCRYPTION_KEY"), ErrConfiguration)

	err := Integrity("abc", "hash mismatch")
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Contains(t, err.Error(), "abc")
}

func TestAmbiguous(t *testing.T) {
	assert.True(t, Ambiguous(fmt.Errorf("insert: %w", context.DeadlineExceeded)))
	assert.True(t, Ambiguous(context.Canceled))
	assert.False(t, Ambiguous(errors.New("duplicate key")))
}
