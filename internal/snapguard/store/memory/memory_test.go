package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaibhaw-/snapguard/internal/snapguard/apperr"
	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
)

func TestLedgerStore_InsertGetList(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerStore()

	last, err := s.Last(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	payload := map[string]any{"k": "v"}
	_, err = s.Insert(ctx, &models.LedgerEntry{TxHash: "h1", BlockNumber: 1, Payload: payload})
	require.NoError(t, err)
	_, err = s.Insert(ctx, &models.LedgerEntry{TxHash: "h2", BlockNumber: 2, Payload: map[string]any{}})
	require.NoError(t, err)

	// caller mutation after insert must not leak into the store
	payload["k"] = "changed"
	got, err := s.GetByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Payload["k"])

	// and neither must mutation of a returned copy
	got.Payload["k"] = "changed again"
	again, err := s.GetByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Payload["k"])

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "h1", all[0].TxHash)
	assert.Equal(t, "h2", all[1].TxHash)

	last, err = s.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), last.BlockNumber)

	_, err = s.GetByHash(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = s.Insert(ctx, &models.LedgerEntry{TxHash: "h1"})
	assert.Error(t, err)
}

func TestLedgerStore_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLedgerStore().Insert(ctx, &models.LedgerEntry{TxHash: "h"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSecurityLogStore_ListByTxHash(t *testing.T) {
	ctx := context.Background()
	s := NewSecurityLogStore()
	h := "abc"
	_, err := s.Insert(ctx, &models.SecurityLogEntry{ID: "1", TxHash: &h})
	require.NoError(t, err)
	_, err = s.Insert(ctx, &models.SecurityLogEntry{ID: "2"})
	require.NoError(t, err)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	linked, err := s.ListByTxHash(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, "1", linked[0].ID)
}

func TestUserStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore()

	_, err := s.Create(ctx, &models.User{ID: "u1", Username: "alice", SecurityScore: 100})
	require.NoError(t, err)
	_, err = s.Create(ctx, &models.User{ID: "u2", Username: "ALICE"})
	assert.ErrorIs(t, err, apperr.ErrConflict, "usernames are case-insensitive unique")

	u, err := s.GetByUsername(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	score := 80
	pub := "pem"
	u, err = s.Update(ctx, "u1", models.UserUpdate{SecurityScore: &score, PublicKey: &pub})
	require.NoError(t, err)
	assert.Equal(t, 80, u.SecurityScore)
	assert.Equal(t, "pem", u.PublicKey)

	_, err = s.Update(ctx, "nope", models.UserUpdate{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
