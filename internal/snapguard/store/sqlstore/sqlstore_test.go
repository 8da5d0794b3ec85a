package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaibhaw-/snapguard/internal/snapguard/apperr"
	"github.com/vaibhaw-/snapguard/internal/snapguard/ledger"
	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
)

func TestDialect_Rebind(t *testing.T) {
	pg, err := dialectFor("postgres")
	require.NoError(t, err)
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	my, err := dialectFor("mysql")
	require.NoError(t, err)
	assert.Equal(t, "SELECT a FROM t WHERE x = ?", my.rebind("SELECT a FROM t WHERE x = ?"))

	_, err = dialectFor("oracle")
	assert.Error(t, err)
}

func TestDialect_SchemaPerDriver(t *testing.T) {
	my, _ := dialectFor("mysql")
	stmts := my.schema()
	assert.Len(t, stmts, 3)
	assert.Contains(t, stmts[1], "INDEX idx_security_logs_tx_hash")
	assert.Contains(t, stmts[0], "DATETIME(6)")

	pg, _ := dialectFor("pgx")
	stmts = pg.schema()
	assert.Len(t, stmts, 5)
	assert.Contains(t, stmts[0], "TIMESTAMPTZ")
}

func TestNormalizeDSN_MySQLParseTime(t *testing.T) {
	dsn, err := normalizeDSN("mysql", "snap:pw@tcp(127.0.0.1:3306)/snap")
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")

	same, err := normalizeDSN("postgres", "postgres://x")
	require.NoError(t, err)
	assert.Equal(t, "postgres://x", same)
}

func TestOpen_RequiresDSNAndKnownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "postgres"})
	assert.ErrorIs(t, err, apperr.ErrConfiguration)

	_, err = Open(context.Background(), Config{Driver: "oracle", DSN: "x"})
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestDecodePayload_KeepsLargeIntegers(t *testing.T) {
	m, err := decodePayload(`{"blockNumber":9007199254740993,"n":{"x":1}}`)
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), m["blockNumber"])
}

func openSQLite(t *testing.T) *DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "snapguard.db")
	db, err := Open(context.Background(), Config{Driver: "sqlite3", DSN: dsn, MaxOpenConns: 1})
	if err != nil && strings.Contains(err.Error(), "CGO_ENABLED=0") {
		t.Skip("sqlite3 driver needs cgo")
	}
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLite_LedgerRoundTrip(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	related := "alice"

	_, err := db.Ledger().Insert(ctx, &models.LedgerEntry{
		TxHash: "h1", TxType: models.TxUserRegistration, RelatedEntityID: &related,
		Payload:     map[string]any{"userId": "alice", "blockNumber": int64(1)},
		BlockNumber: 1, IsConfirmed: true, CreatedAt: now, ConfirmedAt: &now,
	})
	require.NoError(t, err)
	_, err = db.Ledger().Insert(ctx, &models.LedgerEntry{
		TxHash: "h2", TxType: models.TxSecurityAudit, Payload: map[string]any{"blockNumber": int64(2)},
		BlockNumber: 2, IsConfirmed: true, CreatedAt: now,
	})
	require.NoError(t, err)

	got, err := db.Ledger().GetByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, models.TxUserRegistration, got.TxType)
	require.NotNil(t, got.RelatedEntityID)
	assert.Equal(t, "alice", *got.RelatedEntityID)
	assert.Equal(t, "alice", got.Payload["userId"])
	assert.Equal(t, json.Number("1"), got.Payload["blockNumber"])
	assert.NotNil(t, got.ConfirmedAt)

	all, err := db.Ledger().ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "h1", all[0].TxHash)

	last, err := db.Ledger().Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), last.BlockNumber)

	_, err = db.Ledger().GetByHash(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = db.Ledger().Insert(ctx, &models.LedgerEntry{TxHash: "h1", BlockNumber: 3, Payload: map[string]any{}, CreatedAt: now})
	assert.ErrorIs(t, err, apperr.ErrDependencyUnavailable)
}

func TestSQLite_SecurityLogAndUsers(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()
	h := "h1"

	_, err := db.SecurityLog().Insert(ctx, &models.SecurityLogEntry{
		ID: "l1", UserID: "alice", EventType: "login", Description: "ok",
		RiskLevel: models.RiskHigh, IsAnomaly: true, TxHash: &h, CreatedAt: now,
	})
	require.NoError(t, err)
	logs, err := db.SecurityLog().ListByTxHash(ctx, "h1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.RiskHigh, logs[0].RiskLevel)
	assert.True(t, logs[0].IsAnomaly)

	_, err = db.Users().Create(ctx, &models.User{ID: "u1", Username: "Alice", PasswordHash: "x", SecurityScore: 100, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	u, err := db.Users().GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	_, err = db.Users().Create(ctx, &models.User{ID: "u3", Username: "Alice", PasswordHash: "y", CreatedAt: now, UpdatedAt: now})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.False(t, apperr.Retryable(err))

	score := 70
	u, err = db.Users().Update(ctx, "u1", models.UserUpdate{SecurityScore: &score})
	require.NoError(t, err)
	assert.Equal(t, 70, u.SecurityScore)

	_, err = db.Users().GetByID(ctx, "u2")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSQLite_LedgerKeepsUnsignedIntegers(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	l, err := ledger.New(ctx, db.Ledger())
	require.NoError(t, err)

	h, err := l.Append(ctx, models.TxSecurityAudit, map[string]any{"counter": uint64(math.MaxUint64)}, "")
	require.NoError(t, err)

	ok, err := l.Verify(ctx, h)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"other", errors.New("connection refused"), false},
		{"pq", &pq.Error{Code: "23505"}, true},
		{"pq not null", &pq.Error{Code: "23502"}, false},
		{"pgx", &pgconn.PgError{Code: "23505"}, true},
		{"mysql", &mysql.MySQLError{Number: 1062}, true},
		{"mysql other", &mysql.MySQLError{Number: 1045}, false},
		{"sqlite", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, true},
		{"wrapped", apperr.Unavailable("users.create", &pq.Error{Code: "23505"}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, uniqueViolation(tt.err))
		})
	}
}
