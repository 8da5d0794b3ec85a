package sqlstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

type dialect struct {
	driver    string
	timestamp string
	boolean   string
	dollar    bool // $1 placeholders instead of ?
	inlineIdx bool // MySQL has no CREATE INDEX IF NOT EXISTS
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "postgres", "pgx":
		return dialect{driver: driver, timestamp: "TIMESTAMPTZ", boolean: "BOOLEAN", dollar: true}, nil
	case "mysql":
		return dialect{driver: driver, timestamp: "DATETIME(6)", boolean: "BOOLEAN", inlineIdx: true}, nil
	case "sqlite3":
		return dialect{driver: driver, timestamp: "TIMESTAMP", boolean: "BOOLEAN"}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// rebind rewrites ? placeholders to $n for Postgres drivers.
func (d dialect) rebind(query string) string {
	if !d.dollar {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) schema() []string {
	ledgerIdx, logIdx := "", ""
	if d.inlineIdx {
		ledgerIdx = ",\n\t\tINDEX idx_ledger_entries_tx_type (tx_type)"
		logIdx = ",\n\t\tINDEX idx_security_logs_tx_hash (tx_hash)"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ledger_entries (
		block_number BIGINT PRIMARY KEY,
		tx_hash VARCHAR(64) NOT NULL UNIQUE,
		tx_type VARCHAR(64) NOT NULL,
		related_entity_id VARCHAR(255) NULL,
		payload TEXT NOT NULL,
		gas_used BIGINT NOT NULL DEFAULT 0,
		is_confirmed %[1]s NOT NULL,
		created_at %[2]s NOT NULL,
		confirmed_at %[2]s NULL%[3]s
	)`, d.boolean, d.timestamp, ledgerIdx),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS security_logs (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		event_type VARCHAR(64) NOT NULL,
		description TEXT NOT NULL,
		risk_level VARCHAR(16) NOT NULL,
		is_anomaly %[1]s NOT NULL,
		tx_hash VARCHAR(64) NULL,
		created_at %[2]s NOT NULL%[3]s
	)`, d.boolean, d.timestamp, logIdx),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(36) PRIMARY KEY,
		username VARCHAR(255) NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		public_key TEXT NOT NULL,
		encrypted_private_key TEXT NOT NULL,
		security_score INTEGER NOT NULL,
		created_at %[1]s NOT NULL,
		updated_at %[1]s NOT NULL
	)`, d.timestamp),
	}
	if !d.inlineIdx {
		stmts = append(stmts,
			`CREATE INDEX IF NOT EXISTS idx_ledger_entries_tx_type ON ledger_entries (tx_type)`,
			`CREATE INDEX IF NOT EXISTS idx_security_logs_tx_hash ON security_logs (tx_hash)`,
		)
	}
	return stmts
}

// normalizeDSN forces parseTime for MySQL so DATETIME columns scan into time.Time.
func normalizeDSN(driver, dsn string) (string, error) {
	if driver != "mysql" {
		return dsn, nil
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// uniqueViolation reports whether err is a unique or primary key violation from any
// of the supported drivers.
func uniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
