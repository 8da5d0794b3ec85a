package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/vaibhaw-/snapguard/internal/snapguard/apperr"
	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
)

type ledgerStore struct{ s *DB }

const ledgerColumns = `block_number, tx_hash, tx_type, related_entity_id, payload, gas_used, is_confirmed, created_at, confirmed_at`

func (l ledgerStore) Insert(ctx context.Context, e *models.LedgerEntry) (*models.LedgerEntry, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var confirmed sql.NullTime
	if e.ConfirmedAt != nil {
		confirmed = sql.NullTime{Time: *e.ConfirmedAt, Valid: true}
	}
	err = l.s.exec(ctx, "ledger.insert",
		`INSERT INTO ledger_entries (`+ledgerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.BlockNumber, e.TxHash, string(e.TxType), nullString(e.RelatedEntityID), string(payload),
		e.GasUsed, e.IsConfirmed, e.CreatedAt, confirmed,
	)
	if err != nil {
		return nil, err
	}
	return e.Clone(), nil
}

func (l ledgerStore) GetByHash(ctx context.Context, txHash string) (*models.LedgerEntry, error) {
	row := l.s.db.QueryRowContext(ctx, l.s.d.rebind(`SELECT `+ledgerColumns+` FROM ledger_entries WHERE tx_hash = ?`), txHash)
	e, err := scanLedger(row)
	if err != nil {
		return nil, notFoundOr("ledger entry", txHash, err)
	}
	return e, nil
}

func (l ledgerStore) ListAll(ctx context.Context) ([]*models.LedgerEntry, error) {
	rows, err := l.s.db.QueryContext(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries ORDER BY block_number ASC`)
	if err != nil {
		return nil, apperr.Unavailable("ledger.list", err)
	}
	defer rows.Close()

	var out []*models.LedgerEntry
	for rows.Next() {
		e, err := scanLedger(rows)
		if err != nil {
			return nil, apperr.Unavailable("ledger.list", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("ledger.list", err)
	}
	return out, nil
}

func (l ledgerStore) Last(ctx context.Context) (*models.LedgerEntry, error) {
	row := l.s.db.QueryRowContext(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries ORDER BY block_number DESC LIMIT 1`)
	e, err := scanLedger(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Unavailable("ledger.last", err)
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLedger(r scanner) (*models.LedgerEntry, error) {
	var (
		e         models.LedgerEntry
		txType    string
		related   sql.NullString
		payload   string
		confirmed sql.NullTime
	)
	if err := r.Scan(&e.BlockNumber, &e.TxHash, &txType, &related, &payload, &e.GasUsed, &e.IsConfirmed, &e.CreatedAt, &confirmed); err != nil {
		return nil, err
	}
	e.TxType = models.TxType(txType)
	e.RelatedEntityID = fromNullString(related)
	if confirmed.Valid {
		ts := confirmed.Time
		e.ConfirmedAt = &ts
	}
	m, err := decodePayload(payload)
	if err != nil {
		return nil, err
	}
	e.Payload = m
	return &e, nil
}
