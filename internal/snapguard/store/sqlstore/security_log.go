package sqlstore

import (
	"context"
	"database/sql"

	"github.com/vaibhaw-/snapguard/internal/snapguard/apperr"
	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
)

type securityLogStore struct{ s *DB }

const logColumns = `id, user_id, event_type, description, risk_level, is_anomaly, tx_hash, created_at`

func (l securityLogStore) Insert(ctx context.Context, e *models.SecurityLogEntry) (*models.SecurityLogEntry, error) {
	err := l.s.exec(ctx, "security_log.insert",
		`INSERT INTO security_logs (`+logColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.EventType, e.Description, string(e.RiskLevel), e.IsAnomaly, nullString(e.TxHash), e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	out := *e
	return &out, nil
}

func (l securityLogStore) ListAll(ctx context.Context) ([]*models.SecurityLogEntry, error) {
	return l.query(ctx, `SELECT `+logColumns+` FROM security_logs ORDER BY created_at ASC, id ASC`)
}

func (l securityLogStore) ListByTxHash(ctx context.Context, txHash string) ([]*models.SecurityLogEntry, error) {
	return l.query(ctx, `SELECT `+logColumns+` FROM security_logs WHERE tx_hash = ? ORDER BY created_at ASC`, txHash)
}

func (l securityLogStore) query(ctx context.Context, q string, args ...any) ([]*models.SecurityLogEntry, error) {
	rows, err := l.s.db.QueryContext(ctx, l.s.d.rebind(q), args...)
	if err != nil {
		return nil, apperr.Unavailable("security_log.list", err)
	}
	defer rows.Close()

	var out []*models.SecurityLogEntry
	for rows.Next() {
		var (
			e    models.SecurityLogEntry
			risk string
			tx   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.Description, &risk, &e.IsAnomaly, &tx, &e.CreatedAt); err != nil {
			return nil, apperr.Unavailable("security_log.scan", err)
		}
		e.RiskLevel = models.RiskLevel(risk)
		e.TxHash = fromNullString(tx)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("security_log.list", err)
	}
	return out, nil
}
