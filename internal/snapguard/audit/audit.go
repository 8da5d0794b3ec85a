// Package audit turns domain events into ledger entries plus a human-readable
// security log row, and answers integrity queries over the chain.
//
// The ledger entry and the log row are not written in one transaction. The ledger
// is the source of truth: a missing row is repaired by Reconcile.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vaibhaw-/snapguard/internal/snapguard/apperr"
	"github.com/vaibhaw-/snapguard/internal/snapguard/ledger"
	"github.com/vaibhaw-/snapguard/internal/snapguard/logger"
	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
	"github.com/vaibhaw-/snapguard/internal/snapguard/store"
)

// ErrLogWriteFailed means the ledger entry exists but its log row does not.
var ErrLogWriteFailed = errors.New("audit: security log write failed")

// Integrity statuses reported by ChainStats.
const (
	StatusVerified    = "verified"
	StatusCompromised = "compromised"
)

// Payload keys of security_audit entries.
const (
	keyUserID      = "userId"
	keyEventType   = "eventType"
	keyDescription = "description"
	keyRiskLevel   = "riskLevel"
	keyTimestamp   = "timestamp"
)

type ChainStats struct {
	TotalEntries       int    `json:"total_entries"`
	CurrentBlockNumber int64  `json:"current_block_number"`
	HeadHash           string `json:"head_hash"`
	IntegrityStatus    string `json:"integrity_status"`
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	ledger *ledger.Ledger
	logs   store.SecurityLogStore
	now    func() time.Time
}

// New registers the service as the ledger's tamper observer.
func New(l *ledger.Ledger, logs store.SecurityLogStore, opts ...Option) *Service {
	s := &Service{
		ledger: l,
		logs:   logs,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	l.OnTamper(s.onTamper)
	return s
}

// Record appends a security_audit entry and its log row. An empty risk means low.
//
// When the ledger write succeeds and the row write fails, both the hash and an
// error wrapping ErrLogWriteFailed are returned.
func (s *Service) Record(ctx context.Context, userID, eventType, description string, risk models.RiskLevel) (string, error) {
	if risk == "" {
		risk = models.RiskLow
	}
	if !risk.Valid() {
		return "", fmt.Errorf("audit.record: invalid risk level %q", risk)
	}
	now := s.now()
	payload := map[string]any{
		keyUserID:      userID,
		keyEventType:   eventType,
		keyDescription: description,
		keyRiskLevel:   string(risk),
		keyTimestamp:   now.Format(time.RFC3339Nano),
	}

	txHash, err := s.ledger.Append(ctx, models.TxSecurityAudit, payload, userID)
	if err != nil {
		return "", fmt.Errorf("audit.record: %w", err)
	}

	if err := s.writeLog(ctx, userID, eventType, description, risk, txHash, now); err != nil {
		logger.L().Errorw("audit.record: log row missing, reconcile required",
			"tx_hash", txHash, "event", eventType, "err", err)
		return txHash, fmt.Errorf("%w: tx %s: %w", ErrLogWriteFailed, txHash, err)
	}
	return txHash, nil
}

// RecordTx appends a domain transaction. userId and timestamp are added to the
// payload when the caller did not set them.
func (s *Service) RecordTx(ctx context.Context, txType models.TxType, userID string, payload map[string]any) (string, error) {
	p := models.CopyPayload(payload)
	if p == nil {
		p = make(map[string]any)
	}
	if _, ok := p[keyUserID]; !ok && userID != "" {
		p[keyUserID] = userID
	}
	if _, ok := p[keyTimestamp]; !ok {
		p[keyTimestamp] = s.now().Format(time.RFC3339Nano)
	}
	txHash, err := s.ledger.Append(ctx, txType, p, userID)
	if err != nil {
		return "", fmt.Errorf("audit.record_tx %s: %w", txType, err)
	}
	logger.L().Debugw("audit.record_tx", "tx_type", txType, "user", userID, "tx_hash", txHash)
	return txHash, nil
}

func (s *Service) writeLog(ctx context.Context, userID, eventType, description string, risk models.RiskLevel, txHash string, at time.Time) error {
	h := txHash
	_, err := s.logs.Insert(ctx, &models.SecurityLogEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		EventType:   eventType,
		Description: description,
		RiskLevel:   risk,
		IsAnomaly:   risk.IsAnomaly(),
		TxHash:      &h,
		CreatedAt:   at,
	})
	return apperr.Unavailable("security_log.insert", err)
}

func (s *Service) Verify(ctx context.Context, txHash string) (bool, error) {
	return s.ledger.Verify(ctx, txHash)
}

func (s *Service) VerifyAll(ctx context.Context) (*ledger.VerifyReport, error) {
	return s.ledger.VerifyAll(ctx)
}

func (s *Service) Get(ctx context.Context, txHash string) (*models.LedgerEntry, error) {
	return s.ledger.Get(ctx, txHash)
}

// ChainStats fills IntegrityStatus from a full scan that records nothing: repeated
// calls on a damaged chain do not add violation rows.
func (s *Service) ChainStats(ctx context.Context) (*ChainStats, error) {
	st, err := s.ledger.Stats(ctx)
	if err != nil {
		return nil, err
	}
	report, err := s.ledger.Inspect(ctx)
	if err != nil {
		return nil, err
	}
	status := StatusVerified
	if !report.Valid {
		status = StatusCompromised
	}
	return &ChainStats{
		TotalEntries:       st.TotalEntries,
		CurrentBlockNumber: st.CurrentBlockNumber,
		HeadHash:           st.HeadHash,
		IntegrityStatus:    status,
	}, nil
}

// Logs returns the whole security log in insertion order.
func (s *Service) Logs(ctx context.Context) ([]*models.SecurityLogEntry, error) {
	rows, err := s.logs.ListAll(ctx)
	if err != nil {
		return nil, apperr.Unavailable("security_log.list", err)
	}
	return rows, nil
}

// Reconcile rebuilds log rows for intact security_audit entries that have none.
// It returns the number of rows written.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	log := logger.L()
	entries, err := s.ledger.List(ctx)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, e := range entries {
		if e.TxType != models.TxSecurityAudit {
			continue
		}
		rows, err := s.logs.ListByTxHash(ctx, e.TxHash)
		if err != nil {
			return repaired, apperr.Unavailable("security_log.list", err)
		}
		if len(rows) > 0 {
			continue
		}
		if !ledger.Intact(e) {
			log.Warnw("audit.reconcile: skipping corrupted entry", "tx_hash", e.TxHash)
			continue
		}

		userID, _ := e.Payload[keyUserID].(string)
		eventType, _ := e.Payload[keyEventType].(string)
		description, _ := e.Payload[keyDescription].(string)
		raw, _ := e.Payload[keyRiskLevel].(string)
		risk, perr := models.ParseRiskLevel(raw)
		if perr != nil {
			risk = models.RiskLow
		}
		at := e.CreatedAt
		if ts, ok := e.Payload[keyTimestamp].(string); ok {
			if parsed, terr := time.Parse(time.RFC3339Nano, ts); terr == nil {
				at = parsed
			}
		}

		if err := s.writeLog(ctx, userID, eventType, description, risk, e.TxHash, at); err != nil {
			return repaired, err
		}
		repaired++
	}
	log.Infow("audit.reconcile: done", "scanned", len(entries), "repaired", repaired)
	return repaired, nil
}

// onTamper writes the critical row for a corrupted entry. It never touches the
// ledger, so a corrupted chain cannot recurse into itself.
func (s *Service) onTamper(ctx context.Context, e *models.LedgerEntry, reason string) error {
	userID := ""
	if e.RelatedEntityID != nil {
		userID = *e.RelatedEntityID
	}
	desc := fmt.Sprintf("ledger entry %s at block %d failed verification: %s", e.TxHash, e.BlockNumber, reason)
	if err := s.writeLog(context.WithoutCancel(ctx), userID, models.EventIntegrityViolation, desc, models.RiskCritical, e.TxHash, s.now()); err != nil {
		logger.L().Errorw("audit.tamper: could not write integrity row", "tx_hash", e.TxHash, "err", err)
		return err
	}
	logger.L().Errorw("audit.tamper: integrity violation recorded", "tx_hash", e.TxHash, "block", e.BlockNumber, "reason", reason)
	return nil
}
