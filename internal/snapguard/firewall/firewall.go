// Package firewall is the in-process gate in front of authentication and business
// logic: an IP blocklist, a per (identifier, ip) rate limiter and a failed-attempt
// counter. All state is in memory; Restore rebuilds the blocklist from the ledger.
package firewall

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vaibhaw-/snapguard/internal/snapguard/config"
	"github.com/vaibhaw-/snapguard/internal/snapguard/ledger"
	"github.com/vaibhaw-/snapguard/internal/snapguard/logger"
	"github.com/vaibhaw-/snapguard/internal/snapguard/metrics"
	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
)

// Recorder is the slice of the audit service the firewall writes through.
type Recorder interface {
	Record(ctx context.Context, userID, eventType, description string, risk models.RiskLevel) (string, error)
	RecordTx(ctx context.Context, txType models.TxType, userID string, payload map[string]any) (string, error)
}

// SuspicionTracker counts suspicious activity per subject.
type SuspicionTracker interface {
	Observe(subject, activity string, now time.Time) int
	Sweep(now time.Time) int
}

// ActivityRateLimit is the activity name reported to the SuspicionTracker.
const ActivityRateLimit = "rate_limit"

type Reason string

const (
	ReasonNone        Reason = ""
	ReasonBlocked     Reason = "blocked"
	ReasonRateLimited Reason = "rate_limited"
	ReasonLockdown    Reason = "lockdown"
)

// Decision is the outcome of Admit. A denial is a value, not an error.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

func (d Decision) outcome() string {
	if d.Allowed {
		return "allowed"
	}
	return string(d.Reason)
}

// State is a point-in-time view for stats and health output.
type State struct {
	BlockedIPs     []string `json:"blocked_ips"`
	RateLimitKeys  int      `json:"rate_limit_keys"`
	FailedAttempts int      `json:"failed_attempt_keys"`
	Lockdown       bool     `json:"lockdown"`
	LockdownReason string   `json:"lockdown_reason,omitempty"`
}

// CleanupStats counts what one sweep removed.
type CleanupStats struct {
	RateLimits     int
	FailedAttempts int
	Suspicions     int
}

type Option func(*Guard)

func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

func WithSuspicionTracker(t SuspicionTracker) Option {
	return func(g *Guard) { g.tracker = t }
}

type attempts struct {
	count int
	last  time.Time
}

type blockInfo struct {
	reason string
	at     time.Time
}

// Guard holds one mutex per map. Audit calls are made after locks are released.
type Guard struct {
	cfg      config.FirewallCfg
	recorder Recorder
	tracker  SuspicionTracker
	limiter  Limiter
	metrics  *metrics.Metrics
	now      func() time.Time

	blockMu sync.RWMutex
	blocked map[string]blockInfo

	failMu sync.Mutex
	failed map[string]*attempts

	lockMu         sync.RWMutex
	lockdown       bool
	lockdownReason string
}

// New validates cfg and builds the configured limiter.
func New(cfg config.FirewallCfg, rec Recorder, opts ...Option) (*Guard, error) {
	if cfg.RateLimitWindow <= 0 || cfg.RateLimitMax <= 0 {
		return nil, fmt.Errorf("firewall: rate limit window and max must be positive")
	}
	if cfg.FailedAttemptThreshold <= 0 {
		return nil, fmt.Errorf("firewall: failed attempt threshold must be positive")
	}
	if cfg.FailedAttemptTTL <= 0 {
		cfg.FailedAttemptTTL = time.Hour
	}

	g := &Guard{
		cfg:      cfg,
		recorder: rec,
		now:      time.Now,
		blocked:  make(map[string]blockInfo),
		failed:   make(map[string]*attempts),
	}
	switch cfg.Limiter {
	case "", LimiterWindow:
		g.limiter = newWindowLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)
	case LimiterTokenBucket:
		g.limiter = newBucketLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)
	default:
		return nil, fmt.Errorf("firewall: unknown limiter %q", cfg.Limiter)
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

func key(identifier, ip string) string { return identifier + "|" + ip }

func (g *Guard) IsBlocked(ip string) bool {
	g.blockMu.RLock()
	defer g.blockMu.RUnlock()
	_, ok := g.blocked[ip]
	return ok
}

// Block adds ip to the blocklist. Every call is audited at high risk; the ip_blocked
// transaction is appended only when ip was not already blocked.
func (g *Guard) Block(ctx context.Context, ip, reason, userID string) error {
	g.blockMu.Lock()
	_, existed := g.blocked[ip]
	if !existed {
		g.blocked[ip] = blockInfo{reason: reason, at: g.now()}
	}
	total := len(g.blocked)
	g.blockMu.Unlock()

	if !existed {
		g.metrics.Blocked(total)
		logger.L().Warnw("firewall.block", "ip", ip, "reason", reason, "user", userID)
	}

	if _, err := g.recorder.Record(ctx, userID, models.EventIPBlocked,
		fmt.Sprintf("IP %s blocked: %s", ip, reason), models.RiskHigh); err != nil {
		return fmt.Errorf("firewall.block: %w", err)
	}
	if existed {
		return nil
	}
	if _, err := g.recorder.RecordTx(ctx, models.TxIPBlocked, userID, map[string]any{
		"ip":     ip,
		"reason": reason,
	}); err != nil {
		return fmt.Errorf("firewall.block: %w", err)
	}
	return nil
}

// Unblock removes ip. Unknown addresses are a no-op.
func (g *Guard) Unblock(ctx context.Context, ip, userID string) error {
	g.blockMu.Lock()
	_, existed := g.blocked[ip]
	delete(g.blocked, ip)
	total := len(g.blocked)
	g.blockMu.Unlock()

	if !existed {
		return nil
	}
	g.metrics.BlocklistSize(total)
	logger.L().Infow("firewall.unblock", "ip", ip, "user", userID)

	if _, err := g.recorder.Record(ctx, userID, models.EventIPUnblocked,
		fmt.Sprintf("IP %s unblocked", ip), models.RiskMedium); err != nil {
		return fmt.Errorf("firewall.unblock: %w", err)
	}
	if _, err := g.recorder.RecordTx(ctx, models.TxIPUnblocked, userID, map[string]any{"ip": ip}); err != nil {
		return fmt.Errorf("firewall.unblock: %w", err)
	}
	return nil
}

// CheckRateLimit counts one request. The request that first exceeds the limit in a
// window is audited; later ones in the same window are only rejected.
func (g *Guard) CheckRateLimit(ctx context.Context, identifier, ip string) (bool, error) {
	now := g.now()
	allowed, exceeded := g.limiter.Allow(key(identifier, ip), now)
	if !exceeded {
		return allowed, nil
	}

	if g.tracker != nil {
		g.tracker.Observe(identifier, ActivityRateLimit, now)
	}
	logger.L().Warnw("firewall.rate_limit: exceeded", "identifier", identifier, "ip", ip)
	if _, err := g.recorder.Record(ctx, identifier, models.EventRateLimitExceeded,
		fmt.Sprintf("rate limit exceeded for %s from %s", identifier, ip), models.RiskMedium); err != nil {
		return allowed, fmt.Errorf("firewall.rate_limit: %w", err)
	}
	return allowed, nil
}

// RecordFailedAttempt counts a failed authentication and blocks ip once the
// threshold is reached. Counters idle longer than the TTL start over.
func (g *Guard) RecordFailedAttempt(ctx context.Context, identifier, ip string) (bool, error) {
	now := g.now()
	k := key(identifier, ip)

	g.failMu.Lock()
	a, ok := g.failed[k]
	if !ok || now.Sub(a.last) > g.cfg.FailedAttemptTTL {
		a = &attempts{}
		g.failed[k] = a
	}
	a.count++
	a.last = now
	n := a.count
	if n >= g.cfg.FailedAttemptThreshold {
		delete(g.failed, k)
	}
	g.failMu.Unlock()

	if n >= g.cfg.FailedAttemptThreshold {
		reason := fmt.Sprintf("%d failed attempts for %s", n, identifier)
		if err := g.Block(ctx, ip, reason, identifier); err != nil {
			return true, err
		}
		return true, nil
	}

	risk := models.RiskLow
	if n > 2 {
		risk = models.RiskMedium
	}
	if _, err := g.recorder.Record(ctx, identifier, models.EventFailedLogin,
		fmt.Sprintf("failed attempt %d/%d from %s", n, g.cfg.FailedAttemptThreshold, ip), risk); err != nil {
		return false, fmt.Errorf("firewall.failed_attempt: %w", err)
	}
	return false, nil
}

// ClearFailedAttempts is called once on successful authentication.
func (g *Guard) ClearFailedAttempts(identifier, ip string) {
	g.failMu.Lock()
	delete(g.failed, key(identifier, ip))
	g.failMu.Unlock()
}

// FailedAttempts returns the current counter for (identifier, ip).
func (g *Guard) FailedAttempts(identifier, ip string) int {
	g.failMu.Lock()
	defer g.failMu.Unlock()
	if a, ok := g.failed[key(identifier, ip)]; ok {
		return a.count
	}
	return 0
}

// Admit is the single entry check: lockdown, then blocklist, then rate limit.
func (g *Guard) Admit(ctx context.Context, identifier, ip string) (Decision, error) {
	d, err := g.admit(ctx, identifier, ip)
	g.metrics.Decision(d.outcome())
	return d, err
}

func (g *Guard) admit(ctx context.Context, identifier, ip string) (Decision, error) {
	if g.InLockdown() {
		return Decision{Reason: ReasonLockdown}, nil
	}
	if g.IsBlocked(ip) {
		return Decision{Reason: ReasonBlocked}, nil
	}
	ok, err := g.CheckRateLimit(ctx, identifier, ip)
	if !ok {
		return Decision{Reason: ReasonRateLimited}, err
	}
	return Decision{Allowed: true}, err
}

func (g *Guard) InLockdown() bool {
	g.lockMu.RLock()
	defer g.lockMu.RUnlock()
	return g.lockdown
}

// Lockdown denies every Admit until Lift. Repeated calls are no-ops.
func (g *Guard) Lockdown(ctx context.Context, reason, userID string) error {
	g.lockMu.Lock()
	if g.lockdown {
		g.lockMu.Unlock()
		return nil
	}
	g.lockdown = true
	g.lockdownReason = reason
	g.lockMu.Unlock()

	logger.L().Errorw("firewall.lockdown: engaged", "reason", reason, "user", userID)
	if _, err := g.recorder.RecordTx(ctx, models.TxEmergencyLockdown, userID, map[string]any{
		"active": true,
		"reason": reason,
	}); err != nil {
		return fmt.Errorf("firewall.lockdown: %w", err)
	}
	if _, err := g.recorder.Record(ctx, userID, models.EventEmergencyLockdown,
		"emergency lockdown: "+reason, models.RiskCritical); err != nil {
		return fmt.Errorf("firewall.lockdown: %w", err)
	}
	return nil
}

func (g *Guard) Lift(ctx context.Context, userID string) error {
	g.lockMu.Lock()
	if !g.lockdown {
		g.lockMu.Unlock()
		return nil
	}
	g.lockdown = false
	g.lockdownReason = ""
	g.lockMu.Unlock()

	logger.L().Infow("firewall.lockdown: lifted", "user", userID)
	if _, err := g.recorder.RecordTx(ctx, models.TxEmergencyLockdown, userID, map[string]any{"active": false}); err != nil {
		return fmt.Errorf("firewall.lift: %w", err)
	}
	if _, err := g.recorder.Record(ctx, userID, models.EventLockdownLifted,
		"emergency lockdown lifted", models.RiskMedium); err != nil {
		return fmt.Errorf("firewall.lift: %w", err)
	}
	return nil
}

// Cleanup sweeps expired rate windows, stale failed attempts and suspicion counters.
func (g *Guard) Cleanup(now time.Time) CleanupStats {
	var st CleanupStats
	st.RateLimits = g.limiter.Sweep(now)

	g.failMu.Lock()
	for k, a := range g.failed {
		if now.Sub(a.last) > g.cfg.FailedAttemptTTL {
			delete(g.failed, k)
			st.FailedAttempts++
		}
	}
	g.failMu.Unlock()

	if g.tracker != nil {
		st.Suspicions = g.tracker.Sweep(now)
	}
	return st
}

// Run calls Cleanup every interval until ctx is done.
func (g *Guard) Run(ctx context.Context, interval time.Duration) {
	log := logger.L()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debugw("firewall.cleanup: stopped")
			return
		case <-t.C:
			st := g.Cleanup(g.now())
			log.Debugw("firewall.cleanup",
				"rate_limits", st.RateLimits,
				"failed_attempts", st.FailedAttempts,
				"suspicions", st.Suspicions)
		}
	}
}

func (g *Guard) Snapshot() State {
	g.blockMu.RLock()
	ips := make([]string, 0, len(g.blocked))
	for ip := range g.blocked {
		ips = append(ips, ip)
	}
	g.blockMu.RUnlock()
	sort.Strings(ips)

	g.failMu.Lock()
	failed := len(g.failed)
	g.failMu.Unlock()

	g.lockMu.RLock()
	lock, reason := g.lockdown, g.lockdownReason
	g.lockMu.RUnlock()

	return State{
		BlockedIPs:     ips,
		RateLimitKeys:  g.limiter.Len(),
		FailedAttempts: failed,
		Lockdown:       lock,
		LockdownReason: reason,
	}
}

// Restore replays ip_blocked, ip_unblocked and emergency_lockdown transactions, in
// block order, without auditing. Entries that fail verification are skipped.
func (g *Guard) Restore(entries []*models.LedgerEntry) int {
	g.blockMu.Lock()
	g.lockMu.Lock()
	for _, e := range entries {
		if !ledger.Intact(e) {
			continue
		}
		switch e.TxType {
		case models.TxIPBlocked:
			if ip, _ := e.Payload["ip"].(string); ip != "" {
				reason, _ := e.Payload["reason"].(string)
				g.blocked[ip] = blockInfo{reason: reason, at: e.CreatedAt}
			}
		case models.TxIPUnblocked:
			if ip, _ := e.Payload["ip"].(string); ip != "" {
				delete(g.blocked, ip)
			}
		case models.TxEmergencyLockdown:
			active, _ := e.Payload["active"].(bool)
			reason, _ := e.Payload["reason"].(string)
			g.lockdown, g.lockdownReason = active, reason
		}
	}
	total := len(g.blocked)
	g.lockMu.Unlock()
	g.blockMu.Unlock()

	g.metrics.BlocklistSize(total)
	logger.L().Infow("firewall.restore", "blocked", total, "entries", len(entries))
	return total
}
