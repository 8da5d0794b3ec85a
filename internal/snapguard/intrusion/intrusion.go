// Package intrusion scores activity against threshold heuristics. It decides an
// action but never enforces it; callers act on Assessment.Action.
package intrusion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vaibhaw-/snapguard/internal/snapguard/config"
	"github.com/vaibhaw-/snapguard/internal/snapguard/logger"
	"github.com/vaibhaw-/snapguard/internal/snapguard/metrics"
	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
)

type Level string

const (
	LevelNone     Level = "none"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Risk maps a threat level onto the audit risk scale. LevelNone maps to low.
func (l Level) Risk() models.RiskLevel {
	switch l {
	case LevelMedium:
		return models.RiskMedium
	case LevelHigh:
		return models.RiskHigh
	case LevelCritical:
		return models.RiskCritical
	}
	return models.RiskLow
}

type Action string

const (
	ActionContinue            Action = "continue"
	ActionMonitor             Action = "monitor"
	ActionRequireVerification Action = "require_verification"
	ActionBlockUser           Action = "block_user"
)

// Signal names.
const (
	SignalRapidActivity  = "rapid_activity"
	SignalUnusualPattern = "unusual_pattern"
	SignalSuspiciousSize = "suspicious_size"
)

// Metadata flags read by Evaluate.
const (
	MetaUnusualPattern = "unusualPattern"
	MetaSuspiciousSize = "suspiciousSize"
)

type Assessment struct {
	Threat  bool     `json:"threat"`
	Level   Level    `json:"level"`
	Action  Action   `json:"action"`
	Signals []string `json:"signals,omitempty"`
	TxHash  string   `json:"tx_hash,omitempty"` // intrusion_detected entry, when one was written
}

// Scorer turns matched signals into a level and action.
type Scorer interface {
	Score(signals []string) (Level, Action)
}

// ThresholdScorer escalates by the number of matched signals.
type ThresholdScorer struct{}

func (ThresholdScorer) Score(signals []string) (Level, Action) {
	switch n := len(signals); {
	case n == 0:
		return LevelNone, ActionContinue
	case n == 1:
		return LevelMedium, ActionMonitor
	case n == 2:
		return LevelHigh, ActionRequireVerification
	default:
		return LevelCritical, ActionBlockUser
	}
}

// Recorder is the slice of the audit service the detector writes through.
type Recorder interface {
	Record(ctx context.Context, userID, eventType, description string, risk models.RiskLevel) (string, error)
	RecordTx(ctx context.Context, txType models.TxType, userID string, payload map[string]any) (string, error)
}

type Option func(*Detector)

func WithScorer(s Scorer) Option { return func(d *Detector) { d.scorer = s } }

func WithClock(now func() time.Time) Option { return func(d *Detector) { d.now = now } }

func WithMetrics(m *metrics.Metrics) Option { return func(d *Detector) { d.metrics = m } }

// WithCounters shares counters with another component, such as the firewall.
func WithCounters(c *Counters) Option { return func(d *Detector) { d.counters = c } }

type Detector struct {
	threshold int
	counters  *Counters
	scorer    Scorer
	recorder  Recorder
	metrics   *metrics.Metrics
	now       func() time.Time
}

func New(cfg config.IntrusionCfg, rec Recorder, opts ...Option) *Detector {
	if cfg.RapidActivityThreshold <= 0 {
		cfg.RapidActivityThreshold = 20
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	d := &Detector{
		threshold: cfg.RapidActivityThreshold,
		scorer:    ThresholdScorer{},
		recorder:  rec,
		now:       time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	if d.counters == nil {
		d.counters = NewCounters(cfg.Window)
	}
	return d
}

func (d *Detector) Counters() *Counters { return d.counters }

// Evaluate counts the activity and checks every signal. When any signal matched, a
// security_audit record and an intrusion_detected transaction are written before
// returning.
func (d *Detector) Evaluate(ctx context.Context, userID, activity string, metadata map[string]any) (Assessment, error) {
	var signals []string
	if d.counters.Observe(userID, activity, d.now()) > d.threshold {
		signals = append(signals, SignalRapidActivity)
	}
	act := strings.ToLower(activity)
	if strings.Contains(act, "permission") && flag(metadata, MetaUnusualPattern) {
		signals = append(signals, SignalUnusualPattern)
	}
	if strings.Contains(act, "file") && flag(metadata, MetaSuspiciousSize) {
		signals = append(signals, SignalSuspiciousSize)
	}

	level, action := d.scorer.Score(signals)
	a := Assessment{Threat: len(signals) > 0, Level: level, Action: action, Signals: signals}
	d.metrics.Assessed(string(level))
	if !a.Threat {
		return a, nil
	}

	logger.L().Warnw("intrusion.evaluate: threat",
		"user", userID, "activity", activity, "signals", signals, "level", level, "action", action)

	desc := fmt.Sprintf("intrusion signals on %s: %s (action %s)", activity, strings.Join(signals, ","), action)
	if _, err := d.recorder.Record(ctx, userID, models.EventIntrusionDetected, desc, level.Risk()); err != nil {
		return a, fmt.Errorf("intrusion.evaluate: %w", err)
	}
	h, err := d.recorder.RecordTx(ctx, models.TxIntrusionDetected, userID, map[string]any{
		"activity": activity,
		"signals":  append([]string(nil), signals...),
		"level":    string(level),
		"action":   string(action),
	})
	if err != nil {
		return a, fmt.Errorf("intrusion.evaluate: %w", err)
	}
	a.TxHash = h
	return a, nil
}

// flag accepts a bool or the strings "true"/"1".
func flag(metadata map[string]any, key string) bool {
	switch v := metadata[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	}
	return false
}
