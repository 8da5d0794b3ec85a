package query

import (
	"time"

	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
)

// Options holds the log command's filters and output settings.
// Empty fields do not filter.
type Options struct {
	OutputFile string // NDJSON output path, empty means stdout

	Risk      []string         // exact risk levels (low, medium, high, critical)
	MinRisk   models.RiskLevel // include rows at or above this level
	User      string           // user id, case-insensitive
	Events    []string         // event types, case-insensitive
	Anomalies bool             // only rows flagged is_anomaly
	TxHash    string           // rows backlinked to this ledger entry

	Since        time.Time     // include rows on or after this time
	LastDuration time.Duration // include rows from the last N; wins over Since

	Summary bool // print summary counts to the summary writer
	Limit   int  // stop after this many matches (0 = no limit)
}

// Filter reports whether a row should be kept. Filters combine with AND.
type Filter func(*models.SecurityLogEntry) bool
