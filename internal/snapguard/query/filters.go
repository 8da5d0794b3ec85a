package query

import (
	"strings"
	"time"

	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
)

// ByRisk matches rows whose risk level is one of levels.
func ByRisk(levels []string) Filter {
	return func(e *models.SecurityLogEntry) bool {
		return matchesAny(string(e.RiskLevel), levels)
	}
}

// ByMinRisk matches rows at or above min.
func ByMinRisk(min models.RiskLevel) Filter {
	return func(e *models.SecurityLogEntry) bool {
		return e.RiskLevel.AtLeast(min)
	}
}

func ByUser(user string) Filter {
	return func(e *models.SecurityLogEntry) bool {
		return strings.EqualFold(e.UserID, user)
	}
}

func ByEvent(events []string) Filter {
	return func(e *models.SecurityLogEntry) bool {
		return matchesAny(e.EventType, events)
	}
}

func OnlyAnomalies() Filter {
	return func(e *models.SecurityLogEntry) bool { return e.IsAnomaly }
}

// ByTxHash matches rows that reference the given ledger entry.
func ByTxHash(h string) Filter {
	return func(e *models.SecurityLogEntry) bool {
		return e.TxHash != nil && strings.EqualFold(*e.TxHash, h)
	}
}

// ByTime matches rows on or after a cutoff. A positive last takes precedence
// over since and is measured back from now.
func ByTime(since time.Time, last time.Duration, now time.Time) Filter {
	cutoff := since
	if last > 0 {
		cutoff = now.Add(-last)
	}
	return func(e *models.SecurityLogEntry) bool {
		return !e.CreatedAt.Before(cutoff)
	}
}

func buildFilters(opts Options, now time.Time) []Filter {
	var filters []Filter
	if len(opts.Risk) > 0 {
		filters = append(filters, ByRisk(opts.Risk))
	}
	if opts.MinRisk != "" {
		filters = append(filters, ByMinRisk(opts.MinRisk))
	}
	if opts.User != "" {
		filters = append(filters, ByUser(opts.User))
	}
	if len(opts.Events) > 0 {
		filters = append(filters, ByEvent(opts.Events))
	}
	if opts.Anomalies {
		filters = append(filters, OnlyAnomalies())
	}
	if opts.TxHash != "" {
		filters = append(filters, ByTxHash(opts.TxHash))
	}
	if !opts.Since.IsZero() || opts.LastDuration > 0 {
		filters = append(filters, ByTime(opts.Since, opts.LastDuration, now))
	}
	return filters
}

func matchAll(e *models.SecurityLogEntry, filters []Filter) bool {
	for _, f := range filters {
		if !f(e) {
			return false
		}
	}
	return true
}

func matchesAny(target string, candidates []string) bool {
	for _, c := range candidates {
		if strings.EqualFold(target, c) {
			return true
		}
	}
	return false
}
