package query

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vaibhaw-/snapguard/internal/snapguard/logger"
	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
)

// Run filters rows and writes matches to out as NDJSON. With Summary set and no
// OutputFile, rows are not written and only the summary goes to summaryW.
func Run(rows []*models.SecurityLogEntry, opts Options, out, summaryW io.Writer, now time.Time) (*Stats, error) {
	filters := buildFilters(opts, now)
	stats := NewStats()
	enc := json.NewEncoder(out)
	writeRows := !opts.Summary || opts.OutputFile != ""

	for _, e := range rows {
		stats.Input++
		if !matchAll(e, filters) {
			continue
		}
		stats.add(e)
		if writeRows {
			if err := enc.Encode(e); err != nil {
				return stats, fmt.Errorf("write row %s: %w", e.ID, err)
			}
		}
		if opts.Limit > 0 && stats.Matched >= opts.Limit {
			break
		}
	}

	if opts.Summary {
		stats.PrintSummary(summaryW, now)
	}
	logger.L().Debugw("query.run: done", "scanned", stats.Input, "matched", stats.Matched)
	return stats, nil
}

// OpenOutput returns stdout for an empty path. The caller closes file outputs.
func OpenOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
