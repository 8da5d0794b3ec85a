package query

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
)

// Stats summarizes the rows a query scanned and matched.
type Stats struct {
	Input       int
	Matched     int
	Anomalies   int
	ByRiskLevel map[string]int
	ByEventType map[string]int
	ByUser      map[string]int
	First       *time.Time
	Last        *time.Time
}

func NewStats() *Stats {
	return &Stats{
		ByRiskLevel: make(map[string]int),
		ByEventType: make(map[string]int),
		ByUser:      make(map[string]int),
	}
}

func (s *Stats) add(e *models.SecurityLogEntry) {
	s.Matched++
	if e.IsAnomaly {
		s.Anomalies++
	}
	s.ByRiskLevel[string(e.RiskLevel)]++
	s.ByEventType[e.EventType]++
	if e.UserID != "" {
		s.ByUser[e.UserID]++
	}
	ts := e.CreatedAt
	if s.First == nil || ts.Before(*s.First) {
		s.First = &ts
	}
	if s.Last == nil || ts.After(*s.Last) {
		s.Last = &ts
	}
}

// PrintSummary writes a human-readable summary. Breakdowns are sorted by count,
// then by name.
func (s *Stats) PrintSummary(w io.Writer, now time.Time) {
	fmt.Fprintf(w, "Summary:\n")
	fmt.Fprintf(w, "  Rows scanned: %s\n", humanize.Comma(int64(s.Input)))
	if s.First != nil && s.Last != nil {
		fmt.Fprintf(w, "  Time range: %s (%s) to %s (%s)\n",
			s.First.Format(time.RFC3339), humanize.RelTime(*s.First, now, "ago", "from now"),
			s.Last.Format(time.RFC3339), humanize.RelTime(*s.Last, now, "ago", "from now"))
	}
	fmt.Fprintf(w, "  Matched: %s\n", humanize.Comma(int64(s.Matched)))
	fmt.Fprintf(w, "  Anomalies: %s\n\n", humanize.Comma(int64(s.Anomalies)))

	for _, section := range []struct {
		title string
		m     map[string]int
	}{
		{"By risk level", s.ByRiskLevel},
		{"By event type", s.ByEventType},
		{"By user", s.ByUser},
	} {
		if len(section.m) == 0 {
			continue
		}
		fmt.Fprintf(w, "  %s:\n", section.title)
		printSorted(w, section.m, "    ")
		fmt.Fprintln(w)
	}
}

func printSorted(w io.Writer, m map[string]int, indent string) {
	type kv struct {
		key   string
		value int
	}
	pairs := make([]kv, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, kv{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].value == pairs[j].value {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].value > pairs[j].value
	})
	for _, p := range pairs {
		fmt.Fprintf(w, "%s%s: %s\n", indent, p.key, humanize.Comma(int64(p.value)))
	}
}
