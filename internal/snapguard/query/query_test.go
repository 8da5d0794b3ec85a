package query

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
)

var base = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func sampleRows() []*models.SecurityLogEntry {
	return []*models.SecurityLogEntry{
		{ID: "1", UserID: "alice", EventType: models.EventLoginSuccess, RiskLevel: models.RiskLow, CreatedAt: base.Add(-48 * time.Hour), TxHash: strPtr("aa")},
		{ID: "2", UserID: "bob", EventType: models.EventFailedLogin, RiskLevel: models.RiskMedium, CreatedAt: base.Add(-2 * time.Hour)},
		{ID: "3", UserID: "bob", EventType: models.EventIPBlocked, RiskLevel: models.RiskHigh, IsAnomaly: true, CreatedAt: base.Add(-time.Hour)},
		{ID: "4", UserID: "alice", EventType: models.EventIntegrityViolation, RiskLevel: models.RiskCritical, IsAnomaly: true, CreatedAt: base, TxHash: strPtr("BB")},
	}
}

func TestFilters(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{"no filters", Options{}, []string{"1", "2", "3", "4"}},
		{"risk", Options{Risk: []string{"HIGH", "low"}}, []string{"1", "3"}},
		{"min risk", Options{MinRisk: models.RiskHigh}, []string{"3", "4"}},
		{"user", Options{User: "BOB"}, []string{"2", "3"}},
		{"event", Options{Events: []string{"ip_blocked", "login_success"}}, []string{"1", "3"}},
		{"anomalies", Options{Anomalies: true}, []string{"3", "4"}},
		{"tx hash", Options{TxHash: "bb"}, []string{"4"}},
		{"since", Options{Since: base.Add(-90 * time.Minute)}, []string{"3", "4"}},
		{"last wins over since", Options{Since: base.Add(-time.Minute), LastDuration: 3 * time.Hour}, []string{"2", "3", "4"}},
		{"combined", Options{User: "alice", Anomalies: true}, []string{"4"}},
		{"limit", Options{Limit: 2}, []string{"1", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			stats, err := Run(sampleRows(), tt.opts, &out, &bytes.Buffer{}, base)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			var got []string
			dec := json.NewDecoder(&out)
			for dec.More() {
				var e models.SecurityLogEntry
				if err := dec.Decode(&e); err != nil {
					t.Fatalf("decode: %v", err)
				}
				got = append(got, e.ID)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if stats.Matched != len(tt.want) {
				t.Errorf("matched = %d, want %d", stats.Matched, len(tt.want))
			}
		})
	}
}

func TestRun_SummaryOnly(t *testing.T) {
	var out, summary bytes.Buffer
	stats, err := Run(sampleRows(), Options{Summary: true}, &out, &summary, base)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("rows written in summary-only mode: %q", out.String())
	}
	if stats.Anomalies != 2 || stats.ByUser["bob"] != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	s := summary.String()
	for _, want := range []string{"Rows scanned: 4", "Anomalies: 2", "By risk level:", "alice: 2", "2 days ago"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
}

func TestParseSince(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2025-10-01", time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), false},
		{"2025-10-01T12:00:00Z", base, false},
		{"2025-10-01T14:00:00+02:00", base, false},
		{"", time.Time{}, true},
		{"not a date", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := ParseSince(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSince(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !got.Equal(tt.want) {
			t.Errorf("ParseSince(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"7d", 7 * 24 * time.Hour, false},
		{"24h", 24 * time.Hour, false},
		{"1h30m", 90 * time.Minute, false},
		{"-1d", 0, true},
		{"-5m", 0, true},
		{"xd", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuration(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
