package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaibhaw-/snapguard/internal/snapguard/app"
	"github.com/vaibhaw-/snapguard/internal/snapguard/config"
	"github.com/vaibhaw-/snapguard/internal/snapguard/ledger"
	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
	"github.com/vaibhaw-/snapguard/internal/snapguard/store/memory"
)

func newServer(t *testing.T) *Server {
	t.Helper()
	v := viper.New()
	v.Set("crypto.encryption_key", "k1")
	v.Set("crypto.master_encryption_key", "k2")
	cfg, err := config.Load(v)
	require.NoError(t, err)
	a, err := app.New(context.Background(), cfg, app.WithBackend(memory.New()))
	require.NoError(t, err)
	return New(a)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t)
	_, err := s.app.Audit.Record(context.Background(), "ops", "smoke", "monitor test", models.RiskLow)
	require.NoError(t, err)

	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "snapguard_ledger_appends_total"))

	s.Observe(&ledger.VerifyReport{Valid: false}, nil)
	rec = get(t, s, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIntegrityAndEntry(t *testing.T) {
	s := newServer(t)
	h, err := s.app.Audit.RecordTx(context.Background(), models.TxSecurityAudit, "ops", map[string]any{"k": "v"})
	require.NoError(t, err)

	rec := get(t, s, "/integrity")
	require.Equal(t, http.StatusOK, rec.Code)
	var report ledger.VerifyReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.True(t, report.Valid)
	assert.Equal(t, 1, report.Checked)

	rec = get(t, s, "/entries/"+h)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Verified bool `json:"verified"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Verified)

	rec = get(t, s, "/entries/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, s, "/stats")
	assert.Equal(t, http.StatusOK, rec.Code)
}
