package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vaibhaw-/snapguard/internal/snapguard/config"
	"github.com/vaibhaw-/snapguard/internal/snapguard/gate"
)

// fakeGate records calls and registers every user as "id-<name>".
type fakeGate struct {
	calls []string
	fail  error
}

func (f *fakeGate) Register(_ context.Context, username, _, _ string) (gate.Result, error) {
	f.calls = append(f.calls, "register:"+username)
	return gate.Result{OK: true, UserID: "id-" + username}, f.fail
}

func (f *fakeGate) Login(_ context.Context, username, password, _ string) (gate.Result, error) {
	f.calls = append(f.calls, "login:"+username)
	if password != "right" {
		return gate.Result{Reason: gate.ReasonInvalidCredentials, Message: gate.MsgInvalidCredentials}, f.fail
	}
	return gate.Result{OK: true, UserID: "id-" + username}, f.fail
}

func (f *fakeGate) RequestPermission(_ context.Context, userID, permission, _ string, _ map[string]any) (gate.Result, error) {
	f.calls = append(f.calls, "permission:"+userID+":"+permission)
	return gate.Result{OK: true, UserID: userID}, f.fail
}

func (f *fakeGate) SendMessage(_ context.Context, senderID, recipientID, _, _ string, _ map[string]any) (gate.Result, error) {
	f.calls = append(f.calls, "message:"+senderID+"->"+recipientID)
	return gate.Result{OK: true, UserID: senderID, Ciphertext: "secret"}, f.fail
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var lines []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		lines = append(lines, s.Text())
	}
	return lines
}

func TestRunIngest(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Logging: config.LoggingCfg{RunLog: filepath.Join(dir, "runs.ndjson")},
		Output:  config.OutputCfg{RejectFile: filepath.Join(dir, "rejects.ndjson")},
	}
	input := strings.Join([]string{
		`{"type":"register","user":"alice","password":"pw","ip":"10.0.0.1","timestamp":"2025-10-01 12:00:00"}`,
		`{"type":"register","user":"bob","password":"pw","ip":"10.0.0.2"}`,
		``,
		`{"type":"login","user":"alice","password":"wrong","ip":"10.0.0.1"}`,
		`{"type":"permission","user":"alice","permission":"CAMERA","ip":"10.0.0.1"}`,
		`{"type":"message","user":"alice","recipient":"bob","content":"hi","ip":"10.0.0.1"}`,
		`not json`,
		`{"type":"teleport","user":"alice","ip":"10.0.0.1"}`,
		`{"type":"login","user":"alice","ip":"10.0.0.1","timestamp":"yesterday-ish"}`,
		`{"type":"login","user":"","ip":"10.0.0.1"}`,
	}, "\n")

	g := &fakeGate{}
	var out bytes.Buffer
	sum, err := RunIngest(context.Background(), g, strings.NewReader(input), &out, "events.ndjson", cfg)
	if err != nil {
		t.Fatalf("RunIngest: %v", err)
	}

	if sum.RawCount != 9 || sum.AcceptedCount != 4 || sum.DeniedCount != 1 || sum.RejectedCount != 4 {
		t.Errorf("unexpected summary: %+v", sum)
	}

	want := []string{
		"register:alice",
		"register:bob",
		"login:alice",
		"permission:id-alice:CAMERA",
		"message:id-alice->id-bob",
	}
	if strings.Join(g.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", g.calls, want)
	}

	var outcomes []Outcome
	dec := json.NewDecoder(&out)
	for dec.More() {
		var o Outcome
		if err := dec.Decode(&o); err != nil {
			t.Fatalf("decode outcome: %v", err)
		}
		outcomes = append(outcomes, o)
	}
	if len(outcomes) != 5 {
		t.Fatalf("got %d outcomes, want 5", len(outcomes))
	}
	if outcomes[0].EventTime != "2025-10-01T12:00:00Z" {
		t.Errorf("event time = %q", outcomes[0].EventTime)
	}
	if outcomes[4].Result.Ciphertext != "" {
		t.Errorf("ciphertext leaked into outcome")
	}
	if outcomes[2].Result.Message != gate.MsgInvalidCredentials {
		t.Errorf("denial not carried through: %+v", outcomes[2].Result)
	}

	rejects := readLines(t, cfg.Output.RejectFile)
	if len(rejects) != 4 {
		t.Errorf("got %d rejects, want 4", len(rejects))
	}
	runs := readLines(t, cfg.Logging.RunLog)
	if len(runs) != 1 {
		t.Fatalf("got %d run log lines, want 1", len(runs))
	}
	var logged RunSummary
	if err := json.Unmarshal([]byte(runs[0]), &logged); err != nil {
		t.Fatalf("decode run log: %v", err)
	}
	if logged.RunID != sum.RunID || logged.Input != "events.ndjson" {
		t.Errorf("run log = %+v", logged)
	}
}

func TestRunIngest_DependencyFailureAborts(t *testing.T) {
	g := &fakeGate{fail: errors.New("storage down")}
	input := `{"type":"register","user":"alice","password":"pw","ip":"10.0.0.1"}` + "\n" +
		`{"type":"register","user":"bob","password":"pw","ip":"10.0.0.2"}`

	sum, err := RunIngest(context.Background(), g, strings.NewReader(input), &bytes.Buffer{}, "stdin", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(g.calls) != 1 {
		t.Errorf("run continued after failure: %v", g.calls)
	}
	if sum.RawCount != 1 {
		t.Errorf("raw count = %d", sum.RawCount)
	}
}
