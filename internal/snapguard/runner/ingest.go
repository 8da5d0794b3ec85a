// Package runner replays NDJSON domain events through the gate, writing one
// outcome line per event plus a reject file and an append-only run log.
package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vaibhaw-/snapguard/internal/snapguard/config"
	"github.com/vaibhaw-/snapguard/internal/snapguard/gate"
	"github.com/vaibhaw-/snapguard/internal/snapguard/logger"
)

// Event types accepted on input.
const (
	TypeRegister   = "register"
	TypeLogin      = "login"
	TypePermission = "permission"
	TypeMessage    = "message"
)

// Event is one input line. User and Recipient may be usernames seen earlier in
// the same run; they are resolved to user ids.
type Event struct {
	Type       string         `json:"type"`
	User       string         `json:"user"`
	Password   string         `json:"password,omitempty"`
	IP         string         `json:"ip"`
	Permission string         `json:"permission,omitempty"`
	Recipient  string         `json:"recipient,omitempty"`
	Content    string         `json:"content,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  string         `json:"timestamp,omitempty"`
}

// Outcome is written for every accepted event.
type Outcome struct {
	RunID     string      `json:"run_id"`
	Line      int         `json:"line"`
	Type      string      `json:"type"`
	User      string      `json:"user"`
	EventTime string      `json:"event_time,omitempty"`
	Result    gate.Result `json:"result"`
}

// Rejected is written to the reject file for lines that could not be processed.
type Rejected struct {
	RunID  string `json:"run_id"`
	Line   int    `json:"line"`
	Reason string `json:"reason"`
	Raw    string `json:"raw"`
}

type RunSummary struct {
	RunID         string `json:"run_id"`
	Timestamp     string `json:"timestamp"`
	Input         string `json:"input"`
	RejectFile    string `json:"reject_file,omitempty"`
	RawCount      int    `json:"raw_count"`
	AcceptedCount int    `json:"accepted_count"`
	DeniedCount   int    `json:"denied_count"`
	RejectedCount int    `json:"rejected_count"`
}

// Gate is the part of gate.Gate the runner drives.
type Gate interface {
	Register(ctx context.Context, username, password, ip string) (gate.Result, error)
	Login(ctx context.Context, username, password, ip string) (gate.Result, error)
	RequestPermission(ctx context.Context, userID, permission, ip string, metadata map[string]any) (gate.Result, error)
	SendMessage(ctx context.Context, senderID, recipientID, ip, content string, metadata map[string]any) (gate.Result, error)
}

type rejectError struct{ reason string }

func (e rejectError) Error() string { return e.reason }

func reject(format string, args ...any) error {
	return rejectError{reason: fmt.Sprintf(format, args...)}
}

type ingester struct {
	g      Gate
	runID  string
	ids    map[string]string // username -> user id
	out    *json.Encoder
	reject *json.Encoder
	log    *zap.SugaredLogger
}

func (in *ingester) resolve(name string) string {
	if id, ok := in.ids[strings.ToLower(name)]; ok {
		return id
	}
	return name
}

func (in *ingester) writeReject(line int, raw, reason string) error {
	if in.reject == nil {
		return nil
	}
	if err := in.reject.Encode(Rejected{RunID: in.runID, Line: line, Reason: reason, Raw: raw}); err != nil {
		return fmt.Errorf("encode reject: %w", err)
	}
	return nil
}

// process returns a rejectError for bad input and any other error for failures
// that must stop the run.
func (in *ingester) process(ctx context.Context, n int, raw string) (*Outcome, error) {
	var evt Event
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		return nil, reject("invalid json: %v", err)
	}
	if evt.User == "" || evt.IP == "" {
		return nil, reject("user and ip are required")
	}

	o := &Outcome{RunID: in.runID, Line: n, Type: evt.Type, User: evt.User}
	if evt.Timestamp != "" {
		ts, err := dateparse.ParseIn(evt.Timestamp, time.UTC)
		if err != nil {
			return nil, reject("invalid timestamp %q", evt.Timestamp)
		}
		o.EventTime = ts.UTC().Format(time.RFC3339Nano)
	}

	var (
		res gate.Result
		err error
	)
	switch strings.ToLower(evt.Type) {
	case TypeRegister:
		res, err = in.g.Register(ctx, evt.User, evt.Password, evt.IP)
	case TypeLogin:
		res, err = in.g.Login(ctx, evt.User, evt.Password, evt.IP)
	case TypePermission:
		res, err = in.g.RequestPermission(ctx, in.resolve(evt.User), evt.Permission, evt.IP, evt.Metadata)
	case TypeMessage:
		res, err = in.g.SendMessage(ctx, in.resolve(evt.User), in.resolve(evt.Recipient), evt.IP, evt.Content, evt.Metadata)
	default:
		return nil, reject("unknown event type %q", evt.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("line %d %s: %w", n, evt.Type, err)
	}
	if res.OK && res.UserID != "" {
		in.ids[strings.ToLower(evt.User)] = res.UserID
	}
	// Ciphertext is transport data; it does not belong in the outcome log.
	res.Ciphertext = ""
	o.Result = res
	return o, nil
}

func appendRunLog(path string, summary RunSummary) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(summary)
}

func openRejectFile(cfg *config.Config) (io.WriteCloser, error) {
	if cfg == nil || cfg.Output.RejectFile == "" {
		return nil, nil
	}
	return os.OpenFile(cfg.Output.RejectFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// RunIngest is the core loop behind the ingest command, kept out of cobra so it
// can be tested. inputName only labels the run log.
func RunIngest(ctx context.Context, g Gate, in io.Reader, out io.Writer, inputName string, cfg *config.Config) (*RunSummary, error) {
	log := logger.L()
	runID := uuid.NewString()
	log.Infow("starting ingest run", "run_id", runID, "input", inputName)

	rejectFile, err := openRejectFile(cfg)
	if err != nil {
		log.Errorw("failed to open reject file", "path", cfg.Output.RejectFile, "err", err.Error())
		return nil, fmt.Errorf("open reject file: %w", err)
	}
	ing := &ingester{
		g:     g,
		runID: runID,
		ids:   make(map[string]string),
		out:   json.NewEncoder(out),
		log:   log,
	}
	if rejectFile != nil {
		defer rejectFile.Close()
		ing.reject = json.NewEncoder(rejectFile)
	}

	summary := &RunSummary{RunID: runID, Input: inputName}
	if cfg != nil {
		summary.RejectFile = cfg.Output.RejectFile
	}
	start := time.Now()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		summary.RawCount++
		if summary.RawCount%1000 == 0 {
			log.Infow("ingest progress",
				"lines_processed", summary.RawCount,
				"accepted", summary.AcceptedCount,
				"rejected", summary.RejectedCount)
		}

		o, err := ing.process(ctx, summary.RawCount, raw)
		if rerr, ok := err.(rejectError); ok {
			log.Debugw("rejecting line", "line", summary.RawCount, "reason", rerr.reason)
			summary.RejectedCount++
			if err := ing.writeReject(summary.RawCount, raw, rerr.reason); err != nil {
				return summary, err
			}
			continue
		}
		if err != nil {
			log.Errorw("ingest aborted", "line", summary.RawCount, "err", err.Error())
			return summary, err
		}

		if o.Result.OK {
			summary.AcceptedCount++
		} else {
			summary.DeniedCount++
		}
		if err := ing.out.Encode(o); err != nil {
			return summary, fmt.Errorf("encode outcome: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("scan input: %w", err)
	}

	summary.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	if cfg != nil && cfg.Logging.RunLog != "" {
		if err := appendRunLog(cfg.Logging.RunLog, *summary); err != nil {
			log.Errorw("failed to write run log", "path", cfg.Logging.RunLog, "err", err.Error())
		}
	}

	log.Infow("completed ingest run",
		"run_id", runID,
		"duration", time.Since(start),
		"lines", summary.RawCount,
		"accepted", summary.AcceptedCount,
		"denied", summary.DeniedCount,
		"rejected", summary.RejectedCount)
	return summary, nil
}
