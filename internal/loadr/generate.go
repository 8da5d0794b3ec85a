package loadr

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/vaibhaw-/snapguard/internal/snapguard/runner"
)

var permissions = []string{
	"read:reports", "write:reports", "admin:users", "read:audit",
	"share:files", "delete:messages", "export:data",
}

type account struct {
	Username string
	Password string
	IP       string
}

// Plan is a generated run. Setup registers every account and must complete before
// Ops start; Ops may be replayed concurrently.
type Plan struct {
	Accounts []account
	Setup    []runner.Event
	Ops      []runner.Event
}

// Events returns setup then ops, the order ingest expects.
func (p *Plan) Events() []runner.Event {
	out := make([]runner.Event, 0, len(p.Setup)+len(p.Ops))
	out = append(out, p.Setup...)
	return append(out, p.Ops...)
}

// Generate builds a deterministic plan for a non-zero seed.
func Generate(w Workload, start time.Time) *Plan {
	f := gofakeit.New(w.Seed)
	p := &Plan{}

	seen := map[string]bool{}
	for len(p.Accounts) < w.Users {
		name := f.Username()
		if len(name) < 3 || seen[name] {
			continue
		}
		seen[name] = true
		a := account{
			Username: name,
			Password: f.Password(true, true, true, false, false, 12),
			IP:       f.IPv4Address(),
		}
		p.Accounts = append(p.Accounts, a)
	}

	ts := start
	tick := func() string {
		ts = ts.Add(time.Duration(f.Number(50, 2000)) * time.Millisecond)
		return ts.Format(time.RFC3339Nano)
	}

	for _, a := range p.Accounts {
		p.Setup = append(p.Setup, runner.Event{
			Type: runner.TypeRegister, User: a.Username, Password: a.Password, IP: a.IP, Timestamp: tick(),
		})
	}

	pick := func() account { return p.Accounts[f.Number(0, len(p.Accounts)-1)] }
	for i := 0; i < w.TotalOps; i++ {
		a := pick()
		ev := runner.Event{User: a.Username, IP: a.IP, Timestamp: tick()}

		r := f.Float64()
		switch {
		case r < w.Mix.Login:
			ev.Type, ev.Password = runner.TypeLogin, a.Password
		case r < w.Mix.Login+w.Mix.BadLogin:
			ev.Type, ev.Password = runner.TypeLogin, f.Password(true, true, true, false, false, 12)
		case r < w.Mix.Login+w.Mix.BadLogin+w.Mix.Permission:
			ev.Type = runner.TypePermission
			ev.Permission = f.RandomString(permissions)
			ev.Metadata = anomaly(f, w.Attack.Anomalous)
		default:
			ev.Type = runner.TypeMessage
			ev.Recipient = pick().Username
			ev.Content = f.Sentence(f.Number(4, 20))
			ev.Metadata = anomaly(f, w.Attack.Anomalous)
		}
		p.Ops = append(p.Ops, ev)
	}

	for b := 0; b < w.Attack.BruteForce; b++ {
		target := pick()
		ip := f.IPv4Address()
		for i := 0; i < w.Attack.BurstSize; i++ {
			p.Ops = append(p.Ops, runner.Event{
				Type:      runner.TypeLogin,
				User:      target.Username,
				Password:  f.Password(true, true, true, false, false, 10),
				IP:        ip,
				Timestamp: tick(),
				Metadata:  map[string]any{"source": "brute_force"},
			})
		}
	}
	return p
}

func anomaly(f *gofakeit.Faker, rate float64) map[string]any {
	if rate <= 0 || f.Float64() >= rate {
		return nil
	}
	if f.Bool() {
		return map[string]any{"unusualPattern": true}
	}
	return map[string]any{"suspiciousSize": true}
}

// WriteNDJSON writes the plan as ingest input.
func WriteNDJSON(w io.Writer, p *Plan) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	for _, ev := range p.Events() {
		if err := enc.Encode(ev); err != nil {
			return n, fmt.Errorf("write event %d: %w", n+1, err)
		}
		n++
	}
	return n, nil
}
