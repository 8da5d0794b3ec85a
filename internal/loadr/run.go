package loadr

import (
	"context"
	"sync"

	"github.com/vaibhaw-/snapguard/internal/snapguard/gate"
	"github.com/vaibhaw-/snapguard/internal/snapguard/logger"
	"github.com/vaibhaw-/snapguard/internal/snapguard/runner"
)

// Stats counts results per event type.
type Stats struct {
	Accepted map[string]int `json:"accepted"`
	Denied   map[string]int `json:"denied"`
	Reasons  map[string]int `json:"reasons"`
	Errors   int            `json:"errors"`
	Skipped  int            `json:"skipped"`
}

func newStats() *Stats {
	return &Stats{Accepted: map[string]int{}, Denied: map[string]int{}, Reasons: map[string]int{}}
}

// Drive replays a plan against the gate. Setup runs sequentially so user ids are
// known; ops are spread over concurrency workers.
func Drive(ctx context.Context, g runner.Gate, p *Plan, concurrency int) (*Stats, error) {
	stats := newStats()
	ids := map[string]string{}

	for _, ev := range p.Setup {
		res, err := g.Register(ctx, ev.User, ev.Password, ev.IP)
		if err != nil {
			return stats, err
		}
		if res.OK {
			ids[ev.User] = res.UserID
			stats.Accepted[ev.Type]++
		} else {
			stats.Denied[ev.Type]++
			stats.Reasons[res.Reason]++
		}
	}

	if concurrency <= 0 {
		concurrency = 1
	}
	opsCh := make(chan runner.Event)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for ev := range opsCh {
				res, ok, err := dispatch(ctx, g, ids, ev)
				mu.Lock()
				switch {
				case err != nil:
					stats.Errors++
					logger.L().Warnw("loadr: op failed", "worker", workerID, "type", ev.Type, "err", err)
				case !ok:
					stats.Skipped++
				case res.OK:
					stats.Accepted[ev.Type]++
				default:
					stats.Denied[ev.Type]++
					stats.Reasons[res.Reason]++
				}
				mu.Unlock()
			}
		}(w)
	}

	var err error
feed:
	for _, ev := range p.Ops {
		select {
		case opsCh <- ev:
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		}
	}
	close(opsCh)
	wg.Wait()

	logger.L().Infow("loadr: run complete",
		"accepted", stats.Accepted, "denied", stats.Denied, "errors", stats.Errors)
	return stats, err
}

// dispatch returns ok=false when the event references a user that never registered.
func dispatch(ctx context.Context, g runner.Gate, ids map[string]string, ev runner.Event) (res gate.Result, ok bool, err error) {
	switch ev.Type {
	case runner.TypeLogin:
		res, err = g.Login(ctx, ev.User, ev.Password, ev.IP)
		return res, true, err
	case runner.TypePermission:
		id, found := ids[ev.User]
		if !found {
			return res, false, nil
		}
		res, err = g.RequestPermission(ctx, id, ev.Permission, ev.IP, ev.Metadata)
		return res, true, err
	case runner.TypeMessage:
		from, f1 := ids[ev.User]
		to, f2 := ids[ev.Recipient]
		if !f1 || !f2 {
			return res, false, nil
		}
		res, err = g.SendMessage(ctx, from, to, ev.IP, ev.Content, ev.Metadata)
		return res, true, err
	}
	return res, false, nil
}
