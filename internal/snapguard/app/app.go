// Package app wires one process worth of snapguard components from a Config.
// Nothing here is global: commands build an App and pass it down.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vaibhaw-/snapguard/internal/snapguard/apperr"
	"github.com/vaibhaw-/snapguard/internal/snapguard/audit"
	"github.com/vaibhaw-/snapguard/internal/snapguard/config"
	"github.com/vaibhaw-/snapguard/internal/snapguard/crypto"
	"github.com/vaibhaw-/snapguard/internal/snapguard/firewall"
	"github.com/vaibhaw-/snapguard/internal/snapguard/gate"
	"github.com/vaibhaw-/snapguard/internal/snapguard/intrusion"
	"github.com/vaibhaw-/snapguard/internal/snapguard/ledger"
	"github.com/vaibhaw-/snapguard/internal/snapguard/logger"
	"github.com/vaibhaw-/snapguard/internal/snapguard/metrics"
	"github.com/vaibhaw-/snapguard/internal/snapguard/store"
	"github.com/vaibhaw-/snapguard/internal/snapguard/store/memory"
	"github.com/vaibhaw-/snapguard/internal/snapguard/store/sqlstore"
)

type App struct {
	Config   *config.Config
	Backend  store.Backend
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Ledger   *ledger.Ledger
	Audit    *audit.Service
	Detector *intrusion.Detector
	Firewall *firewall.Guard
	Gate     *gate.Gate
}

type Option func(*options)

type options struct {
	backend store.Backend
}

// WithBackend uses b instead of opening the configured storage.
func WithBackend(b store.Backend) Option {
	return func(o *options) { o.backend = b }
}

// OpenBackend selects the storage implementation by driver name.
func OpenBackend(ctx context.Context, cfg config.StorageCfg) (store.Backend, error) {
	switch cfg.Driver {
	case "", "memory":
		logger.L().Warnw("app: using in-memory storage; the ledger will not survive restart")
		return memory.New(), nil
	case "postgres", "pgx", "mysql", "sqlite3":
		return sqlstore.Open(ctx, sqlstore.Config{
			Driver:       cfg.Driver,
			DSN:          cfg.DSN,
			MaxOpenConns: cfg.MaxOpenConns,
			MaxIdleConns: cfg.MaxIdleConns,
		})
	default:
		return nil, apperr.Configuration("unknown storage.driver %q", cfg.Driver)
	}
}

// New fails fast on missing key material before touching storage. Firewall
// state is rebuilt from the ledger.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cipher, err := crypto.LoadCipher(cfg)
	if err != nil {
		return nil, err
	}

	backend := o.backend
	if backend == nil {
		if backend, err = OpenBackend(ctx, cfg.Storage); err != nil {
			return nil, err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	a := &App{Config: cfg, Backend: backend, Registry: reg, Metrics: m}
	fail := func(err error) (*App, error) {
		_ = backend.Close()
		return nil, err
	}

	a.Ledger, err = ledger.New(ctx, backend.Ledger(),
		ledger.WithTimeout(cfg.Storage.Timeout),
		ledger.WithMetrics(m))
	if err != nil {
		return fail(err)
	}
	a.Audit = audit.New(a.Ledger, backend.SecurityLog())
	a.Detector = intrusion.New(cfg.Intrusion, a.Audit, intrusion.WithMetrics(m))

	a.Firewall, err = firewall.New(cfg.Firewall, a.Audit,
		firewall.WithMetrics(m),
		firewall.WithSuspicionTracker(a.Detector.Counters()))
	if err != nil {
		return fail(apperr.Configuration("%v", err))
	}
	entries, err := a.Ledger.List(ctx)
	if err != nil {
		return fail(err)
	}
	a.Firewall.Restore(entries)

	a.Gate, err = gate.New(gate.Deps{
		Users:            backend.Users(),
		Audit:            a.Audit,
		Firewall:         a.Firewall,
		Intrusion:        a.Detector,
		Cipher:           cipher,
		LockdownOnTamper: cfg.Integrity.LockdownOnTamper,
	})
	if err != nil {
		return fail(err)
	}
	return a, nil
}

func (a *App) Close() error {
	if err := a.Backend.Close(); err != nil {
		return fmt.Errorf("close backend: %w", err)
	}
	return nil
}

// RunJobs runs the firewall sweeper and the periodic integrity check until ctx is
// done. Integrity results are passed to onReport when it is non-nil.
func (a *App) RunJobs(ctx context.Context, onReport func(*ledger.VerifyReport, error)) {
	var wg sync.WaitGroup

	if iv := a.Config.Firewall.CleanupInterval; iv > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Firewall.Run(ctx, iv)
		}()
	}

	if iv := a.Config.Integrity.Interval; iv > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.integrityLoop(ctx, iv, onReport)
		}()
	}

	wg.Wait()
}

func (a *App) integrityLoop(ctx context.Context, every time.Duration, onReport func(*ledger.VerifyReport, error)) {
	log := logger.L()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			report, err := a.Gate.IntegrityCheck(ctx)
			if err != nil {
				log.Errorw("app.integrity: check failed", "err", err)
			}
			if report != nil && !report.Valid {
				log.Errorw("app.integrity: chain compromised",
					"corrupted", len(report.CorruptedHashes),
					"broken_links", len(report.BrokenLinks),
					"missing_blocks", len(report.MissingBlocks))
			}
			if onReport != nil {
				onReport(report, err)
			}
		}
	}
}
