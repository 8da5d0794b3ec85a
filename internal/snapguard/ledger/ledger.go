package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vaibhaw-/snapguard/internal/snapguard/apperr"
	"github.com/vaibhaw-/snapguard/internal/snapguard/crypto"
	"github.com/vaibhaw-/snapguard/internal/snapguard/logger"
	"github.com/vaibhaw-/snapguard/internal/snapguard/metrics"
	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
	"github.com/vaibhaw-/snapguard/internal/snapguard/store"
)

// ErrReservedKey is returned when a caller payload uses a key Append owns.
var ErrReservedKey = errors.New("ledger: payload uses a reserved key")

// baseGas keeps gas_used shaped like the values older clients expect.
const baseGas = 21000

type Option func(*Ledger)

// WithTimeout bounds each store call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// Ledger serializes appends: block numbers come from one in-process sequence that
// only advances after the store confirms the insert.
type Ledger struct {
	store   store.LedgerStore
	timeout time.Duration
	now     func() time.Time
	metrics *metrics.Metrics

	mu        sync.Mutex // guards lastBlock and headHash
	lastBlock int64
	headHash  string

	obsMu     sync.RWMutex
	observers []TamperFunc
}

// New resumes the sequence from the store's last entry.
func New(ctx context.Context, st store.LedgerStore, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:    st,
		timeout:  5 * time.Second,
		now:      func() time.Time { return time.Now().UTC() },
		headHash: GenesisHash,
	}
	for _, o := range opts {
		o(l)
	}

	cctx, cancel := l.callCtx(ctx)
	defer cancel()
	last, err := st.Last(cctx)
	if err != nil {
		return nil, apperr.Unavailable("ledger.resume", err)
	}
	if last != nil {
		l.lastBlock = last.BlockNumber
		l.headHash = last.TxHash
		l.metrics.Resumed(last.BlockNumber)
	}
	logger.L().Infow("ledger: resumed", "block", l.lastBlock, "head", l.headHash)
	return l, nil
}

// OnTamper registers fn to be told about every corrupted entry found.
func (l *Ledger) OnTamper(fn TamperFunc) {
	l.obsMu.Lock()
	l.observers = append(l.observers, fn)
	l.obsMu.Unlock()
}

func (l *Ledger) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}

// Append seals payload with the next block number and the current head hash,
// hashes its canonical form and persists it. The returned hash is the entry key.
//
// If the insert times out the outcome is ambiguous: Append looks the hash up before
// reporting failure so that a retry never produces a duplicate entry.
func (l *Ledger) Append(ctx context.Context, txType models.TxType, payload map[string]any, relatedEntityID string) (string, error) {
	log := logger.L()
	start := time.Now()

	sealed := models.CopyPayload(payload)
	if sealed == nil {
		sealed = make(map[string]any)
	}
	freezeTimes(sealed)
	for _, k := range []string{KeyBlockNumber, KeyPreviousHash} {
		if _, ok := sealed[k]; ok {
			return "", fmt.Errorf("%w: %s", ErrReservedKey, k)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	block := l.lastBlock + 1
	sealed[KeyBlockNumber] = block
	sealed[KeyPreviousHash] = l.headHash

	canon, err := Canonicalize(sealed)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	txHash := crypto.HashString(canon)

	now := l.now()
	entry := &models.LedgerEntry{
		TxHash:      txHash,
		TxType:      txType,
		Payload:     sealed,
		BlockNumber: block,
		GasUsed:     baseGas + int64(len(canon)),
		IsConfirmed: true,
		CreatedAt:   now,
		ConfirmedAt: &now,
	}
	if relatedEntityID != "" {
		entry.RelatedEntityID = &relatedEntityID
	}

	if err := l.insert(ctx, entry); err != nil {
		l.metrics.AppendFailed()
		log.Errorw("ledger.append: insert failed", "tx_type", txType, "block", block, "err", err)
		return "", err
	}

	// The block number is consumed from here on, whatever the read-back says.
	l.lastBlock = block
	l.headHash = txHash

	stored, err := l.get(ctx, txHash)
	if err != nil {
		l.metrics.AppendFailed()
		return "", err
	}
	if ok, reason := check(stored); !ok {
		l.metrics.AppendFailed()
		log.Errorw("ledger.append: read-back mismatch", "tx_hash", txHash, "reason", reason)
		ierr := apperr.Integrity(txHash, "read-back after append: "+reason)
		if nerr := l.notify(ctx, stored, reason); nerr != nil {
			return "", errors.Join(ierr, nerr)
		}
		return "", ierr
	}

	l.metrics.Appended(string(txType), block, time.Since(start).Seconds())
	log.Debugw("ledger.append: done", "tx_type", txType, "block", block, "tx_hash", txHash)
	return txHash, nil
}

func (l *Ledger) insert(ctx context.Context, entry *models.LedgerEntry) error {
	cctx, cancel := l.callCtx(ctx)
	_, err := l.store.Insert(cctx, entry)
	cancel()
	if err == nil {
		return nil
	}
	if !apperr.Ambiguous(err) && !errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return apperr.Unavailable("ledger.insert", err)
	}

	// Outcome unknown: look before reporting, on a context the caller's deadline
	// cannot cancel.
	rctx, rcancel := l.callCtx(context.WithoutCancel(ctx))
	defer rcancel()
	if _, gerr := l.store.GetByHash(rctx, entry.TxHash); gerr == nil {
		logger.L().Warnw("ledger.append: insert timed out but entry landed", "tx_hash", entry.TxHash)
		return nil
	}
	return apperr.Unavailable("ledger.insert", err)
}

func (l *Ledger) get(ctx context.Context, txHash string) (*models.LedgerEntry, error) {
	cctx, cancel := l.callCtx(ctx)
	defer cancel()
	e, err := l.store.GetByHash(cctx, txHash)
	if err != nil {
		return nil, apperr.Unavailable("ledger.get", err)
	}
	return e, nil
}

// Get returns the entry or an error wrapping apperr.ErrNotFound.
func (l *Ledger) Get(ctx context.Context, txHash string) (*models.LedgerEntry, error) {
	return l.get(ctx, txHash)
}

// Verify recomputes the entry's hash from its stored payload. A mismatch is not an
// error: it returns false and notifies the tamper observers. If an observer cannot
// record the corruption the error wraps apperr.ErrDependencyUnavailable.
func (l *Ledger) Verify(ctx context.Context, txHash string) (bool, error) {
	e, err := l.get(ctx, txHash)
	if err != nil {
		return false, err
	}
	ok, reason := check(e)
	l.metrics.Verified(ok)
	if !ok {
		logger.L().Errorw("ledger.verify: corrupted entry", "tx_hash", txHash, "block", e.BlockNumber, "reason", reason)
		if nerr := l.notify(ctx, e, reason); nerr != nil {
			return false, nerr
		}
	}
	return ok, nil
}

// VerifyAll scans every entry in block order and notifies the tamper observers for
// each damaged one. It is O(n) and meant for periodic integrity jobs, not the request
// path. The report is returned even when an observer fails; the error then wraps
// apperr.ErrDependencyUnavailable.
func (l *Ledger) VerifyAll(ctx context.Context) (*VerifyReport, error) {
	return l.scan(ctx, true)
}

// Inspect runs the same scan as VerifyAll without notifying observers or counting
// verifications. Repeated calls leave no trace.
func (l *Ledger) Inspect(ctx context.Context) (*VerifyReport, error) {
	return l.scan(ctx, false)
}

func (l *Ledger) scan(ctx context.Context, notify bool) (*VerifyReport, error) {
	log := logger.L()
	start := time.Now()

	// Read the head first: entries appended during the listing only extend it.
	headBlock, headHash := l.Head()

	cctx, cancel := l.callCtx(ctx)
	entries, err := l.store.ListAll(cctx)
	cancel()
	if err != nil {
		return nil, apperr.Unavailable("ledger.list", err)
	}

	var obsErrs []error
	flag := func(e *models.LedgerEntry, reason string) {
		if notify {
			if nerr := l.notify(ctx, e, reason); nerr != nil {
				obsErrs = append(obsErrs, nerr)
			}
		}
	}

	report := &VerifyReport{CorruptedHashes: []string{}}
	prev := GenesisHash
	expect := int64(1)
	for _, e := range entries {
		report.Checked++

		ok, reason := check(e)
		if notify {
			l.metrics.Verified(ok)
		}
		if !ok {
			report.CorruptedHashes = append(report.CorruptedHashes, e.TxHash)
			flag(e, reason)
		}
		if link, _ := e.Payload[KeyPreviousHash].(string); ok && link != prev {
			report.BrokenLinks = append(report.BrokenLinks, e.TxHash)
			flag(e, "previous hash does not match preceding entry")
		}
		for missing := expect; missing < e.BlockNumber; missing++ {
			report.MissingBlocks = append(report.MissingBlocks, missing)
		}

		prev = e.TxHash
		expect = e.BlockNumber + 1
	}

	// The tail must reach the head this process sealed or resumed from.
	for missing := expect; missing <= headBlock; missing++ {
		report.MissingBlocks = append(report.MissingBlocks, missing)
	}
	if headBlock > 0 && expect-1 == headBlock && prev != headHash {
		report.BrokenLinks = append(report.BrokenLinks, prev)
	}

	report.Valid = len(report.CorruptedHashes) == 0 && len(report.BrokenLinks) == 0 && len(report.MissingBlocks) == 0

	log.Infow("ledger.verify_all: done",
		"checked", report.Checked,
		"corrupted", len(report.CorruptedHashes),
		"broken_links", len(report.BrokenLinks),
		"missing_blocks", len(report.MissingBlocks),
		"notify", notify,
		"duration", time.Since(start))
	if len(obsErrs) > 0 {
		return report, errors.Join(obsErrs...)
	}
	return report, nil
}

// Stats reads the whole chain to count entries.
func (l *Ledger) Stats(ctx context.Context) (*Stats, error) {
	cctx, cancel := l.callCtx(ctx)
	defer cancel()
	entries, err := l.store.ListAll(cctx)
	if err != nil {
		return nil, apperr.Unavailable("ledger.list", err)
	}
	block, head := l.Head()
	return &Stats{TotalEntries: len(entries), CurrentBlockNumber: block, HeadHash: head}, nil
}

// Head returns the last block number and hash appended or resumed by this process.
func (l *Ledger) Head() (int64, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastBlock, l.headHash
}

// List returns every entry in block order.
func (l *Ledger) List(ctx context.Context) ([]*models.LedgerEntry, error) {
	cctx, cancel := l.callCtx(ctx)
	defer cancel()
	entries, err := l.store.ListAll(cctx)
	if err != nil {
		return nil, apperr.Unavailable("ledger.list", err)
	}
	return entries, nil
}

// notify calls every observer; failures are counted and returned wrapped as
// apperr.ErrDependencyUnavailable.
func (l *Ledger) notify(ctx context.Context, e *models.LedgerEntry, reason string) error {
	l.obsMu.RLock()
	obs := append([]TamperFunc(nil), l.observers...)
	l.obsMu.RUnlock()

	var errs []error
	for _, fn := range obs {
		if err := fn(ctx, e, reason); err != nil {
			l.metrics.TamperNotRecorded()
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return apperr.Unavailable("ledger.tamper_observer", errors.Join(errs...))
}

// check recomputes the hash of e and confirms the sealed block number.
func check(e *models.LedgerEntry) (bool, string) {
	canon, err := Canonicalize(e.Payload)
	if err != nil {
		return false, "payload not canonical: " + err.Error()
	}
	if crypto.HashString(canon) != e.TxHash {
		return false, "hash mismatch"
	}
	sealed, err := Canonicalize(map[string]any{"b": e.Payload[KeyBlockNumber]})
	if err != nil || sealed != fmt.Sprintf(`{"b":%d}`, e.BlockNumber) {
		return false, "block number does not match sealed payload"
	}
	return true, ""
}

// Intact reports whether e still hashes to its TxHash and carries its own block number.
func Intact(e *models.LedgerEntry) bool {
	ok, _ := check(e)
	return ok
}
