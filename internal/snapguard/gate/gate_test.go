package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaibhaw-/snapguard/internal/snapguard/apperr"
	"github.com/vaibhaw-/snapguard/internal/snapguard/audit"
	"github.com/vaibhaw-/snapguard/internal/snapguard/config"
	"github.com/vaibhaw-/snapguard/internal/snapguard/crypto"
	"github.com/vaibhaw-/snapguard/internal/snapguard/firewall"
	"github.com/vaibhaw-/snapguard/internal/snapguard/intrusion"
	"github.com/vaibhaw-/snapguard/internal/snapguard/ledger"
	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
	"github.com/vaibhaw-/snapguard/internal/snapguard/store/memory"
)

type editableLedger struct {
	*memory.LedgerStore
	mu    sync.Mutex
	edits map[string]func(map[string]any)
}

func (s *editableLedger) set(txHash string, fn func(map[string]any)) {
	s.mu.Lock()
	s.edits[txHash] = fn
	s.mu.Unlock()
}

func (s *editableLedger) apply(e *models.LedgerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn, ok := s.edits[e.TxHash]; ok {
		fn(e.Payload)
	}
}

func (s *editableLedger) GetByHash(ctx context.Context, h string) (*models.LedgerEntry, error) {
	e, err := s.LedgerStore.GetByHash(ctx, h)
	if err == nil {
		s.apply(e)
	}
	return e, err
}

func (s *editableLedger) ListAll(ctx context.Context) ([]*models.LedgerEntry, error) {
	all, err := s.LedgerStore.ListAll(ctx)
	for _, e := range all {
		s.apply(e)
	}
	return all, err
}

type env struct {
	gate   *Gate
	ledger *editableLedger
	logs   *memory.SecurityLogStore
	users  *memory.UserStore
	cipher *crypto.Cipher
}

func newEnv(t *testing.T, lockdownOnTamper bool) *env {
	t.Helper()
	ctx := context.Background()

	ls := &editableLedger{LedgerStore: memory.NewLedgerStore(), edits: map[string]func(map[string]any){}}
	logs := memory.NewSecurityLogStore()
	users := memory.NewUserStore()

	l, err := ledger.New(ctx, ls)
	require.NoError(t, err)
	svc := audit.New(l, logs)

	det := intrusion.New(config.IntrusionCfg{RapidActivityThreshold: 20, Window: time.Minute}, svc)
	fw, err := firewall.New(config.FirewallCfg{
		RateLimitWindow:        time.Minute,
		RateLimitMax:           100,
		FailedAttemptThreshold: 5,
		FailedAttemptTTL:       time.Hour,
	}, svc, firewall.WithSuspicionTracker(det.Counters()))
	require.NoError(t, err)

	c, err := crypto.NewCipher("test-secret", "test-master")
	require.NoError(t, err)

	g, err := New(Deps{
		Users:            users,
		Audit:            svc,
		Firewall:         fw,
		Intrusion:        det,
		Cipher:           c,
		LockdownOnTamper: lockdownOnTamper,
	})
	require.NoError(t, err)
	return &env{gate: g, ledger: ls, logs: logs, users: users, cipher: c}
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)

	r, err := e.gate.Register(ctx, "alice", "correct horse", "10.0.0.1")
	require.NoError(t, err)
	require.True(t, r.OK)
	require.NotEmpty(t, r.TxHash)

	entry, err := e.gate.Audit().Get(ctx, r.TxHash)
	require.NoError(t, err)
	assert.Equal(t, models.TxUserRegistration, entry.TxType)
	assert.Equal(t, "alice", entry.Payload["username"])

	u, err := e.users.GetByID(ctx, r.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSecurityScore, u.SecurityScore)
	assert.Contains(t, u.PublicKey, "PUBLIC KEY")
	priv, err := e.cipher.Decrypt(u.EncryptedPrivateKey)
	require.NoError(t, err)
	assert.Contains(t, string(priv), "PRIVATE KEY")

	dup, err := e.gate.Register(ctx, "ALICE", "another password", "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, dup.OK)
	assert.Equal(t, MsgUsernameTaken, dup.Message)

	short, err := e.gate.Register(ctx, "bob", "short", "10.0.0.3")
	require.NoError(t, err)
	assert.False(t, short.OK)
	assert.Equal(t, ReasonInvalid, short.Reason)
}

func TestLogin_SuccessAndLockout(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)

	_, err := e.gate.Register(ctx, "bob", "hunter2hunter2", "10.0.0.1")
	require.NoError(t, err)

	ok, err := e.gate.Login(ctx, "bob", "hunter2hunter2", "9.9.9.9")
	require.NoError(t, err)
	assert.True(t, ok.OK)

	for i := 1; i <= 4; i++ {
		r, err := e.gate.Login(ctx, "bob", "wrong", "9.9.9.9")
		require.NoError(t, err)
		assert.False(t, r.OK)
		assert.Equal(t, MsgInvalidCredentials, r.Message)
		assert.Equal(t, ReasonInvalidCredentials, r.Reason)
	}
	r, err := e.gate.Login(ctx, "bob", "wrong", "9.9.9.9")
	require.NoError(t, err)
	assert.Equal(t, string(firewall.ReasonBlocked), r.Reason)
	assert.Equal(t, MsgInvalidCredentials, r.Message, "denials stay generic")

	r, err = e.gate.Login(ctx, "bob", "hunter2hunter2", "9.9.9.9")
	require.NoError(t, err)
	assert.False(t, r.OK)
	assert.Equal(t, MsgAccessDenied, r.Message)

	r, err = e.gate.Login(ctx, "bob", "hunter2hunter2", "9.9.9.10")
	require.NoError(t, err)
	assert.True(t, r.OK, "other addresses are unaffected")
}

func TestLogin_UnknownUserCountsAsFailure(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)

	r, err := e.gate.Login(ctx, "ghost", "whatever", "8.8.8.8")
	require.NoError(t, err)
	assert.False(t, r.OK)
	assert.Equal(t, 1, e.gate.Firewall().FailedAttempts("ghost", "8.8.8.8"))
}

func TestRequestPermission(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)

	reg, err := e.gate.Register(ctx, "carol", "long enough pw", "10.0.0.1")
	require.NoError(t, err)

	r, err := e.gate.RequestPermission(ctx, reg.UserID, "camera", "10.0.0.1", nil)
	require.NoError(t, err)
	require.True(t, r.OK)
	entry, err := e.gate.Audit().Get(ctx, r.TxHash)
	require.NoError(t, err)
	assert.Equal(t, "CAMERA", entry.Payload["permissionType"])

	r, err = e.gate.RequestPermission(ctx, reg.UserID, "GALLERY", "10.0.0.1",
		map[string]any{intrusion.MetaUnusualPattern: true})
	require.NoError(t, err)
	assert.True(t, r.OK, "a single signal only monitors")
	require.NotNil(t, r.Assessment)
	assert.Equal(t, intrusion.ActionMonitor, r.Assessment.Action)

	r, err = e.gate.RequestPermission(ctx, reg.UserID, "LOCATION", "10.0.0.1", nil)
	require.NoError(t, err)
	assert.False(t, r.OK)

	r, err = e.gate.RequestPermission(ctx, "nobody", "CAMERA", "10.0.0.1", nil)
	require.NoError(t, err)
	assert.False(t, r.OK)
	assert.Equal(t, MsgAccessDenied, r.Message)
}

func TestSendMessage_RecordsHashNotContent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)

	a, err := e.gate.Register(ctx, "dave", "long enough pw", "10.0.0.1")
	require.NoError(t, err)
	b, err := e.gate.Register(ctx, "erin", "long enough pw", "10.0.0.2")
	require.NoError(t, err)

	r, err := e.gate.SendMessage(ctx, a.UserID, b.UserID, "10.0.0.1", "see you at 5", nil)
	require.NoError(t, err)
	require.True(t, r.OK)
	assert.NotEmpty(t, r.MessageID)

	plain, err := e.cipher.Decrypt(r.Ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "see you at 5", string(plain))

	entry, err := e.gate.Audit().Get(ctx, r.TxHash)
	require.NoError(t, err)
	assert.Equal(t, crypto.HashString("see you at 5"), entry.Payload["contentHash"])
	assert.NotContains(t, entry.Payload, "content")
}

func TestIntegrityCheck_LocksDownOnTamper(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, true)

	reg, err := e.gate.Register(ctx, "frank", "long enough pw", "10.0.0.1")
	require.NoError(t, err)

	report, err := e.gate.IntegrityCheck(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.False(t, e.gate.Firewall().InLockdown())

	e.ledger.set(reg.TxHash, func(p map[string]any) { p["username"] = "mallory" })
	report, err = e.gate.IntegrityCheck(ctx)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.True(t, e.gate.Firewall().InLockdown())

	r, err := e.gate.Login(ctx, "frank", "long enough pw", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, r.OK)
	assert.Equal(t, MsgUnavailable, r.Message)

	st, err := e.gate.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, audit.StatusCompromised, st.Chain.IntegrityStatus)
	assert.True(t, st.Firewall.Lockdown)
}

func TestEndToEnd_Alice(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)

	r, err := e.gate.Register(ctx, "alice", "correct horse", "10.0.0.1")
	require.NoError(t, err)
	h1 := r.TxHash

	ok, err := e.gate.Audit().Verify(ctx, h1)
	require.NoError(t, err)
	assert.True(t, ok)

	e.ledger.set(h1, func(p map[string]any) { p["timestamp"] = "1999-12-31T23:59:59Z" })

	ok, err = e.gate.Audit().Verify(ctx, h1)
	require.NoError(t, err)
	assert.False(t, ok)

	rows, err := e.logs.ListByTxHash(ctx, h1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.RiskCritical, rows[0].RiskLevel)
	assert.Equal(t, r.UserID, rows[0].UserID)
}

// staleLookups hides every user from GetByUsername, as a concurrent registration
// that has not committed yet would.
type staleLookups struct {
	*memory.UserStore
}

func (staleLookups) GetByUsername(context.Context, string) (*models.User, error) {
	return nil, apperr.ErrNotFound
}

func TestRegister_LostRaceIsConflict(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)

	first, err := e.gate.Register(ctx, "bob", "correct horse", "10.0.0.1")
	require.NoError(t, err)
	require.True(t, first.OK)

	d := e.gate.d
	d.Users = staleLookups{e.users}
	racing, err := New(d)
	require.NoError(t, err)

	r, err := racing.Register(ctx, "bob", "battery staple", "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, r.OK)
	assert.Equal(t, ReasonConflict, r.Reason)
	assert.Equal(t, MsgUsernameTaken, r.Message)
}
