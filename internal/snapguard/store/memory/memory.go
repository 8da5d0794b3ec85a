// Package memory is an in-process store.Backend used by tests and by the CLI when
// no database is configured. All records are deep-copied on the way in and out.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vaibhaw-/snapguard/internal/snapguard/apperr"
	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
	"github.com/vaibhaw-/snapguard/internal/snapguard/store"
)

type Backend struct {
	ledger *LedgerStore
	logs   *SecurityLogStore
	users  *UserStore
}

func New() *Backend {
	return &Backend{
		ledger: NewLedgerStore(),
		logs:   NewSecurityLogStore(),
		users:  NewUserStore(),
	}
}

func (b *Backend) Ledger() store.LedgerStore           { return b.ledger }
func (b *Backend) SecurityLog() store.SecurityLogStore { return b.logs }
func (b *Backend) Users() store.UserStore              { return b.users }
func (b *Backend) Close() error                        { return nil }

// LedgerStore keeps entries in insertion order with a hash index.
type LedgerStore struct {
	mu      sync.RWMutex
	entries []*models.LedgerEntry
	byHash  map[string]int
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{byHash: make(map[string]int)}
}

func (s *LedgerStore) Insert(ctx context.Context, e *models.LedgerEntry) (*models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byHash[e.TxHash]; dup {
		return nil, fmt.Errorf("ledger entry %s already exists", e.TxHash)
	}
	c := e.Clone()
	s.byHash[c.TxHash] = len(s.entries)
	s.entries = append(s.entries, c)
	return c.Clone(), nil
}

func (s *LedgerStore) GetByHash(ctx context.Context, txHash string) (*models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byHash[txHash]
	if !ok {
		return nil, fmt.Errorf("ledger entry %s: %w", txHash, apperr.ErrNotFound)
	}
	return s.entries[i].Clone(), nil
}

func (s *LedgerStore) ListAll(ctx context.Context) ([]*models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.LedgerEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out, nil
}

func (s *LedgerStore) Last(ctx context.Context) (*models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, nil
	}
	return s.entries[len(s.entries)-1].Clone(), nil
}

type SecurityLogStore struct {
	mu      sync.RWMutex
	entries []models.SecurityLogEntry
}

func NewSecurityLogStore() *SecurityLogStore {
	return &SecurityLogStore{}
}

func (s *SecurityLogStore) Insert(ctx context.Context, e *models.SecurityLogEntry) (*models.SecurityLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, copyLog(e))
	out := copyLog(e)
	return &out, nil
}

func (s *SecurityLogStore) ListAll(ctx context.Context) ([]*models.SecurityLogEntry, error) {
	return s.list(ctx, func(*models.SecurityLogEntry) bool { return true })
}

func (s *SecurityLogStore) ListByTxHash(ctx context.Context, txHash string) ([]*models.SecurityLogEntry, error) {
	return s.list(ctx, func(e *models.SecurityLogEntry) bool {
		return e.TxHash != nil && *e.TxHash == txHash
	})
}

func (s *SecurityLogStore) list(ctx context.Context, keep func(*models.SecurityLogEntry) bool) ([]*models.SecurityLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.SecurityLogEntry
	for i := range s.entries {
		if keep(&s.entries[i]) {
			c := copyLog(&s.entries[i])
			out = append(out, &c)
		}
	}
	return out, nil
}

func copyLog(e *models.SecurityLogEntry) models.SecurityLogEntry {
	c := *e
	if e.TxHash != nil {
		h := *e.TxHash
		c.TxHash = &h
	}
	return c
}

type UserStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]models.User)}
}

func (s *UserStore) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.users[u.ID]; dup {
		return nil, fmt.Errorf("%w: user %s already exists", apperr.ErrConflict, u.ID)
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return nil, fmt.Errorf("%w: username %s already taken", apperr.ErrConflict, u.Username)
		}
	}
	s.users[u.ID] = *u
	out := *u
	return &out, nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	return &u, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if strings.EqualFold(s.users[id].Username, username) {
			u := s.users[id]
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", username, apperr.ErrNotFound)
}

func (s *UserStore) Update(ctx context.Context, id string, fields models.UserUpdate) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	if fields.PublicKey != nil {
		u.PublicKey = *fields.PublicKey
	}
	if fields.EncryptedPrivateKey != nil {
		u.EncryptedPrivateKey = *fields.EncryptedPrivateKey
	}
	if fields.SecurityScore != nil {
		u.SecurityScore = *fields.SecurityScore
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return &u, nil
}
