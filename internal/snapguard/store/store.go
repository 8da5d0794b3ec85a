// Package store defines the persistence contract consumed by the ledger, the audit
// service and the gate. Implementations live in store/memory and store/sqlstore.
//
// Every method takes a context so callers can bound the only suspension points of
// the core. Implementations return errors wrapping apperr.ErrNotFound for missing
// rows and apperr.ErrDependencyUnavailable for backend failures.
package store

import (
	"context"

	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
)

// LedgerStore is append-only: there is no update or delete.
type LedgerStore interface {
	// Insert must be atomic: a failed insert leaves nothing visible to GetByHash.
	Insert(ctx context.Context, e *models.LedgerEntry) (*models.LedgerEntry, error)
	GetByHash(ctx context.Context, txHash string) (*models.LedgerEntry, error)
	// ListAll returns entries in insertion (block) order.
	ListAll(ctx context.Context) ([]*models.LedgerEntry, error)
	// Last returns the highest-numbered entry, or nil when the ledger is empty.
	Last(ctx context.Context) (*models.LedgerEntry, error)
}

type SecurityLogStore interface {
	Insert(ctx context.Context, e *models.SecurityLogEntry) (*models.SecurityLogEntry, error)
	ListAll(ctx context.Context) ([]*models.SecurityLogEntry, error)
	ListByTxHash(ctx context.Context, txHash string) ([]*models.SecurityLogEntry, error)
}

type UserStore interface {
	Create(ctx context.Context, u *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Update(ctx context.Context, id string, fields models.UserUpdate) (*models.User, error)
}

// Backend bundles the three stores of one storage backend.
type Backend interface {
	Ledger() LedgerStore
	SecurityLog() SecurityLogStore
	Users() UserStore
	Close() error
}
