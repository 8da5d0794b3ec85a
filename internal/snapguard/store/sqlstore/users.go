package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vaibhaw-/snapguard/internal/snapguard/apperr"
	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
)

type userStore struct{ s *DB }

const userColumns = `id, username, password_hash, public_key, encrypted_private_key, security_score, created_at, updated_at`

func (u userStore) Create(ctx context.Context, user *models.User) (*models.User, error) {
	err := u.s.exec(ctx, "users.create",
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.PasswordHash, user.PublicKey, user.EncryptedPrivateKey,
		user.SecurityScore, user.CreatedAt, user.UpdatedAt,
	)
	if uniqueViolation(err) {
		return nil, fmt.Errorf("%w: username %s already taken", apperr.ErrConflict, user.Username)
	}
	if err != nil {
		return nil, err
	}
	out := *user
	return &out, nil
}

func (u userStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	return u.getOne(ctx, u.s.db, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (u userStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return u.getOne(ctx, u.s.db, `SELECT `+userColumns+` FROM users WHERE LOWER(username) = LOWER(?)`, username)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (u userStore) getOne(ctx context.Context, q queryRower, query, key string) (*models.User, error) {
	var user models.User
	err := q.QueryRowContext(ctx, u.s.d.rebind(query), key).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.PublicKey, &user.EncryptedPrivateKey,
		&user.SecurityScore, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, notFoundOr("user", key, err)
	}
	return &user, nil
}

// Update applies the non-nil fields inside one transaction.
func (u userStore) Update(ctx context.Context, id string, fields models.UserUpdate) (*models.User, error) {
	tx, err := u.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Unavailable("users.update", err)
	}
	defer tx.Rollback()

	user, err := u.getOne(ctx, tx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if fields.PublicKey != nil {
		user.PublicKey = *fields.PublicKey
	}
	if fields.EncryptedPrivateKey != nil {
		user.EncryptedPrivateKey = *fields.EncryptedPrivateKey
	}
	if fields.SecurityScore != nil {
		user.SecurityScore = *fields.SecurityScore
	}
	user.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, u.s.d.rebind(
		`UPDATE users SET public_key = ?, encrypted_private_key = ?, security_score = ?, updated_at = ? WHERE id = ?`),
		user.PublicKey, user.EncryptedPrivateKey, user.SecurityScore, user.UpdatedAt, id,
	)
	if err != nil {
		return nil, apperr.Unavailable("users.update", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Unavailable("users.update", err)
	}
	return user, nil
}
