package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"session-auth/backend/internal/db"
	"session-auth/backend/internal/user/domain"
)

// ErrNotFound is returned by mutations that match no live user.
var ErrNotFound = errors.New("user not found")

const userColumns = `id, name, email, password_hash, blocked, deleted, created_at, updated_at`

const (
	getUserByIDQuery = `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND NOT deleted`

	getUserByEmailQuery = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) AND NOT deleted`

	lockUserByEmailQuery = getUserByEmailQuery + ` FOR UPDATE`

	updatePasswordHashQuery = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1 AND NOT deleted`

	listGrantCodesQuery = `SELECT g.code FROM grants g
JOIN user_grants ug ON ug.grant_id = g.id
WHERE ug.user_id = $1
ORDER BY g.code`

	createUserQuery = `INSERT INTO users (id, name, email, password_hash, blocked, deleted, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)
ON CONFLICT ((lower(email))) DO NOTHING`

	upsertGrantQuery = `INSERT INTO grants (code) VALUES ($1) ON CONFLICT (code) DO NOTHING`

	assignGrantQuery = `INSERT INTO user_grants (user_id, grant_id)
SELECT $1, id FROM grants WHERE code = $2
ON CONFLICT DO NOTHING`
)

// PostgresRepository implements Repository over database/sql. It is bound to
// either the pool or a single transaction.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a user repository that uses the given handle for persistence.
func NewPostgresRepository(handle db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: handle}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, getUserByIDQuery, id)
}

// GetByEmail returns the user with the given email (case-insensitive), or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, getUserByEmailQuery, email)
}

// LockByEmail returns the user with the given email and holds a row lock until
// the enclosing transaction ends. Outside a transaction the lock is released immediately.
func (r *PostgresRepository) LockByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, lockUserByEmailQuery, email)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Blocked, &u.Deleted, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// UpdatePasswordHash replaces the stored hash. Returns ErrNotFound when no live user matches.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	res, err := r.db.ExecContext(ctx, updatePasswordHashQuery, userID, hash, time.Now().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGrantCodes returns the grant codes assigned to userID, sorted. Empty when none.
func (r *PostgresRepository) ListGrantCodes(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, listGrantCodesQuery, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := make([]string, 0)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// Create inserts u unless a user with the same email exists. Reports whether a row was inserted.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) (bool, error) {
	if err := u.Validate(); err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, createUserQuery, u.ID, u.Name, u.Email, u.PasswordHash, u.Blocked, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AssignGrants creates any missing grant codes and links them to userID. Idempotent.
func (r *PostgresRepository) AssignGrants(ctx context.Context, userID string, codes ...string) error {
	for _, code := range codes {
		if _, err := r.db.ExecContext(ctx, upsertGrantQuery, code); err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, assignGrantQuery, userID, code); err != nil {
			return err
		}
	}
	return nil
}

// PostgresUnitOfWork implements UnitOfWork with one database transaction per Do.
type PostgresUnitOfWork struct {
	db db.TxBeginner
}

// NewPostgresUnitOfWork returns a unit of work over the given pool.
func NewPostgresUnitOfWork(pool db.TxBeginner) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{db: pool}
}

// Do runs fn with a repository bound to a new transaction; see db.WithTx.
func (u *PostgresUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, users Repository) error) error {
	return db.WithTx(ctx, u.db, nil, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, NewPostgresRepository(tx))
	})
}
