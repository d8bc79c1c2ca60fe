package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-auth/backend/internal/user/domain"
)

var userCols = []string{"id", "name", "email", "password_hash", "blocked", "deleted", "created_at", "updated_at"}

func newMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewPostgresRepository(sqlDB), mock
}

func TestGetByEmail_Found(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(getUserByEmailQuery)).
		WithArgs("Ann@Example.com").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("u1", "Ann", "ann@example.com", "hash", false, false, now, now))

	u, err := repo.GetByEmail(context.Background(), "Ann@Example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "hash", u.PasswordHash)
	assert.False(t, u.Blocked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_NotFoundIsNil(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(getUserByIDQuery)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(userCols))

	u, err := repo.GetByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestGetByID_DatabaseError(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(getUserByIDQuery)).
		WithArgs("u1").
		WillReturnError(errors.New("connection lost"))

	_, err := repo.GetByID(context.Background(), "u1")
	require.Error(t, err)
}

func TestLockByEmail_UsesForUpdate(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("ann@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("u1", "Ann", "ann@example.com", "hash", true, false, now, now))

	u, err := repo.LockByEmail(context.Background(), "ann@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.True(t, u.Blocked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePasswordHash(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(updatePasswordHashQuery)).
		WithArgs("u1", "newhash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdatePasswordHash(context.Background(), "u1", "newhash"))

	mock.ExpectExec(regexp.QuoteMeta(updatePasswordHashQuery)).
		WithArgs("gone", "newhash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.UpdatePasswordHash(context.Background(), "gone", "newhash"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListGrantCodes(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(listGrantCodesQuery)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("users.read").AddRow("users.write"))

	codes, err := repo.ListGrantCodes(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"users.read", "users.write"}, codes)

	mock.ExpectQuery(regexp.QuoteMeta(listGrantCodesQuery)).
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"code"}))
	codes, err = repo.ListGrantCodes(context.Background(), "u2")
	require.NoError(t, err)
	assert.NotNil(t, codes)
	assert.Empty(t, codes)
}

func TestCreateAndAssignGrants(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()
	u := &domain.User{ID: "u1", Name: "Ann", Email: "ann@example.com", PasswordHash: "hash", CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(regexp.QuoteMeta(createUserQuery)).
		WithArgs("u1", "Ann", "ann@example.com", "hash", false, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	created, err := repo.Create(context.Background(), u)
	require.NoError(t, err)
	assert.True(t, created)

	mock.ExpectExec(regexp.QuoteMeta(upsertGrantQuery)).WithArgs("users.read").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(assignGrantQuery)).WithArgs("u1", "users.read").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.AssignGrants(context.Background(), "u1", "users.read"))

	_, err = repo.Create(context.Background(), &domain.User{ID: "u2"})
	require.Error(t, err, "invalid user must not reach the database")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUnitOfWork_CommitAndRollback(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	uow := NewPostgresUnitOfWork(sqlDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(updatePasswordHashQuery)).
		WithArgs("u1", "h1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	err = uow.Do(context.Background(), func(ctx context.Context, users Repository) error {
		return users.UpdatePasswordHash(ctx, "u1", "h1")
	})
	require.NoError(t, err)

	mailErr := errors.New("mail down")
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(updatePasswordHashQuery)).
		WithArgs("u1", "h2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()
	err = uow.Do(context.Background(), func(ctx context.Context, users Repository) error {
		if err := users.UpdatePasswordHash(ctx, "u1", "h2"); err != nil {
			return err
		}
		return mailErr
	})
	require.ErrorIs(t, err, mailErr)
	require.NoError(t, mock.ExpectationsWereMet())
}
