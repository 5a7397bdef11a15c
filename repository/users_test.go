package repository

import (
	"context"
	"database/sql"
	"testing"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteCreateUsers = `CREATE TABLE users (
    id TEXT NOT NULL PRIMARY KEY,
    user_role TEXT NOT NULL,
    first_name TEXT,
    last_name TEXT,
    username TEXT NOT NULL UNIQUE,
    profile_picture TEXT,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT,
    is_email_verified BOOLEAN DEFAULT FALSE,
    timezone TEXT,
    metadata TEXT,
    loggedin_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    deleted_at TIMESTAMP NULL
);`

func setupUsersRepo(t *testing.T) (*UsersRepository, func()) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec(sqliteCreateUsers)
	require.NoError(t, err)

	cleanup := func() {
		_ = bunDB.Close()
		_ = db.Close()
	}

	return NewUsersRepository(bunDB), cleanup
}

func TestUsersRepositoryCreateAndGetByID(t *testing.T) {
	repo, cleanup := setupUsersRepo(t)
	defer cleanup()

	ctx := context.Background()

	created, err := repo.Create(ctx, &social.User{
		Email:    "person@example.com",
		Username: "person",
		Role:     social.RoleMember,
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	require.NotEmpty(t, created.ID)

	found, err := repo.GetByID(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "person@example.com", found.Email)
	assert.Equal(t, social.RoleMember, found.Role)
}

func TestUsersRepositoryCreateDefaultsRole(t *testing.T) {
	repo, cleanup := setupUsersRepo(t)
	defer cleanup()

	created, err := repo.Create(context.Background(), &social.User{
		Email:    "norole@example.com",
		Username: "norole",
	})
	require.NoError(t, err)
	assert.Equal(t, social.RoleGuest, created.Role)
}

func TestUsersRepositoryGetByEmailCaseInsensitive(t *testing.T) {
	repo, cleanup := setupUsersRepo(t)
	defer cleanup()

	ctx := context.Background()

	_, err := repo.Create(ctx, &social.User{
		Email:    "Person@Example.com",
		Username: "person",
		Role:     social.RoleMember,
	})
	require.NoError(t, err)

	found, err := repo.GetByEmail(ctx, "  person@example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "Person@Example.com", found.Email)
}

func TestUsersRepositoryGetByEmailMissing(t *testing.T) {
	repo, cleanup := setupUsersRepo(t)
	defer cleanup()

	_, err := repo.GetByEmail(context.Background(), "ghost@example.com")
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))
}
