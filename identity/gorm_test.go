package identity

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const rolesQuery = `SELECT .*name.* FROM vortex_user_roles AS ur JOIN vortex_roles AS r ON r.name = ur.role_name WHERE ur.username = \$1 ORDER BY r.name`

func newMockDirectory(t *testing.T) (*GormDirectory, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return NewGormDirectory(db), mock
}

func TestGormDirectory_LoadRoles(t *testing.T) {
	dir, mock := newMockDirectory(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "vortex_users" WHERE username = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"username", "password_hash", "enabled"}).AddRow("alice", "$2a$...", true))
	mock.ExpectQuery(rolesQuery).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("ADMIN").AddRow("USER"))

	id, err := dir.LoadRoles(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, &Identity{Subject: "alice", Enabled: true, Roles: []string{"ADMIN", "USER"}}, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormDirectory_LoadRolesUnknown(t *testing.T) {
	dir, mock := newMockDirectory(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "vortex_users"`)).
		WillReturnRows(sqlmock.NewRows([]string{"username", "password_hash", "enabled"}))

	_, err := dir.LoadRoles(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormDirectory_LoadRolesError(t *testing.T) {
	dir, mock := newMockDirectory(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "vortex_users"`)).
		WillReturnRows(sqlmock.NewRows([]string{"username", "password_hash", "enabled"}).AddRow("alice", "x", true))
	mock.ExpectQuery(rolesQuery).WillReturnError(errors.New("relation does not exist"))

	_, err := dir.LoadRoles(context.Background(), "alice")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestGormDirectory_VerifyPassword(t *testing.T) {
	dir, mock := newMockDirectory(t)
	hash := mustHash(t, "s3cret")

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "vortex_users" WHERE username = $1`)).
			WillReturnRows(sqlmock.NewRows([]string{"username", "password_hash", "enabled"}).AddRow("alice", hash, true))
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "vortex_users"`)).
		WillReturnRows(sqlmock.NewRows([]string{"username", "password_hash", "enabled"}))

	ctx := context.Background()
	assert.NoError(t, dir.VerifyPassword(ctx, "alice", "s3cret"))
	assert.ErrorIs(t, dir.VerifyPassword(ctx, "alice", "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, dir.VerifyPassword(ctx, "ghost", "s3cret"), ErrInvalidCredentials)
	require.NoError(t, mock.ExpectationsWereMet())
}
