package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stephnangue/vortex/auth/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const testID = "4c3b1e8e-5d0f-4a44-9b0a-3b5f0b7f1a10"

var (
	issued  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expires = issued.Add(time.Hour)
	columns = []string{"id", "subject", "binding_context", "enabled", "issued_at", "expires_at"}
)

// createMockStore creates a Store backed by go-sqlmock
func createMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	store, err := New(db, "", nil)
	require.NoError(t, err)
	return store, mock
}

func TestNew_TableName(t *testing.T) {
	_, err := New(nil, "creds; DROP TABLE users", nil)
	assert.Error(t, err)

	s, err := New(nil, "", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTable, s.table)
}

func TestStore_Create(t *testing.T) {
	store, mock := createMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "vortex_credentials"`)).
		WithArgs(sqlmock.AnyArg(), "alice", "agentA", true, issued, expires).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := store.Create(context.Background(), "alice", "agentA", issued, expires)
	require.NoError(t, err)
	assert.Len(t, rec.ID, 36)
	assert.True(t, rec.Enabled)
	assert.Equal(t, expires, rec.ExpiresAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateFailure(t *testing.T) {
	store, mock := createMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "vortex_credentials"`)).
		WillReturnError(errors.New("connection refused"))

	_, err := store.Create(context.Background(), "alice", "agentA", issued, expires)
	assert.ErrorIs(t, err, token.ErrStoreUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Get(t *testing.T) {
	store, mock := createMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "vortex_credentials" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(testID, "alice", "agentA", true, issued, expires))

	rec, err := store.Get(context.Background(), testID)
	require.NoError(t, err)
	assert.Equal(t, &token.Record{
		ID:             testID,
		Subject:        "alice",
		BindingContext: "agentA",
		Enabled:        true,
		IssuedAt:       issued,
		ExpiresAt:      expires,
	}, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetNotFound(t *testing.T) {
	store, mock := createMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "vortex_credentials" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := store.Get(context.Background(), testID)
	assert.ErrorIs(t, err, token.ErrNotFound)

	// malformed ids never reach the database
	_, err = store.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, token.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetError(t *testing.T) {
	store, mock := createMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "vortex_credentials"`)).
		WillReturnError(context.DeadlineExceeded)

	_, err := store.Get(context.Background(), testID)
	assert.ErrorIs(t, err, token.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStore_Disable(t *testing.T) {
	store, mock := createMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "vortex_credentials" SET "enabled"=$1 WHERE id = $2 AND enabled = $3`)).
		WithArgs(false, testID, true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "vortex_credentials" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(testID, "alice", "agentA", false, issued, expires))

	rec, err := store.Disable(context.Background(), testID)
	require.NoError(t, err)
	assert.False(t, rec.Enabled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DisableAlreadyDisabled(t *testing.T) {
	store, mock := createMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "vortex_credentials"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "vortex_credentials"`)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(testID, "alice", "agentA", false, issued, expires))

	rec, err := store.Disable(context.Background(), testID)
	require.NoError(t, err)
	assert.False(t, rec.Enabled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DisableUnknown(t *testing.T) {
	store, mock := createMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "vortex_credentials"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "vortex_credentials"`)).
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := store.Disable(context.Background(), testID)
	assert.ErrorIs(t, err, token.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindBySubject(t *testing.T) {
	store, mock := createMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "vortex_credentials" WHERE subject = $1`)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "vortex_credentials" WHERE subject = $1 ORDER BY expires_at ASC, id ASC`)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(testID, "alice", "agentA", true, issued, expires).
			AddRow("b1c8d9a2-0000-4000-8000-000000000002", "alice", "agentB", false, issued, expires.Add(time.Minute)))

	page, err := store.FindBySubject(context.Background(), "alice", token.Pagination{Size: 2, Sort: "expires_at"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "agentB", page.Records[1].BindingContext)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindBySubjectPastEnd(t *testing.T) {
	store, mock := createMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "vortex_credentials"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	page, err := store.FindBySubject(context.Background(), "alice", token.Pagination{Page: 3, Size: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.EqualValues(t, 1, page.Total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindBySubjectInvalidSort(t *testing.T) {
	store, _ := createMockStore(t)

	_, err := store.FindBySubject(context.Background(), "alice", token.Pagination{Sort: "password; --"})
	assert.ErrorIs(t, err, token.ErrInvalidSort)
}
