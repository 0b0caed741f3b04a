package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/pkg/platform/sentinel"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestStore_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("returns stored value", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(`SELECT value FROM "kv_blobs" WHERE key = \$1`).
			WithArgs("settings").
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{}`)))

		got, err := New(db).Get(ctx, "settings")
		require.NoError(t, err)
		assert.Equal(t, `{}`, string(got))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps no rows to ErrNotFound", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(`SELECT value FROM "kv_blobs"`).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := New(db).Get(ctx, "missing")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("quotes custom table names", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(`SELECT value FROM "crm blobs"`).
			WithArgs("k").
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`1`)))

		_, err := New(db, WithTable("crm blobs")).Get(ctx, "k")
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_Set(t *testing.T) {
	ctx := context.Background()
	db, mock := setupMockDB(t)
	mock.ExpectExec(`INSERT INTO "kv_blobs"`).
		WithArgs("people", []byte(`["a"]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, New(db).Set(ctx, "people", []byte(`["a"]`)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SetBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("commits all keys in order", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "kv_blobs"`).WithArgs("attendance:p1", []byte(`[]`)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO "kv_blobs"`).WithArgs("tallies:p1", []byte(`[1]`)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := New(db).SetBatch(ctx, map[string][]byte{
			"tallies:p1":    []byte(`[1]`),
			"attendance:p1": []byte(`[]`),
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "kv_blobs"`).WithArgs("a", []byte(`1`)).WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := New(db).SetBatch(ctx, map[string][]byte{"a": []byte(`1`)})
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_EnsureSchema(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "kv_blobs"`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, New(db).EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
