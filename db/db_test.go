package db_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/nomad-xyz/nomad-monitor/db"
)

var errTest = errors.New("test error")

func newMockDB(t *testing.T) (*db.DB, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
	})
	return db.NewDBFromConn(conn, "sqlmock"), mock
}

func TestDB_RunInTransaction(t *testing.T) {
	t.Parallel()

	conn, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE kv_storage").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM kv_storage").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := conn.RunInTransaction(context.Background(), func(ctx context.Context) error {
		if _, err := conn.ExecContext(ctx, "UPDATE kv_storage SET value = 1"); err != nil {
			return err
		}
		return conn.RunInTransaction(ctx, func(ctx context.Context) error {
			_, err := conn.ExecContext(ctx, "DELETE FROM kv_storage")
			return err
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_RunInTransactionRollback(t *testing.T) {
	t.Parallel()

	conn, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE kv_storage").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := conn.RunInTransaction(context.Background(), func(ctx context.Context) error {
		if _, err := conn.ExecContext(ctx, "UPDATE kv_storage SET value = 1"); err != nil {
			return err
		}
		return errTest
	})
	require.ErrorIs(t, err, errTest)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_GetContextNotFound(t *testing.T) {
	t.Parallel()

	conn, mock := newMockDB(t)
	mock.ExpectQuery("SELECT value FROM kv_storage").WillReturnRows(sqlmock.NewRows([]string{"value"}))

	var value string
	err := conn.GetContext(context.Background(), &value, "SELECT value FROM kv_storage")
	require.ErrorIs(t, err, db.ErrNotFound)
	require.True(t, db.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}
