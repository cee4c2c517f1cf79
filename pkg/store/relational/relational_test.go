package relational

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func TestReceive_Upserts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO records").
		WithArgs("users://alice/profile", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	res := s.Receive(context.Background(), node.ReceiveInput{URI: "users://alice/profile", Data: map[string]interface{}{"name": "Alice"}})
	require.True(t, res.Accepted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRead_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT data, ts FROM records").
		WithArgs("users://alice/profile").
		WillReturnRows(sqlmock.NewRows([]string{"data", "ts"}))

	res := s.Read(context.Background(), "users://alice/profile")
	require.False(t, res.OK)
	require.Equal(t, node.KindNotFound, res.Error.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRead_Found(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"data", "ts"}).AddRow(`{"name":"Alice"}`, 1000)
	mock.ExpectQuery("SELECT data, ts FROM records").
		WithArgs("users://alice/profile").
		WillReturnRows(rows)

	res := s.Read(context.Background(), "users://alice/profile")
	require.True(t, res.OK)
	require.Equal(t, int64(1000), res.Record.TS)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM records").
		WithArgs("users://alice/profile").
		WillReturnResult(sqlmock.NewResult(0, 0))

	res := s.Delete(context.Background(), "users://alice/profile")
	require.False(t, res.OK)
	require.Equal(t, node.KindNotFound, res.Error.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHealth_PingFails(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := NewPostgres(db)

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)

	res := s.Health(context.Background())
	require.Equal(t, node.HealthUnhealthy, res.Status)
}

func TestList_CollapsesDirectories(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"uri", "ts"}).
		AddRow("users://alice/profile", 100).
		AddRow("users://alice/settings/theme", 200)
	mock.ExpectQuery("SELECT uri, ts FROM records WHERE uri LIKE").
		WithArgs("users://alice/%").
		WillReturnRows(rows)

	res := s.List(context.Background(), "users://alice", node.DefaultListOptions())
	require.Len(t, res.Items, 2)
}
