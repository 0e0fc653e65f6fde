package dbfactory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"dbfactory/internal/dbfactory"
	"dbfactory/internal/platform/sqlite"
)

type note struct {
	ID   int64  `db:"id"`
	Body string `db:"body"`
}

type notesContext struct {
	*dbfactory.Context
	Notes *dbfactory.Set[note]
}

func newNotesContext(c *dbfactory.Context) *notesContext {
	return &notesContext{Context: c, Notes: dbfactory.NewSet[note](c, "notes")}
}

// unregistered - тип, для которого конструктор не зарегистрирован
type unregistered struct{ *dbfactory.Context }

func newBuilders(t *testing.T) *dbfactory.Builders {
	t.Helper()
	b := dbfactory.NewBuilders()
	require.NoError(t, dbfactory.Register(b, newNotesContext))
	return b
}

const notesSchema = "CREATE TABLE notes (id INTEGER PRIMARY KEY AUTOINCREMENT, body TEXT NOT NULL)"

func fileStore(t *testing.T) *sqlite.TestStore {
	t.Helper()
	ts := sqlite.NewTestStoreFile(t)
	ts.Exec(t, notesSchema)
	return ts
}

func memoryStore(t *testing.T) *sqlite.TestStore {
	t.Helper()
	ts := sqlite.NewTestStoreInMemory(t)
	ts.Exec(t, notesSchema)
	return ts
}

// brokenStore не может выдать соединение
type brokenStore struct{ err error }

func (s brokenStore) Connx(context.Context) (*sqlx.Conn, error) { return nil, s.err }
func (s brokenStore) DriverName() string                         { return sqlite.DriverName }
func (s brokenStore) Ephemeral() bool                            { return false }

var errRefused = errors.New("connection refused")

// cancelingStore отменяет контекст сразу после выдачи соединения
type cancelingStore struct {
	*sqlite.Store
	cancel context.CancelFunc
}

func (s cancelingStore) Connx(ctx context.Context) (*sqlx.Conn, error) {
	conn, err := s.Store.Connx(ctx)
	s.cancel()
	return conn, err
}

// busyStore выдаёт соединение с уже начатой транзакцией, поэтому BeginTx падает
type busyStore struct{ *sqlite.Store }

func (s busyStore) Connx(ctx context.Context) (*sqlx.Conn, error) {
	conn, err := s.Store.Connx(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, "BEGIN"); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}
