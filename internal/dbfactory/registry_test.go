package dbfactory_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbfactory/internal/dbfactory"
	"dbfactory/internal/platform/sqlite"
)

type auditEntry struct {
	ID      int64  `db:"id"`
	Message string `db:"message"`
}

type auditContext struct {
	*dbfactory.Context
	Entries *dbfactory.Set[auditEntry]
}

func creatorBuilders(t *testing.T) *dbfactory.Builders {
	t.Helper()
	b := newBuilders(t)
	require.NoError(t, dbfactory.Register(b, func(c *dbfactory.Context) *auditContext {
		return &auditContext{Context: c, Entries: dbfactory.NewSet[auditEntry](c, "audit")}
	}))
	return b
}

func TestCreator_UseBeforeCreate(t *testing.T) {
	ts := fileStore(t)
	c, err := dbfactory.NewCreator(ts.Store, creatorBuilders(t))
	require.NoError(t, err)

	assert.Nil(t, c.Connection())
	assert.Nil(t, c.Transaction())
	assert.Equal(t, dbfactory.StateUninitialized, c.State())

	_, err = dbfactory.FactoryFor[*notesContext](c)
	assert.True(t, errors.Is(err, dbfactory.ErrNotInitialized))
	assert.True(t, errors.Is(c.CommitTransaction(), dbfactory.ErrNotInitialized))
	assert.NoError(t, c.Dispose())
}

func TestCreator_SeveralTypesOneTransaction(t *testing.T) {
	ctx := context.Background()
	ts := fileStore(t)
	ts.Exec(t, "CREATE TABLE audit (id INTEGER PRIMARY KEY AUTOINCREMENT, message TEXT NOT NULL)")

	c, err := dbfactory.NewCreator(ts.Store, creatorBuilders(t))
	require.NoError(t, err)
	defer c.Dispose()
	require.NoError(t, c.Create(ctx, sql.LevelDefault))
	assert.Equal(t, dbfactory.StateTransactional, c.State())
	require.NotNil(t, c.Connection())
	require.NotNil(t, c.Transaction())

	notes, err := dbfactory.FactoryFor[*notesContext](c)
	require.NoError(t, err)
	audit, err := dbfactory.FactoryFor[*auditContext](c)
	require.NoError(t, err)

	nc, err := notes.ReadWriteWithTx()
	require.NoError(t, err)
	ac, err := audit.ReadWriteWithTx()
	require.NoError(t, err)
	assert.Same(t, nc.Tx(), ac.Tx())

	require.NoError(t, nc.Notes.Add(&note{Body: "n"}))
	require.NoError(t, ac.Entries.Add(&auditEntry{Message: "note added"}))
	_, err = nc.SaveChanges(ctx)
	require.NoError(t, err)
	_, err = ac.SaveChanges(ctx)
	require.NoError(t, err)

	require.NoError(t, c.CommitTransaction())
	assert.Equal(t, 1, ts.CountRows(t, "notes"))
	assert.Equal(t, 1, ts.CountRows(t, "audit"))
}

func TestCreator_RollbackOnDispose(t *testing.T) {
	ctx := context.Background()
	ts := fileStore(t)

	c, err := dbfactory.NewCreator(ts.Store, creatorBuilders(t))
	require.NoError(t, err)
	require.NoError(t, c.Create(ctx, sql.LevelDefault))

	cb, err := dbfactory.FactoryFor[*notesContext](c)
	require.NoError(t, err)
	nc, err := cb.ReadWriteWithTx()
	require.NoError(t, err)
	require.NoError(t, nc.Notes.Add(&note{Body: "gone"}))
	_, err = nc.SaveChanges(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Dispose())
	require.NoError(t, c.Close())
	assert.Equal(t, 0, ts.CountRows(t, "notes"))
}

func TestCreator_ReadOnly(t *testing.T) {
	ctx := context.Background()
	ts := fileStore(t)

	c, err := dbfactory.NewCreator(ts.Store, creatorBuilders(t))
	require.NoError(t, err)
	defer c.Dispose()
	require.NoError(t, c.CreateReadOnly(ctx))
	assert.Equal(t, dbfactory.StateReadOnly, c.State())
	assert.Nil(t, c.Transaction())

	cb, err := dbfactory.FactoryFor[*notesContext](c)
	require.NoError(t, err)

	_, err = cb.ReadWriteWithTx()
	assert.True(t, errors.Is(err, dbfactory.ErrInvalidOperation))

	ro, err := cb.ReadOnlyNoTracking()
	require.NoError(t, err)
	assert.Equal(t, dbfactory.ReadOnly, ro.Mode())
	assert.True(t, errors.Is(c.CommitTransaction(), dbfactory.ErrInvalidOperation))
}

func TestAttachCreator(t *testing.T) {
	ctx := context.Background()
	ts := fileStore(t)

	raw, err := ts.DB().Connx(ctx)
	require.NoError(t, err)
	defer raw.Close()
	tx, err := raw.BeginTxx(ctx, nil)
	require.NoError(t, err)

	c, err := dbfactory.AttachCreator(creatorBuilders(t), dbfactory.Attachment{Conn: raw, Tx: tx, DriverName: sqlite.DriverName})
	require.NoError(t, err)
	assert.Same(t, tx, c.Transaction())

	cb, err := dbfactory.FactoryFor[*notesContext](c)
	require.NoError(t, err)
	nc, err := cb.ReadWriteWithTx()
	require.NoError(t, err)
	require.NoError(t, nc.Notes.Add(&note{Body: "x"}))
	_, err = nc.SaveChanges(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Dispose())
	// Владелец решает судьбу транзакции
	require.NoError(t, tx.Rollback())
	assert.Equal(t, 0, ts.CountRows(t, "notes"))
}
