package dbfactory

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"dbfactory/internal/shared"
)

// Creator shares one connection and transaction across several context types.
// Each FactoryFor call returns a builder bound to the shared pair, so
// contexts of different types commit or roll back together.
type Creator struct {
	session
	builders *Builders
}

// NewCreator returns an uninitialized creator over store.
func NewCreator(store Store, builders *Builders, opts ...Option) (*Creator, error) {
	if store == nil {
		return nil, errorf(ErrArgument, "store must not be nil")
	}
	if builders == nil {
		return nil, errorf(ErrArgument, "builders must not be nil")
	}
	return &Creator{session: newSession(store, opts), builders: builders}, nil
}

// AttachCreator returns a creator bound to a caller-owned connection, with the
// same ownership rules as Attach.
func AttachCreator(builders *Builders, a Attachment, opts ...Option) (*Creator, error) {
	if builders == nil {
		return nil, errorf(ErrArgument, "builders must not be nil")
	}
	c := &Creator{session: newSession(nil, opts), builders: builders}
	if err := c.attach(a); err != nil {
		return nil, err
	}
	return c, nil
}

// Create opens the shared connection and begins a transaction at iso.
func (c *Creator) Create(ctx context.Context, iso sql.IsolationLevel) error {
	return c.open(ctx, ReadWrite, iso)
}

// CreateReadOnly opens the shared connection without a transaction.
func (c *Creator) CreateReadOnly(ctx context.Context) error {
	return c.open(ctx, ReadOnly, sql.LevelDefault)
}

// FactoryFor returns a builder of T contexts bound to the shared connection
// and transaction. On a read-only creator only ReadOnlyNoTracking succeeds.
func FactoryFor[T any](c *Creator) (*ContextBuilder[T], error) {
	opts, err := c.buildOptions()
	if err != nil {
		return nil, err
	}
	return NewContextBuilder[T](c.builders, opts)
}

// Connection returns the shared connection, nil before Create.
func (c *Creator) Connection() *Conn { return c.conn }

// Transaction returns the shared transaction, nil when there is none.
func (c *Creator) Transaction() *sqlx.Tx { return c.tx }

// CommitTransaction commits the shared transaction.
func (c *Creator) CommitTransaction() error { return c.commit() }

// Dispose rolls back an uncommitted transaction, then closes the shared
// connection. Calling it again is a no-op.
func (c *Creator) Dispose() error { return c.dispose() }

// Close is Dispose, for io.Closer.
func (c *Creator) Close() error { return c.dispose() }

// DisposeInto disposes the creator and joins any error after *errp.
func (c *Creator) DisposeInto(errp *error) { shared.CloseInto(errp, c.dispose) }

// State returns the lifecycle state.
func (c *Creator) State() State { return c.state }
