package dbfactory

import (
	"context"
	"database/sql"

	"dbfactory/internal/shared"
)

// Factory owns one connection and at most one transaction and hands out
// typed contexts bound to them. One Factory is one unit of work: open it once,
// take contexts, commit if transactional, and always dispose.
//
// A Factory is not safe for concurrent use.
type Factory struct {
	session
	builders *Builders
}

// New returns an uninitialized factory over store.
func New(store Store, builders *Builders, opts ...Option) (*Factory, error) {
	if store == nil {
		return nil, errorf(ErrArgument, "store must not be nil")
	}
	if builders == nil {
		return nil, errorf(ErrArgument, "builders must not be nil")
	}
	return &Factory{session: newSession(store, opts), builders: builders}, nil
}

// Attach returns a factory bound to a caller-owned connection and optional
// transaction. Commit commits the attached transaction; Dispose leaves both
// the transaction and the connection to their owner.
func Attach(builders *Builders, a Attachment, opts ...Option) (*Factory, error) {
	if builders == nil {
		return nil, errorf(ErrArgument, "builders must not be nil")
	}
	f := &Factory{session: newSession(nil, opts), builders: builders}
	if err := f.attach(a); err != nil {
		return nil, err
	}
	return f, nil
}

// OpenTransactional acquires a connection and begins a transaction at iso.
// Against an ephemeral store no transaction is begun.
func (f *Factory) OpenTransactional(ctx context.Context, iso sql.IsolationLevel) error {
	return f.open(ctx, ReadWrite, iso)
}

// OpenReadOnly acquires a connection without a transaction.
func (f *Factory) OpenReadOnly(ctx context.Context) error {
	return f.open(ctx, ReadOnly, sql.LevelDefault)
}

// ContextFor builds a context of type T from the constructor registered in
// the factory's builders. The context is read-only for a read-only factory and
// read-write, enlisted in the transaction, otherwise.
func ContextFor[T any](f *Factory) (T, error) {
	var zero T
	opts, err := f.buildOptions()
	if err != nil {
		return zero, err
	}
	cb, err := NewContextBuilder[T](f.builders, opts)
	if err != nil {
		return zero, err
	}
	return cb.Build(opts.Mode)
}

// Commit commits the transaction. It fails with ErrInvalidOperation when the
// factory has no transaction or it was already committed.
func (f *Factory) Commit() error { return f.commit() }

// Dispose rolls back an uncommitted transaction, then closes the connection.
// Calling it again is a no-op.
func (f *Factory) Dispose() error { return f.dispose() }

// Close is Dispose, for io.Closer.
func (f *Factory) Close() error { return f.dispose() }

// DisposeInto disposes the factory and joins any error after *errp.
//
//	defer f.DisposeInto(&err)
func (f *Factory) DisposeInto(errp *error) { shared.CloseInto(errp, f.dispose) }

// State returns the lifecycle state.
func (f *Factory) State() State { return f.state }

// Mode returns the mode contexts are built in.
func (f *Factory) Mode() Mode { return f.mode() }

// ID returns the session id used in log records.
func (f *Factory) ID() string { return f.id }

// Ephemeral reports whether the factory runs against an ephemeral store.
func (f *Factory) Ephemeral() bool { return f.ephemeral }
