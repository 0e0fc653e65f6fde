package dbfactory

import (
	"log/slog"
	"reflect"

	"github.com/jmoiron/sqlx"
)

// Builders maps typed context types to their constructors.
type Builders struct {
	fns map[reflect.Type]any
}

// NewBuilders returns an empty registry.
func NewBuilders() *Builders {
	return &Builders{fns: make(map[reflect.Type]any)}
}

// Register installs fn as the constructor of T, replacing any earlier one.
// fn receives a Context that is already mode-stamped and carries its logger.
func Register[T any](b *Builders, fn func(*Context) T) error {
	if b == nil || fn == nil {
		return errorf(ErrArgument, "builders and constructor must not be nil")
	}
	b.fns[reflect.TypeFor[T]()] = fn
	return nil
}

// Registered reports whether T has a constructor in b.
func Registered[T any](b *Builders) bool {
	_, ok := lookup[T](b)
	return ok
}

func lookup[T any](b *Builders) (func(*Context) T, bool) {
	if b == nil {
		return nil, false
	}
	fn, ok := b.fns[reflect.TypeFor[T]()]
	if !ok {
		return nil, false
	}
	return fn.(func(*Context) T), true
}

// BuildOptions is what a ContextBuilder binds new contexts to.
type BuildOptions struct {
	// Conn is required.
	Conn *Conn
	// Tx is enlisted by read-write contexts unless the store is ephemeral.
	Tx *sqlx.Tx
	// Mode caps the contexts that can be built. ReadOnly forbids
	// ReadWriteWithTx.
	Mode                 Mode
	Logger               *slog.Logger
	SensitiveDataLogging bool
	Ephemeral            bool
}

// ContextBuilder builds contexts of type T bound to one connection and
// optional transaction.
type ContextBuilder[T any] struct {
	opts  BuildOptions
	build func(*Context) T
}

// NewContextBuilder resolves the constructor registered for T.
func NewContextBuilder[T any](b *Builders, opts BuildOptions) (*ContextBuilder[T], error) {
	if opts.Conn == nil {
		return nil, errorf(ErrArgument, "connection must not be nil")
	}
	fn, ok := lookup[T](b)
	if !ok {
		return nil, errorf(ErrArgument, "no context builder registered for %s", reflect.TypeFor[T]())
	}
	return &ContextBuilder[T]{opts: opts, build: fn}, nil
}

// ReadOnlyNoTracking builds a read-only context without change detection,
// lazy loading or query tracking. It never enlists in a transaction.
func (cb *ContextBuilder[T]) ReadOnlyNoTracking() (T, error) {
	return cb.Build(ReadOnly)
}

// ReadWriteWithTx builds a read-write context with change detection, enlisted
// in the transaction when one was supplied and the store is not ephemeral.
func (cb *ContextBuilder[T]) ReadWriteWithTx() (T, error) {
	return cb.Build(ReadWrite)
}

// Build builds a context in mode m.
func (cb *ContextBuilder[T]) Build(m Mode) (T, error) {
	var zero T
	mode, err := cb.opts.Mode.Transition(m)
	if err != nil {
		return zero, err
	}
	if cb.opts.Conn.Closed() {
		return zero, errorf(ErrInvalidOperation, "connection is closed")
	}

	var c *Context
	if mode == ReadOnly {
		c = newContext(cb.opts, ReadOnly, newTracker(false, false, NoTracking), nil)
	} else {
		var tx *sqlx.Tx
		if cb.opts.Tx != nil && !cb.opts.Ephemeral {
			tx = cb.opts.Tx
		}
		c = newContext(cb.opts, ReadWrite, newTracker(true, false, TrackAll), tx)
	}
	return cb.build(c), nil
}
