package dbfactory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// State is the lifecycle state of a Factory or Creator.
type State int

const (
	StateUninitialized State = iota
	StateTransactional
	StateReadOnly
	StateDisposed
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateTransactional:
		return "transactional"
	case StateReadOnly:
		return "read-only"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Option configures a Factory or Creator.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	sensitive bool
}

// WithLogger sets the logger for session events and executed statements.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSensitiveDataLogging logs statement parameters along with the SQL text.
func WithSensitiveDataLogging(enabled bool) Option {
	return func(o *options) { o.sensitive = enabled }
}

// Attachment describes a connection, and optionally a transaction, owned by
// the caller. A session built from it never closes the connection and never
// rolls back the transaction.
type Attachment struct {
	Conn       *sqlx.Conn
	Tx         *sqlx.Tx
	DriverName string
	Ephemeral  bool
	// ReadOnly opens the session read-only. It cannot be combined with Tx.
	ReadOnly bool
}

// session is the lifecycle shared by Factory and Creator: one connection,
// at most one transaction, one mode.
type session struct {
	store     Store
	id        string
	log       *slog.Logger
	sensitive bool

	state     State
	conn      *Conn
	tx        *sqlx.Tx
	ephemeral bool
	txDone    bool
	// txBorrowed is set for attached transactions.
	txBorrowed bool
}

func newSession(store Store, opts []Option) session {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	id := uuid.NewString()
	return session{
		store:     store,
		id:        id,
		log:       log.With("session", id),
		sensitive: o.sensitive,
	}
}

func (s *session) mode() Mode {
	if s.state == StateReadOnly {
		return ReadOnly
	}
	return ReadWrite
}

// open acquires a connection and, for ReadWrite on a durable store, begins a
// transaction. On any failure the session stays uninitialized and nothing is
// left open.
func (s *session) open(ctx context.Context, mode Mode, iso sql.IsolationLevel) error {
	if s.state != StateUninitialized {
		return errorf(ErrInvalidOperation, "session is already %s", s.state)
	}
	if s.store == nil {
		return errorf(ErrArgument, "store must not be nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := s.store.Connx(ctx)
	if err != nil {
		return fmt.Errorf("dbfactory: %w: %w", ErrConnection, err)
	}
	conn, err := NewConn(raw, s.store.DriverName(), true)
	if err != nil {
		return err
	}
	ephemeral := s.store.Ephemeral()

	var tx *sqlx.Tx
	if mode == ReadWrite && !ephemeral {
		if err := ctx.Err(); err != nil {
			return errors.Join(err, conn.Close())
		}
		// database/sql rolls a transaction back when its begin context is
		// canceled; the transaction lives until Commit or Dispose instead.
		tx, err = conn.BeginTx(context.WithoutCancel(ctx), &sql.TxOptions{Isolation: iso})
		if err != nil {
			return errors.Join(fmt.Errorf("dbfactory: begin transaction: %w", err), conn.Close())
		}
	}

	s.conn, s.tx, s.ephemeral = conn, tx, ephemeral
	if mode == ReadOnly {
		s.state = StateReadOnly
	} else {
		s.state = StateTransactional
	}
	s.log.DebugContext(ctx, "session opened",
		"state", s.state.String(),
		"isolation", iso.String(),
		"ephemeral", ephemeral,
		"transaction", tx != nil,
	)
	return nil
}

func (s *session) attach(a Attachment) error {
	if a.ReadOnly && a.Tx != nil {
		return errorf(ErrArgument, "a read-only session cannot carry a transaction")
	}
	conn, err := NewConn(a.Conn, a.DriverName, false)
	if err != nil {
		return err
	}
	s.conn = conn
	s.tx = a.Tx
	s.txBorrowed = a.Tx != nil
	s.ephemeral = a.Ephemeral
	if a.ReadOnly {
		s.state = StateReadOnly
	} else {
		s.state = StateTransactional
	}
	s.log.Debug("session attached", "state", s.state.String(), "transaction", a.Tx != nil)
	return nil
}

func (s *session) buildOptions() (BuildOptions, error) {
	switch s.state {
	case StateUninitialized:
		return BuildOptions{}, errorf(ErrNotInitialized, "open the session before requesting a context")
	case StateDisposed:
		return BuildOptions{}, errorf(ErrInvalidOperation, "session is disposed")
	}
	return BuildOptions{
		Conn:                 s.conn,
		Tx:                   s.tx,
		Mode:                 s.mode(),
		Logger:               s.log,
		SensitiveDataLogging: s.sensitive,
		Ephemeral:            s.ephemeral,
	}, nil
}

func (s *session) commit() error {
	switch s.state {
	case StateUninitialized:
		return errorf(ErrNotInitialized, "cannot commit before the session is opened")
	case StateDisposed:
		return errorf(ErrInvalidOperation, "cannot commit a disposed session")
	}
	if s.tx == nil {
		return errorf(ErrInvalidOperation, "cannot commit without a transaction")
	}
	if s.txDone {
		return errorf(ErrInvalidOperation, "transaction already completed")
	}
	s.txDone = true
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("dbfactory: commit: %w", err)
	}
	s.log.Debug("transaction committed")
	return nil
}

// dispose rolls back an uncommitted transaction and then closes the
// connection. Both steps are always attempted and their errors joined.
func (s *session) dispose() error {
	if s.state == StateDisposed {
		return nil
	}
	prev := s.state
	s.state = StateDisposed
	if prev == StateUninitialized {
		return nil
	}

	var errs []error
	if s.tx != nil && !s.txDone && !s.txBorrowed {
		s.txDone = true
		if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, fmt.Errorf("dbfactory: rollback: %w", err))
		} else {
			s.log.Debug("transaction rolled back")
		}
	}
	if err := s.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("dbfactory: close connection: %w", err))
	}
	s.log.Debug("session disposed", "previous", prev.String())
	return errors.Join(errs...)
}
