package dbfactory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// Context is the mode-enforcing persistence context. Typed contexts embed it
// and expose their entity sets; every save entry point goes through the mode
// check here.
//
// A Context borrows the connection and transaction of the factory that built
// it and must not be used after that factory is disposed.
type Context struct {
	conn      *Conn
	tx        *sqlx.Tx
	mode      Mode
	tracker   *Tracker
	dialect   Dialect
	ephemeral bool
	log       *slog.Logger
	sensitive bool
}

// SaveResult is delivered by SaveChangesAsync.
type SaveResult struct {
	Affected int64
	Err      error
}

func newContext(opts BuildOptions, mode Mode, tracker *Tracker, tx *sqlx.Tx) *Context {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Context{
		conn:      opts.Conn,
		tx:        tx,
		mode:      mode,
		tracker:   tracker,
		dialect:   opts.Conn.Dialect(),
		ephemeral: opts.Ephemeral,
		log:       log,
		sensitive: opts.SensitiveDataLogging,
	}
}

// Mode returns the current mode.
func (c *Context) Mode() Mode { return c.mode }

// SetMode moves the context to m. Demotion to ReadOnly always succeeds;
// promotion of a read-only context fails with ErrInvalidOperation.
func (c *Context) SetMode(m Mode) error {
	next, err := c.mode.Transition(m)
	if err != nil {
		return err
	}
	c.mode = next
	return nil
}

// Tracker returns the change tracker of the context.
func (c *Context) Tracker() *Tracker { return c.tracker }

// Conn returns the borrowed connection.
func (c *Context) Conn() *Conn { return c.conn }

// Tx returns the enlisted transaction, or nil.
func (c *Context) Tx() *sqlx.Tx { return c.tx }

// Enlisted reports whether statements run inside the factory transaction.
func (c *Context) Enlisted() bool { return c.tx != nil }

// Ephemeral reports whether the context was built against an ephemeral store.
func (c *Context) Ephemeral() bool { return c.ephemeral }

// HasChanges reports whether SaveChanges would write anything.
func (c *Context) HasChanges() bool { return c.tracker.HasChanges() }

func (c *Context) usable() error {
	if c.conn.Closed() {
		return errorf(ErrInvalidOperation, "context used after its factory was disposed")
	}
	return nil
}

func (c *Context) querier() Querier {
	if c.tx != nil {
		return c.tx
	}
	return c.conn.Raw()
}

// Querier returns the statement surface of the context: the enlisted
// transaction, or the connection when not enlisted.
func (c *Context) Querier() (Querier, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	return c.querier(), nil
}

// Select runs a query and scans all rows into dest.
func (c *Context) Select(ctx context.Context, dest any, query string, args ...any) error {
	if err := c.usable(); err != nil {
		return err
	}
	c.logStatement(ctx, query, args)
	return sqlx.SelectContext(ctx, c.querier(), dest, query, args...)
}

// Get runs a query and scans a single row into dest.
func (c *Context) Get(ctx context.Context, dest any, query string, args ...any) error {
	if err := c.usable(); err != nil {
		return err
	}
	c.logStatement(ctx, query, args)
	return sqlx.GetContext(ctx, c.querier(), dest, query, args...)
}

// Exec runs a raw statement. It is a mutation entry point and is rejected by
// read-only contexts.
func (c *Context) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if c.mode == ReadOnly {
		return nil, ErrReadOnly
	}
	if err := c.usable(); err != nil {
		return nil, err
	}
	c.logStatement(ctx, query, args)
	return c.querier().ExecContext(ctx, query, args...)
}

// SaveChanges writes every pending change and returns the number of affected
// rows. A read-only context fails with ErrReadOnly without touching the store.
// When the context is not enlisted the changes are written in a local
// transaction on the connection.
func (c *Context) SaveChanges(ctx context.Context) (int64, error) {
	if c.mode == ReadOnly {
		return 0, ErrReadOnly
	}
	if err := c.usable(); err != nil {
		return 0, err
	}
	return c.save(ctx)
}

// SaveChangesAsync is SaveChanges run on its own goroutine. The mode check is
// synchronous: a read-only context returns ErrReadOnly and no channel. The
// channel receives exactly one result and is then closed.
func (c *Context) SaveChangesAsync(ctx context.Context) (<-chan SaveResult, error) {
	if c.mode == ReadOnly {
		return nil, ErrReadOnly
	}
	if err := c.usable(); err != nil {
		return nil, err
	}
	ch := make(chan SaveResult, 1)
	go func() {
		defer close(ch)
		n, err := c.save(ctx)
		ch <- SaveResult{Affected: n, Err: err}
	}()
	return ch, nil
}

func (c *Context) save(ctx context.Context) (affected int64, err error) {
	if c.tracker.AutoDetectChanges {
		c.tracker.DetectChanges()
	}
	pending := c.tracker.pending()
	if len(pending) == 0 {
		return 0, nil
	}

	keys := unsetKeys(pending)

	if c.tx != nil {
		affected, err = c.flushEnlisted(ctx, pending)
		if err != nil {
			keys.reset()
			return 0, err
		}
		c.tracker.acceptChanges(pending)
		return affected, nil
	}

	local, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("dbfactory: begin local transaction: %w", err)
	}
	affected, err = c.flush(ctx, local, pending)
	if err != nil {
		keys.reset()
		if rbErr := local.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, rbErr)
		}
		return 0, err
	}
	if err := local.Commit(); err != nil {
		return 0, fmt.Errorf("dbfactory: commit local transaction: %w", err)
	}
	c.tracker.acceptChanges(pending)
	return affected, nil
}

// saveSavepoint scopes one save inside the factory transaction.
const saveSavepoint = "dbfactory_save"

// flushEnlisted writes pending changes inside a savepoint of the enlisted
// transaction. A failed save is undone to the savepoint so the transaction
// holds none of its statements.
func (c *Context) flushEnlisted(ctx context.Context, pending []*entry) (int64, error) {
	if err := c.savepoint(ctx, "SAVEPOINT "+saveSavepoint); err != nil {
		return 0, fmt.Errorf("dbfactory: create savepoint: %w", err)
	}
	affected, err := c.flush(ctx, c.tx, pending)
	if err != nil {
		// The rollback runs even when ctx is canceled.
		if rbErr := c.savepoint(context.WithoutCancel(ctx), "ROLLBACK TO SAVEPOINT "+saveSavepoint); rbErr != nil {
			return 0, errors.Join(err, fmt.Errorf("dbfactory: rollback to savepoint: %w", rbErr))
		}
		if relErr := c.savepoint(context.WithoutCancel(ctx), "RELEASE SAVEPOINT "+saveSavepoint); relErr != nil {
			return 0, errors.Join(err, relErr)
		}
		return 0, err
	}
	if err := c.savepoint(ctx, "RELEASE SAVEPOINT "+saveSavepoint); err != nil {
		return 0, fmt.Errorf("dbfactory: release savepoint: %w", err)
	}
	return affected, nil
}

func (c *Context) savepoint(ctx context.Context, stmt string) error {
	c.logStatement(ctx, stmt, nil)
	_, err := c.tx.ExecContext(ctx, stmt)
	return err
}

func (c *Context) flush(ctx context.Context, q Querier, pending []*entry) (int64, error) {
	var total int64
	for _, e := range pending {
		var (
			n   int64
			err error
		)
		switch e.state {
		case Added:
			n, err = e.meta.insert(ctx, c, q, e.entity)
		case Modified:
			n, err = e.meta.update(ctx, c, q, e.entity)
		case Deleted:
			n, err = e.meta.delete(ctx, c, q, e.entity)
		}
		if err != nil {
			return 0, fmt.Errorf("dbfactory: save %s (%s): %w", e.meta.table, e.state, err)
		}
		total += n
	}
	return total, nil
}

func (c *Context) execAffected(ctx context.Context, q Querier, query string, args []any) (int64, error) {
	c.logStatement(ctx, query, args)
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrConcurrency
	}
	return n, nil
}

func (c *Context) logStatement(ctx context.Context, query string, args []any) {
	if !c.log.Enabled(ctx, slog.LevelDebug) {
		return
	}
	if c.sensitive {
		c.log.DebugContext(ctx, "executing statement", "sql", query, "params", args, "mode", c.mode.String())
		return
	}
	c.log.DebugContext(ctx, "executing statement", "sql", query, "arg_count", len(args), "mode", c.mode.String())
}
