package dbfactory

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// Store is the relational engine a factory draws its connection from.
// *sqlite.Store and *pg.Store implement it.
type Store interface {
	// Connx reserves one physical connection. The caller owns it.
	Connx(ctx context.Context) (*sqlx.Conn, error)
	// DriverName is the database/sql driver name, used to pick the SQL dialect.
	DriverName() string
	// Ephemeral reports a transient store without cross-context transactions.
	Ephemeral() bool
}

// Querier is the statement surface shared by a connection and a transaction.
type Querier interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

var (
	_ Querier = (*sqlx.Conn)(nil)
	_ Querier = (*sqlx.Tx)(nil)
)

// Dialect holds the driver-specific bits of statement generation.
type Dialect struct {
	Name        string
	Placeholder squirrel.PlaceholderFormat
	// Returning is true when inserts report generated keys via RETURNING
	// instead of LastInsertId.
	Returning bool
}

// DialectFor resolves the dialect of a database/sql driver name.
func DialectFor(driverName string) Dialect {
	switch sqlx.BindType(driverName) {
	case sqlx.DOLLAR:
		return Dialect{Name: driverName, Placeholder: squirrel.Dollar, Returning: true}
	case sqlx.AT:
		return Dialect{Name: driverName, Placeholder: squirrel.AtP}
	case sqlx.NAMED:
		return Dialect{Name: driverName, Placeholder: squirrel.Colon}
	default:
		return Dialect{Name: driverName, Placeholder: squirrel.Question}
	}
}

// Conn is the physical connection owned by a factory. Contexts only borrow it.
type Conn struct {
	raw     *sqlx.Conn
	dialect Dialect
	owned   bool
	closed  bool
}

// NewConn wraps an already opened connection. When owned is false Close leaves
// the underlying connection open for its external owner.
func NewConn(raw *sqlx.Conn, driverName string, owned bool) (*Conn, error) {
	if raw == nil {
		return nil, errorf(ErrArgument, "connection must not be nil")
	}
	return &Conn{raw: raw, dialect: DialectFor(driverName), owned: owned}, nil
}

// Raw returns the underlying sqlx connection.
func (c *Conn) Raw() *sqlx.Conn { return c.raw }

// Dialect returns the SQL dialect of the connection.
func (c *Conn) Dialect() Dialect { return c.dialect }

// Owned reports whether Close releases the underlying connection.
func (c *Conn) Owned() bool { return c.owned }

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool { return c.closed }

// BeginTx starts a transaction on the connection.
func (c *Conn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	if c.closed {
		return nil, errorf(ErrInvalidOperation, "connection is closed")
	}
	return c.raw.BeginTxx(ctx, opts)
}

// Close releases the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if !c.owned {
		return nil
	}
	if err := c.raw.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
