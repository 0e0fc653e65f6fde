package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dbfactory/internal/dbfactory"
	"dbfactory/internal/example/quiz"
	"dbfactory/internal/platform/pg"
	"dbfactory/internal/platform/sqlite"
	"dbfactory/internal/shared"
)

// applicationName is reported to Postgres unless the DSN sets its own.
const applicationName = "dbfactory"

// Supported values of ProviderOptions.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ProviderOptions configures the store behind every factory a Provider hands out.
type ProviderOptions struct {
	// ConnectionString is a file path or shared-cache name for SQLite and a
	// DSN for Postgres. Required.
	ConnectionString string
	// Driver is sqlite (default) or postgres.
	Driver                     string
	Logger                     *slog.Logger
	EnableSensitiveDataLogging bool
	// InMemory opens an ephemeral SQLite store named by ConnectionString.
	InMemory  bool
	Isolation sql.IsolationLevel
	// WaitTimeout makes a postgres provider wait for the server before opening
	// the pool. Zero means a single attempt.
	WaitTimeout time.Duration
}

type store interface {
	dbfactory.Store
	Close() error
}

// Provider owns the store and the context registry and creates factories
// over them. It is safe to share; the factories it returns are not.
type Provider struct {
	opts     ProviderOptions
	log      *slog.Logger
	store    store
	builders *dbfactory.Builders
}

// NewProvider validates opts, opens the store and registers the quiz context.
func NewProvider(ctx context.Context, opts ProviderOptions) (*Provider, error) {
	if strings.TrimSpace(opts.ConnectionString) == "" {
		return nil, shared.Errorf(shared.KindArgument, "connection string is required")
	}
	if opts.Driver == "" {
		opts.Driver = DriverSQLite
	}
	if opts.Driver != DriverSQLite && opts.Driver != DriverPostgres {
		return nil, shared.Errorf(shared.KindArgument, "unsupported driver %q", opts.Driver)
	}
	if opts.InMemory && opts.Driver != DriverSQLite {
		return nil, shared.Errorf(shared.KindArgument, "in-memory stores are only available for sqlite")
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	builders := dbfactory.NewBuilders()
	if err := quiz.Register(builders); err != nil {
		return nil, err
	}

	s, err := openStore(ctx, opts)
	if err != nil {
		return nil, err
	}
	log.Info("store opened",
		slog.String("driver", opts.Driver),
		slog.Bool("in_memory", opts.InMemory),
		slog.String("target", target(opts)),
	)
	return &Provider{opts: opts, log: log, store: s, builders: builders}, nil
}

func openStore(ctx context.Context, opts ProviderOptions) (store, error) {
	switch {
	case opts.Driver == DriverPostgres:
		if err := pg.ValidateDSN(opts.ConnectionString); err != nil {
			return nil, err
		}
		dsn := pg.WithApplicationName(opts.ConnectionString, applicationName)
		if opts.WaitTimeout > 0 {
			if err := pg.WaitForDBSimple(ctx, dsn, opts.WaitTimeout); err != nil {
				return nil, fmt.Errorf("%w: %w", shared.ErrConnection, err)
			}
		}
		s, err := pg.NewStore(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", shared.ErrConnection, err)
		}
		return s, nil
	case opts.InMemory:
		s, err := sqlite.OpenInMemory(ctx, opts.ConnectionString)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := sqlite.Open(ctx, opts.ConnectionString)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func target(opts ProviderOptions) string {
	if opts.Driver == DriverPostgres {
		return pg.RedactDSN(opts.ConnectionString)
	}
	return opts.ConnectionString
}

func (p *Provider) factoryOptions() []dbfactory.Option {
	return []dbfactory.Option{
		dbfactory.WithLogger(p.log),
		dbfactory.WithSensitiveDataLogging(p.opts.EnableSensitiveDataLogging),
	}
}

// NewFactory returns an uninitialized factory over the provider's store.
func (p *Provider) NewFactory() (*dbfactory.Factory, error) {
	return dbfactory.New(p.store, p.builders, p.factoryOptions()...)
}

// NewCreator returns an uninitialized creator over the provider's store.
func (p *Provider) NewCreator() (*dbfactory.Creator, error) {
	return dbfactory.NewCreator(p.store, p.builders, p.factoryOptions()...)
}

// Transactional opens a factory in a transaction at the configured isolation level.
func (p *Provider) Transactional(ctx context.Context) (*dbfactory.Factory, error) {
	f, err := p.NewFactory()
	if err != nil {
		return nil, err
	}
	if err := f.OpenTransactional(ctx, p.opts.Isolation); err != nil {
		return nil, err
	}
	return f, nil
}

// ReadOnly opens a read-only factory.
func (p *Provider) ReadOnly(ctx context.Context) (*dbfactory.Factory, error) {
	f, err := p.NewFactory()
	if err != nil {
		return nil, err
	}
	if err := f.OpenReadOnly(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// Migrate applies the quiz schema.
func (p *Provider) Migrate(ctx context.Context) error {
	switch s := p.store.(type) {
	case *sqlite.Store:
		if err := sqlite.ApplyMigrations(s, quiz.Migrations, quiz.SQLiteDir); err != nil {
			return shared.Wrap(err, "apply sqlite migrations")
		}
		version, _, err := sqlite.GetMigrationVersion(s, quiz.Migrations, quiz.SQLiteDir)
		if err != nil {
			return shared.Wrap(err, "read sqlite migration version")
		}
		p.log.InfoContext(ctx, "migrations applied", slog.Uint64("version", uint64(version)))
		return nil
	case *pg.Store:
		info, err := pg.ApplyMigrations(p.opts.ConnectionString, quiz.Migrations, quiz.PostgresDir)
		if err != nil {
			return shared.Wrap(err, "apply postgres migrations")
		}
		p.log.InfoContext(ctx, "migrations applied",
			slog.Bool("applied", info.Applied),
			slog.Uint64("version", uint64(info.FinalVersion)),
		)
		return nil
	default:
		return shared.Errorf(shared.KindInvalidOperation, "no migrations for %T", p.store)
	}
}

// Check verifies that the store answers queries.
func (p *Provider) Check(ctx context.Context) (err error) {
	if s, ok := p.store.(*pg.Store); ok {
		if err := pg.HealthCheckStore(ctx, s); err != nil {
			return fmt.Errorf("%w: %w", shared.ErrConnection, err)
		}
		stats := pg.GetPoolStats(s.Pool())
		p.log.InfoContext(ctx, "pool stats",
			slog.Int("max_conns", int(stats.MaxConns)),
			slog.Int("open_conns", int(stats.OpenConns)),
			slog.Bool("healthy", pg.IsHealthy(stats)),
		)
		return nil
	}

	f, err := p.ReadOnly(ctx)
	if err != nil {
		return err
	}
	defer f.DisposeInto(&err)
	qc, err := dbfactory.ContextFor[*quiz.Context](f)
	if err != nil {
		return err
	}
	var one int
	if err := qc.Get(ctx, &one, "SELECT 1"); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrConnection, err)
	}
	return nil
}

// Ephemeral reports whether the store is in memory.
func (p *Provider) Ephemeral() bool { return p.store.Ephemeral() }

// Close closes the store. Factories must be disposed first.
func (p *Provider) Close() error {
	if p.store == nil {
		return nil
	}
	err := p.store.Close()
	p.store = nil
	return err
}
