package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// DriverName - имя драйвера database/sql, под которым pgx регистрирует stdlib.
const DriverName = "pgx"

// PoolOptions содержит настройки для пула подключений PostgreSQL.
// Нулевое значение поля означает значение по умолчанию.
type PoolOptions struct {
	// MaxConns - максимальное количество соединений в пуле.
	// Каждая открытая фабрика удерживает одно соединение.
	MaxConns int32
	// MinConns - минимальное количество соединений в пуле
	MinConns int32
	// HealthCheckPeriod - интервал проверки здоровья соединений
	HealthCheckPeriod time.Duration
	// MaxConnLifetime - максимальное время жизни соединения
	MaxConnLifetime time.Duration
	// MaxConnIdleTime - максимальное время простоя соединения
	MaxConnIdleTime time.Duration
	// PingTimeout - таймаут для проверки соединения при создании пула
	PingTimeout time.Duration
}

// DefaultPoolOptions возвращает настройки пула по умолчанию.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:          20,
		MinConns:          2,
		HealthCheckPeriod: 30 * time.Second,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   10 * time.Minute,
		PingTimeout:       5 * time.Second,
	}
}

// NewPool создает новый пул подключений к PostgreSQL с настройками по умолчанию.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return NewPoolWithOptions(ctx, dsn, DefaultPoolOptions())
}

// NewPoolWithOptions создает новый пул подключений к PostgreSQL с заданными параметрами.
func NewPoolWithOptions(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	// Нулевые поля оставляют значения pgxpool по умолчанию
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = opts.HealthCheckPeriod
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = DefaultPoolOptions().PingTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Проверяем соединение с БД с настраиваемым таймаутом
	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// Store - PostgreSQL хранилище для фабрик dbfactory.
// Соединения берутся из pgxpool через database/sql обёртку pgx/v5/stdlib,
// поэтому фабрика работает с ними так же, как с SQLite.
type Store struct {
	pool *pgxpool.Pool
	db   *sqlx.DB
}

// NewStore открывает хранилище с настройками пула по умолчанию.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	return NewStoreWithOptions(ctx, dsn, DefaultPoolOptions())
}

// NewStoreWithOptions открывает хранилище с заданными настройками пула.
func NewStoreWithOptions(ctx context.Context, dsn string, opts PoolOptions) (*Store, error) {
	pool, err := NewPoolWithOptions(ctx, dsn, opts)
	if err != nil {
		return nil, err
	}
	return NewStoreFromPool(pool), nil
}

// NewStoreFromPool оборачивает уже открытый пул. Close закроет и пул.
func NewStoreFromPool(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		db:   sqlx.NewDb(stdlib.OpenDBFromPool(pool), DriverName),
	}
}

// Connx резервирует одно соединение. Его закрывает вызывающий.
func (s *Store) Connx(ctx context.Context) (*sqlx.Conn, error) {
	return s.db.Connx(ctx)
}

// DriverName возвращает имя драйвера database/sql.
func (s *Store) DriverName() string { return DriverName }

// Ephemeral всегда false: PostgreSQL поддерживает транзакции между контекстами.
func (s *Store) Ephemeral() bool { return false }

// Pool возвращает пул pgx.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// DB возвращает database/sql обёртку над пулом.
func (s *Store) DB() *sqlx.DB { return s.db }

// Close закрывает обёртку database/sql и пул.
// Закрытие *sql.DB не закрывает пул, поэтому пул закрывается отдельно.
func (s *Store) Close() error {
	err := s.db.Close()
	s.pool.Close()
	return err
}
