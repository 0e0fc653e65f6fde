package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

// WaitStrategy определяет стратегию ожидания между попытками подключения.
type WaitStrategy int

const (
	// ConstantWait - постоянная задержка между попытками
	ConstantWait WaitStrategy = iota
	// ExponentialWait - экспоненциальная задержка между попытками
	ExponentialWait
)

// HealthCheckOptions содержит опции для проверки здоровья БД.
type HealthCheckOptions struct {
	// MaxRetries - максимальное количество повторов после первой попытки
	// (0 = бесконечно до таймаута контекста)
	MaxRetries uint64
	// InitialInterval - начальная задержка между попытками
	InitialInterval time.Duration
	// MaxInterval - максимальная задержка между попытками (для экспоненциальной стратегии)
	MaxInterval time.Duration
	// Strategy - стратегия ожидания между попытками
	Strategy WaitStrategy
	// PingTimeout - таймаут для каждой попытки ping
	PingTimeout time.Duration
}

// DefaultHealthCheckOptions возвращает опции по умолчанию для проверки здоровья БД.
func DefaultHealthCheckOptions() HealthCheckOptions {
	return HealthCheckOptions{
		MaxRetries:      10,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Strategy:        ExponentialWait,
		PingTimeout:     5 * time.Second,
	}
}

// backoff строит стратегию go-retry из опций.
func backoff(opts HealthCheckOptions) retry.Backoff {
	interval := opts.InitialInterval
	if interval <= 0 {
		interval = time.Second
	}

	var b retry.Backoff
	switch opts.Strategy {
	case ExponentialWait:
		b = retry.NewExponential(interval)
		if opts.MaxInterval > 0 {
			b = retry.WithCappedDuration(opts.MaxInterval, b)
		}
	default:
		b = retry.NewConstant(interval)
	}

	if opts.MaxRetries > 0 {
		b = retry.WithMaxRetries(opts.MaxRetries, b)
	}
	return b
}

// WaitForDB ожидает доступности базы данных перед открытием хранилища.
// Это единственное место с повторами: сами фабрики ошибки подключения не повторяют.
//
// Параметры:
//   - ctx: контекст с общим таймаутом ожидания
//   - dsn: строка подключения к БД
//   - opts: опции проверки здоровья
func WaitForDB(ctx context.Context, dsn string, opts HealthCheckOptions) error {
	attempt := 0
	err := retry.Do(ctx, backoff(opts), func(ctx context.Context) error {
		attempt++
		if err := pingDatabase(ctx, dsn, opts.PingTimeout); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("database not available after %d attempts: %w", attempt, err)
	}
	return nil
}

// WaitForDBSimple - упрощенная версия WaitForDB с параметрами по умолчанию.
// Ожидает доступности БД с экспоненциальной задержкой до общего таймаута.
func WaitForDBSimple(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := DefaultHealthCheckOptions()
	opts.MaxRetries = 0 // Бесконечно до таймаута контекста

	return WaitForDB(ctx, dsn, opts)
}

// HealthCheck выполняет разовую проверку доступности БД.
func HealthCheck(ctx context.Context, dsn string) error {
	return pingDatabase(ctx, dsn, 5*time.Second)
}

// HealthCheckStore проверяет хранилище через соединение database/sql,
// то есть тем же путём, которым его используют фабрики.
func HealthCheckStore(ctx context.Context, s *Store) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	if err := HealthCheckPool(ctx, s.Pool()); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := s.Connx(ctx)
	if err != nil {
		return fmt.Errorf("failed to reserve connection: %w", err)
	}
	defer conn.Close()

	var result int
	if err := conn.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("simple query failed: %w", err)
	}
	return nil
}

// HealthCheckPool выполняет проверку здоровья существующего пула подключений.
func HealthCheckPool(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pool ping failed: %w", err)
	}

	// Дополнительная проверка: выполняем простой запрос
	var result int
	err := pool.QueryRow(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("simple query failed: %w", err)
	}

	if result != 1 {
		return fmt.Errorf("unexpected query result: got %d, want 1", result)
	}

	return nil
}

// pingDatabase выполняет пинг БД с созданием временного подключения.
func pingDatabase(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	return nil
}

// DBStats содержит статистику подключений к БД.
type DBStats struct {
	MaxConns     int32         // Максимальное количество подключений
	OpenConns    int32         // Текущее количество открытых подключений
	InUse        int32         // Количество подключений в использовании
	Idle         int32         // Количество простаивающих подключений
	WaitCount    int64         // Количество ожиданий подключения
	WaitDuration time.Duration // Общее время ожидания
}

// GetPoolStats возвращает статистику пула подключений.
func GetPoolStats(pool *pgxpool.Pool) DBStats {
	if pool == nil {
		return DBStats{}
	}

	stats := pool.Stat()

	return DBStats{
		MaxConns:     stats.MaxConns(),
		OpenConns:    stats.TotalConns(),
		InUse:        stats.AcquiredConns(),
		Idle:         stats.IdleConns(),
		WaitCount:    stats.EmptyAcquireCount(),
		WaitDuration: stats.AcquireDuration(),
	}
}

// IsHealthy проверяет, здоров ли пул на основе его статистики.
func IsHealthy(stats DBStats) bool {
	if stats.MaxConns == 0 {
		return false // Пул не настроен
	}

	if stats.OpenConns == 0 {
		return false // Нет открытых подключений
	}

	// Каждая фабрика держит соединение до Dispose, поэтому оставляем запас
	utilizationPercent := float64(stats.InUse) / float64(stats.MaxConns) * 100
	return utilizationPercent <= 90
}
