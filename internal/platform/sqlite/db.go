package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite драйвер
)

// DriverName - имя драйвера database/sql, под которым регистрируется modernc.org/sqlite.
const DriverName = "sqlite"

// TxLockMode определяет режим блокировки транзакций SQLite
type TxLockMode string

const (
	// TxLockDeferred - откладывает блокировку до первого чтения/записи (по умолчанию SQLite)
	TxLockDeferred TxLockMode = "deferred"
	// TxLockImmediate - немедленно захватывает RESERVED блокировку для избежания SQLITE_BUSY при записи
	TxLockImmediate TxLockMode = "immediate"
	// TxLockExclusive - немедленно захватывает EXCLUSIVE блокировку
	TxLockExclusive TxLockMode = "exclusive"
)

// AccessMode определяет режим доступа к SQLite базе данных
type AccessMode string

const (
	// AccessModeReadWrite - режим чтения и записи, файл должен существовать
	AccessModeReadWrite AccessMode = "rw"
	// AccessModeReadOnly - режим только для чтения
	AccessModeReadOnly AccessMode = "ro"
	// AccessModeReadWriteCreate - режим чтения/записи с созданием файла если не существует (по умолчанию)
	AccessModeReadWriteCreate AccessMode = "rwc"
)

// DBOptions содержит настройки для SQLite базы данных.
type DBOptions struct {
	// ConnMaxLifetime - максимальное время жизни соединения
	ConnMaxLifetime time.Duration
	// ConnMaxIdleTime - максимальное время простоя соединения
	ConnMaxIdleTime time.Duration
	// MaxOpenConns - максимальное количество открытых соединений.
	// Каждая открытая фабрика удерживает одно соединение.
	MaxOpenConns int
	// MaxIdleConns - максимальное количество idle соединений
	MaxIdleConns int
	// PingTimeout - таймаут для проверки соединения при создании БД
	PingTimeout time.Duration
	// WALMode - использовать ли WAL режим (игнорируется для in-memory)
	WALMode bool
	// ForeignKeys - включить ли проверку внешних ключей
	ForeignKeys bool
	// BusyTimeout - таймаут ожидания при SQLITE_BUSY
	BusyTimeout time.Duration
	// TxLockMode - режим блокировки для новых транзакций
	TxLockMode TxLockMode
	// AccessMode - режим доступа к базе данных
	AccessMode AccessMode
}

// DefaultDBOptions возвращает настройки по умолчанию, оптимизированные для embedded использования.
func DefaultDBOptions() DBOptions {
	return DBOptions{
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		MaxOpenConns:    4, // Снижено для SQLite (один писатель)
		MaxIdleConns:    1,
		PingTimeout:     5 * time.Second,
		WALMode:         true,
		ForeignKeys:     true,
		BusyTimeout:     5 * time.Second,
		TxLockMode:      TxLockDeferred,
		AccessMode:      AccessModeReadWriteCreate,
	}
}

// Store - SQLite хранилище, из которого фабрики берут соединения.
// Реализует dbfactory.Store.
type Store struct {
	db        *sqlx.DB
	dsn       string
	path      string
	ephemeral bool
	// keeper удерживает in-memory базу живой, пока открыт Store
	keeper *sql.Conn
}

// Open открывает файловую SQLite базу с настройками по умолчанию.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	return OpenWithOptions(ctx, dbPath, DefaultDBOptions())
}

// OpenReadOnly открывает существующую файловую базу только для чтения.
func OpenReadOnly(ctx context.Context, dbPath string) (*Store, error) {
	opts := DefaultDBOptions()
	opts.AccessMode = AccessModeReadOnly
	opts.WALMode = false // journal_mode нельзя менять без записи
	return OpenWithOptions(ctx, dbPath, opts)
}

// OpenWithOptions открывает файловую SQLite базу с заданными параметрами.
func OpenWithOptions(ctx context.Context, dbPath string, opts DBOptions) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("sqlite: database path must not be blank")
	}
	if dbPath == ":memory:" {
		return nil, fmt.Errorf("sqlite: use OpenInMemory for in-memory databases")
	}

	// Создаем директорию для БД если её нет
	if opts.AccessMode != AccessModeReadOnly {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	s := &Store{dsn: buildDSN(dbPath, opts, false), path: dbPath}
	if err := s.connect(ctx, opts); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenInMemory открывает эфемерную in-memory базу с общим кэшем.
// Все соединения Store видят одни и те же данные; база живёт до Close.
// Пустое name заменяется уникальным именем.
func OpenInMemory(ctx context.Context, name string) (*Store, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == ":memory:" {
		name = "mem-" + uuid.NewString()
	}

	opts := DefaultDBOptions()
	opts.WALMode = false  // WAL не поддерживается для in-memory БД
	opts.MaxOpenConns = 8 // keeper + соединения фабрик
	opts.MaxIdleConns = 2

	s := &Store{dsn: buildDSN(name, opts, true), path: name, ephemeral: true}
	if err := s.connect(ctx, opts); err != nil {
		return nil, err
	}

	keeper, err := s.db.Conn(ctx)
	if err != nil {
		_ = s.db.Close()
		return nil, fmt.Errorf("failed to pin in-memory sqlite database: %w", err)
	}
	s.keeper = keeper
	return s, nil
}

func (s *Store) connect(ctx context.Context, opts DBOptions) error {
	db, err := sqlx.Open(DriverName, s.dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Применяем настройки соединения
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)

	// Проверяем соединение с БД с настраиваемым таймаутом
	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	return nil
}

// buildDSN строит URI для modernc.org/sqlite.
// PRAGMA передаются через _pragma и применяются драйвером к каждому новому
// соединению пула, а не только к первому.
func buildDSN(name string, opts DBOptions, memory bool) string {
	params := []string{}

	if memory {
		params = append(params, "mode=memory", "cache=shared")
	} else if opts.AccessMode != "" {
		params = append(params, "mode="+string(opts.AccessMode))
	}

	if opts.BusyTimeout > 0 {
		params = append(params, fmt.Sprintf("_pragma=busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	}
	if opts.ForeignKeys {
		params = append(params, "_pragma=foreign_keys(1)")
	}
	if opts.WALMode && !memory {
		params = append(params, "_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)")
	}
	if opts.TxLockMode != "" && opts.TxLockMode != TxLockDeferred {
		params = append(params, "_txlock="+string(opts.TxLockMode))
	}

	dsn := "file:" + filepath.ToSlash(name)
	if len(params) > 0 {
		dsn += "?" + strings.Join(params, "&")
	}
	return dsn
}

// Connx резервирует одно соединение пула. Его закрывает вызывающий.
func (s *Store) Connx(ctx context.Context) (*sqlx.Conn, error) {
	return s.db.Connx(ctx)
}

// DriverName возвращает имя драйвера database/sql.
func (s *Store) DriverName() string { return DriverName }

// Ephemeral сообщает, что база in-memory и не поддерживает транзакции между контекстами.
func (s *Store) Ephemeral() bool { return s.ephemeral }

// DB возвращает пул соединений.
func (s *Store) DB() *sqlx.DB { return s.db }

// DSN возвращает URI, с которым открыт пул.
func (s *Store) DSN() string { return s.dsn }

// Path возвращает путь к файлу БД или имя in-memory базы.
func (s *Store) Path() string { return s.path }

// Close закрывает удерживающее соединение и пул. In-memory база при этом исчезает.
func (s *Store) Close() error {
	var errs []error
	if s.keeper != nil {
		if err := s.keeper.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, err)
		}
		s.keeper = nil
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
