package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDBOptions(t *testing.T) {
	opts := DefaultDBOptions()

	assert.Equal(t, time.Hour, opts.ConnMaxLifetime)
	assert.Equal(t, 10*time.Minute, opts.ConnMaxIdleTime)
	assert.Equal(t, 4, opts.MaxOpenConns)
	assert.Equal(t, 1, opts.MaxIdleConns)
	assert.Equal(t, 5*time.Second, opts.PingTimeout)
	assert.True(t, opts.WALMode)
	assert.True(t, opts.ForeignKeys)
	assert.Equal(t, 5*time.Second, opts.BusyTimeout)
	assert.Equal(t, TxLockDeferred, opts.TxLockMode)
	assert.Equal(t, AccessModeReadWriteCreate, opts.AccessMode)
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name     string
		dbPath   string
		opts     DBOptions
		memory   bool
		expected string
	}{
		{
			name:   "default options",
			dbPath: "/tmp/test.db",
			opts:   DefaultDBOptions(),
			expected: "file:/tmp/test.db?mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)" +
				"&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		},
		{
			name:     "without parameters",
			dbPath:   "test.db",
			opts:     DBOptions{},
			expected: "file:test.db",
		},
		{
			name:     "custom busy timeout",
			dbPath:   "test.db",
			opts:     DBOptions{BusyTimeout: 10 * time.Second},
			expected: "file:test.db?_pragma=busy_timeout(10000)",
		},
		{
			name:     "read only mode",
			dbPath:   "test.db",
			opts:     DBOptions{AccessMode: AccessModeReadOnly},
			expected: "file:test.db?mode=ro",
		},
		{
			name:     "immediate lock mode",
			dbPath:   "test.db",
			opts:     DBOptions{TxLockMode: TxLockImmediate},
			expected: "file:test.db?_txlock=immediate",
		},
		{
			name:     "in-memory ignores access mode and WAL",
			dbPath:   "shared",
			opts:     DefaultDBOptions(),
			memory:   true,
			expected: "file:shared?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := buildDSN(tt.dbPath, tt.opts, tt.memory)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestOpen_CreateDirectory(t *testing.T) {
	ctx := context.Background()

	// Путь к БД в поддиректории, которой еще нет
	dbPath := filepath.Join(t.TempDir(), "subdir", "test.db")

	s, err := Open(ctx, dbPath)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.False(t, s.Ephemeral())
	assert.Equal(t, DriverName, s.DriverName())
	assert.Equal(t, dbPath, s.Path())

	// Проверяем что файл БД создан
	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestOpen_InvalidPath(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, "")
	assert.Error(t, err)

	_, err = Open(ctx, ":memory:")
	assert.Error(t, err)

	// На Unix-системах нельзя создать директории внутри /dev/null
	if !strings.Contains(os.Getenv("OS"), "Windows") {
		_, err = Open(ctx, "/dev/null/nonexistent/test.db")
		assert.Error(t, err)
	}
}

func TestOpen_PragmasOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	s := NewTestStoreFile(t)

	// Берём два соединения одновременно, чтобы второе было новым
	c1, err := s.Connx(ctx)
	require.NoError(t, err)
	defer c1.Close()
	c2, err := s.Connx(ctx)
	require.NoError(t, err)
	defer c2.Close()

	for i, c := range []interface {
		GetContext(ctx context.Context, dest any, query string, args ...any) error
	}{c1, c2} {
		var foreignKeys int
		require.NoError(t, c.GetContext(ctx, &foreignKeys, "PRAGMA foreign_keys"))
		assert.Equal(t, 1, foreignKeys, "connection %d", i)

		var busyTimeout int
		require.NoError(t, c.GetContext(ctx, &busyTimeout, "PRAGMA busy_timeout"))
		assert.Equal(t, 5000, busyTimeout, "connection %d", i)

		var journalMode string
		require.NoError(t, c.GetContext(ctx, &journalMode, "PRAGMA journal_mode"))
		assert.Equal(t, "wal", strings.ToLower(journalMode), "connection %d", i)

		// SQLite возвращает числовое значение: NORMAL соответствует 1
		var synchronous int
		require.NoError(t, c.GetContext(ctx, &synchronous, "PRAGMA synchronous"))
		assert.Equal(t, 1, synchronous, "connection %d", i)
	}
}

func TestOpenInMemory_SharedAcrossConnections(t *testing.T) {
	ctx := context.Background()

	s, err := OpenInMemory(ctx, "")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.True(t, s.Ephemeral())
	assert.True(t, strings.HasPrefix(s.Path(), "mem-"))

	c1, err := s.Connx(ctx)
	require.NoError(t, err)
	_, err = c1.ExecContext(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY, value TEXT)")
	require.NoError(t, err)
	_, err = c1.ExecContext(ctx, "INSERT INTO test (value) VALUES ('shared')")
	require.NoError(t, err)
	require.NoError(t, c1.Close())

	// Другое соединение видит те же данные
	c2, err := s.Connx(ctx)
	require.NoError(t, err)
	defer c2.Close()

	var value string
	require.NoError(t, c2.GetContext(ctx, &value, "SELECT value FROM test WHERE id = 1"))
	assert.Equal(t, "shared", value)
}

func TestOpenInMemory_DistinctNames(t *testing.T) {
	ctx := context.Background()

	a, err := OpenInMemory(ctx, "")
	require.NoError(t, err)
	defer func() { _ = a.Close() }()
	b, err := OpenInMemory(ctx, "")
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	assert.NotEqual(t, a.Path(), b.Path())

	_, err = a.DB().ExecContext(ctx, "CREATE TABLE only_in_a (id INTEGER)")
	require.NoError(t, err)

	var count int
	require.NoError(t, b.DB().GetContext(ctx, &count,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='only_in_a'"))
	assert.Equal(t, 0, count)
}

func TestOpenInMemory_GoneAfterClose(t *testing.T) {
	ctx := context.Background()
	name := "gone-after-close"

	s, err := OpenInMemory(ctx, name)
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, "CREATE TABLE test (id INTEGER)")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := OpenInMemory(ctx, name)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	var count int
	require.NoError(t, s2.DB().GetContext(ctx, &count,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='test'"))
	assert.Equal(t, 0, count)
}

func TestOpenReadOnly(t *testing.T) {
	ctx := context.Background()

	// Создаем БД с данными в обычном режиме
	// WAL отключён: read-only открытие WAL базы требует -shm файла
	dbPath := filepath.Join(t.TempDir(), "readonly.db")
	opts := DefaultDBOptions()
	opts.WALMode = false
	s, err := OpenWithOptions(ctx, dbPath, opts)
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY, value TEXT)")
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, "INSERT INTO test (value) VALUES ('test_data')")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	ro, err := OpenReadOnly(ctx, dbPath)
	require.NoError(t, err)
	defer func() { _ = ro.Close() }()

	// Проверяем что можем читать данные
	var value string
	require.NoError(t, ro.DB().GetContext(ctx, &value, "SELECT value FROM test WHERE id = 1"))
	assert.Equal(t, "test_data", value)

	// Запись в режиме mode=ro запрещена
	_, err = ro.DB().ExecContext(ctx, "INSERT INTO test (value) VALUES ('should_fail')")
	require.Error(t, err)
	errMsg := strings.ToLower(err.Error())
	assert.True(t,
		strings.Contains(errMsg, "readonly") || strings.Contains(errMsg, "read-only") ||
			strings.Contains(errMsg, "attempt to write"),
		"Expected read-only error, got: %s", err.Error())
}

func TestStore_ImmediateLockMode(t *testing.T) {
	ctx := context.Background()

	opts := DefaultDBOptions()
	opts.TxLockMode = TxLockImmediate
	s, err := OpenWithOptions(ctx, filepath.Join(t.TempDir(), "immediate.db"), opts)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.Contains(t, s.DSN(), "_txlock=immediate")

	tx, err := s.DB().BeginTxx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, "CREATE TABLE test (id INTEGER)")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
}
