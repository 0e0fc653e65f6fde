package sqlite

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"testing"
)

// TestStore представляет тестовое SQLite хранилище с удобными хелперами.
type TestStore struct {
	*Store
}

// NewTestStoreInMemory создает эфемерное in-memory хранилище для тестов.
// Хранилище автоматически закрывается после завершения теста.
func NewTestStoreInMemory(t *testing.T) *TestStore {
	t.Helper()

	s, err := OpenInMemory(context.Background(), "")
	if err != nil {
		t.Fatalf("Failed to create in-memory test store: %v", err)
	}

	// Автоматически закрываем хранилище после теста
	t.Cleanup(func() {
		_ = s.Close()
	})

	return &TestStore{Store: s}
}

// NewTestStoreFile создает файловое хранилище во временной директории теста.
// Файл удаляется вместе с директорией после завершения теста.
func NewTestStoreFile(t *testing.T) *TestStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.sqlite")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to create file test store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return &TestStore{Store: s}
}

// ApplyTestMigrations применяет миграции к тестовому хранилищу.
func (ts *TestStore) ApplyTestMigrations(t *testing.T, fsys fs.FS, dir string) {
	t.Helper()

	if err := ApplyMigrations(ts.Store, fsys, dir); err != nil {
		t.Fatalf("Failed to apply test migrations: %v", err)
	}
}

// Exec выполняет SQL команду и проверяет отсутствие ошибок.
func (ts *TestStore) Exec(t *testing.T, query string, args ...any) sql.Result {
	t.Helper()

	result, err := ts.db.ExecContext(context.Background(), query, args...)
	if err != nil {
		t.Fatalf("Failed to execute query: %v", err)
	}
	return result
}

// MustSeedData вставляет тестовые данные и падает при ошибке.
func (ts *TestStore) MustSeedData(t *testing.T, queries ...string) {
	t.Helper()

	for _, query := range queries {
		ts.Exec(t, query)
	}
}

// TruncateTable очищает указанную таблицу.
func (ts *TestStore) TruncateTable(t *testing.T, tableName string) {
	t.Helper()
	ts.Exec(t, "DELETE FROM "+tableName)
}

// CountRows возвращает количество строк в таблице.
// Счёт идёт через отдельное соединение пула, то есть видны только
// зафиксированные данные.
func (ts *TestStore) CountRows(t *testing.T, tableName string) int {
	t.Helper()

	var count int
	if err := ts.db.GetContext(context.Background(), &count, "SELECT COUNT(*) FROM "+tableName); err != nil {
		t.Fatalf("Failed to count rows in table %s: %v", tableName, err)
	}
	return count
}

// TableExists проверяет существование таблицы.
func (ts *TestStore) TableExists(t *testing.T, tableName string) bool {
	t.Helper()

	var count int
	err := ts.db.GetContext(context.Background(), &count,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", tableName)
	if err != nil {
		t.Fatalf("Failed to check table existence: %v", err)
	}
	return count > 0
}
