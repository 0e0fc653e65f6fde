package pg

import (
	"errors"
	"fmt"
	"io/fs"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationInfo содержит информацию о результате применения миграций.
type MigrationInfo struct {
	Applied        bool // Были ли применены новые миграции
	CurrentVersion uint // Версия до применения
	FinalVersion   uint // Версия после применения
	Dirty          bool // Находится ли БД в "грязном" состоянии
}

func newMigrate(dsn string, fsys fs.FS, dirName string) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(fsys, dirName)
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		_ = sourceDriver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// ApplyMigrations применяет миграции из файловой системы (fs.FS, например embed.FS).
// Функция безопасна для повторного вызова - если миграции уже применены,
// ошибки не будет.
//
// Параметры:
//   - dsn: строка подключения к PostgreSQL
//   - fsys: файловая система с миграциями
//   - dirName: имя директории в fsys с файлами миграций
//
// migrate.ErrNoChange (нет новых миграций) не считается ошибкой.
func ApplyMigrations(dsn string, fsys fs.FS, dirName string) (MigrationInfo, error) {
	m, err := newMigrate(dsn, fsys, dirName)
	if err != nil {
		return MigrationInfo{}, err
	}
	defer func() {
		// Ошибки закрытия не влияют на результат миграции
		_, _ = m.Close()
	}()

	info := MigrationInfo{}

	// Получаем текущую версию до применения
	currentVersion, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationInfo{}, fmt.Errorf("failed to get current version: %w", err)
	}
	info.CurrentVersion = currentVersion
	info.FinalVersion = currentVersion
	info.Dirty = dirty

	if dirty {
		return info, fmt.Errorf("database is in dirty state at version %d", currentVersion)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			// Нет новых миграций - это нормально
			return info, nil
		}
		return info, fmt.Errorf("failed to apply migrations: %w", err)
	}

	info.Applied = true
	if finalVersion, _, err := m.Version(); err == nil {
		info.FinalVersion = finalVersion
	}

	return info, nil
}

// GetMigrationVersion возвращает текущую версию примененных миграций.
func GetMigrationVersion(dsn string, fsys fs.FS, dirName string) (uint, bool, error) {
	m, err := newMigrate(dsn, fsys, dirName)
	if err != nil {
		return 0, false, err
	}
	defer func() {
		_, _ = m.Close()
	}()

	version, dirty, err := m.Version()
	if err != nil {
		// Если миграции еще не применялись, это не ошибка
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}

	return version, dirty, nil
}
