package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	migrate "github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// newMigrate создаёт экземпляр migrate для Store и набора миграций из fsys/dir.
// golang-migrate закрывает свой *sql.DB, поэтому ему выдаётся отдельный пул
// на тот же DSN. Для in-memory базы это та же база благодаря общему кэшу.
func newMigrate(s *Store, fsys fs.FS, dir string) (*migrate.Migrate, error) {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations source: %w", err)
	}

	db, err := sql.Open(DriverName, s.dsn)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("failed to open sqlite database for migrations: %w", err)
	}
	db.SetMaxOpenConns(1)

	drv, err := msqlite.WithInstance(db, &msqlite.Config{})
	if err != nil {
		_ = db.Close()
		_ = src.Close()
		return nil, fmt.Errorf("failed to create migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		_ = drv.Close()
		_ = src.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// ApplyMigrations применяет все доступные миграции из fsys/dir.
// Функция безопасна для повторного вызова - если миграции уже применены,
// ошибки не будет. migrate.ErrNoChange не считается ошибкой.
func ApplyMigrations(s *Store, fsys fs.FS, dir string) error {
	m, err := newMigrate(s, fsys, dir)
	if err != nil {
		return err
	}
	defer func() {
		// Закрываем ресурсы migrate, игнорируя ошибки закрытия
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// GetMigrationVersion возвращает текущую версию примененных миграций.
func GetMigrationVersion(s *Store, fsys fs.FS, dir string) (uint, bool, error) {
	m, err := newMigrate(s, fsys, dir)
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
