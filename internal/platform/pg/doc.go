// Package pg предоставляет PostgreSQL хранилище для фабрик dbfactory.
//
// Store открывает pgxpool и отдаёт его соединения через database/sql
// обёртку pgx/v5/stdlib, так что фабрики используют общий с SQLite путь:
// *sqlx.Conn, *sqlx.Tx и плейсхолдеры $1.
//
//	if err := pg.WaitForDBSimple(ctx, dsn, 30*time.Second); err != nil {
//		return err
//	}
//	store, err := pg.NewStore(ctx, dsn)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
// WaitForDB повторяет ping с помощью github.com/sethvargo/go-retry.
// Это единственное место с повторами; сами фабрики ошибки не повторяют.
//
// Миграции применяются из fs.FS:
//
//	info, err := pg.ApplyMigrations(dsn, migrations, "migrations/postgres")
package pg
