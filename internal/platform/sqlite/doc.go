// Package sqlite предоставляет SQLite хранилище для фабрик dbfactory.
//
// Основные возможности:
// - Файловые базы с оптимизированными настройками (WAL, foreign keys, busy timeout)
// - Эфемерные in-memory базы с общим кэшем, видимые всем соединениям хранилища
// - Режимы доступа (read-only, read-write-create) и режим блокировки транзакций
// - Система миграций поверх fs.FS (embed, os.DirFS)
// - Тестовые хелперы для удобного тестирования
//
// # Быстрый старт
//
//	ctx := context.Background()
//	store, err := sqlite.Open(ctx, "app.db")
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	f, err := dbfactory.New(store, builders)
//
// # PRAGMA
//
// Настройки передаются драйверу через параметры _pragma в DSN, поэтому
// применяются к каждому соединению пула, включая соединения, которые
// фабрики резервируют через Connx.
//
// # In-memory
//
// OpenInMemory открывает базу file:<name>?mode=memory&cache=shared и держит
// одно соединение, пока Store открыт. Store.Ephemeral возвращает true:
// фабрики не начинают транзакций поверх такой базы.
//
//	store, err := sqlite.OpenInMemory(ctx, "")
//
// # Миграции
//
//	//go:embed migrations/sqlite/*.sql
//	var migrations embed.FS
//
//	err = sqlite.ApplyMigrations(store, migrations, "migrations/sqlite")
//
// # Тестирование
//
//	func TestSomething(t *testing.T) {
//		ts := sqlite.NewTestStoreInMemory(t)
//		ts.ApplyTestMigrations(t, migrations, "migrations/sqlite")
//		// Автоматическая очистка после теста
//	}
package sqlite
