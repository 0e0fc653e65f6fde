package config

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	Env string `validate:"required,oneof=dev prod"`
	DB  struct {
		Driver           string `validate:"required,oneof=sqlite postgres"`
		ConnectionString string `validate:"required"`
		InMemory         bool
		SensitiveLogging bool
		IsolationLevel   string `validate:"omitempty,oneof=default read_uncommitted read_committed repeatable_read serializable"`
		Migrations       bool
		// WaitTimeout bounds the startup wait for a Postgres server. Zero disables it.
		WaitTimeout time.Duration
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
}

var validate = validator.New()

var isolationLevels = map[string]sql.IsolationLevel{
	"":                 sql.LevelDefault,
	"default":          sql.LevelDefault,
	"read_uncommitted": sql.LevelReadUncommitted,
	"read_committed":   sql.LevelReadCommitted,
	"repeatable_read":  sql.LevelRepeatableRead,
	"serializable":     sql.LevelSerializable,
}

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	return LoadWithOverrides(nil)
}

// LoadWithOverrides is Load with values that take precedence over the
// environment, keyed by variable name. Command line flags use it.
func LoadWithOverrides(overrides map[string]string) (Config, error) {
	_ = godotenv.Load()

	e := env(overrides)
	var c Config
	c.Env = e.get("ENV", "prod")
	c.DB.Driver = strings.ToLower(e.get("DB_DRIVER", "sqlite"))
	c.DB.ConnectionString = e.get("DB_CONNECTION_STRING", "")
	c.DB.IsolationLevel = strings.ToLower(e.get("DB_ISOLATION_LEVEL", ""))
	c.Log.ConsoleLevel = strings.ToLower(e.get("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(e.get("LOG_FILE_LEVEL", "debug"))
	c.Log.File = e.get("LOG_FILE", "")

	var err error
	if c.DB.InMemory, err = e.flag("DB_IN_MEMORY", false); err != nil {
		return Config{}, err
	}
	if c.DB.SensitiveLogging, err = e.flag("DB_SENSITIVE_LOGGING", false); err != nil {
		return Config{}, err
	}
	if c.DB.Migrations, err = e.flag("DB_MIGRATIONS", true); err != nil {
		return Config{}, err
	}

	if v := e.get("DB_WAIT_TIMEOUT", ""); v != "" {
		if c.DB.WaitTimeout, err = time.ParseDuration(v); err != nil {
			return Config{}, fmt.Errorf("DB_WAIT_TIMEOUT: %w", err)
		}
	}

	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	if c.DB.InMemory && c.DB.Driver != "sqlite" {
		return Config{}, fmt.Errorf("DB_IN_MEMORY is only supported with DB_DRIVER=sqlite")
	}
	return c, nil
}

// Isolation returns the transaction isolation level for DB_ISOLATION_LEVEL.
func (c Config) Isolation() sql.IsolationLevel {
	return isolationLevels[c.DB.IsolationLevel]
}

type env map[string]string

func (e env) get(k, def string) string {
	if v, ok := e[k]; ok && v != "" {
		return v
	}
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func (e env) flag(k string, def bool) (bool, error) {
	v := e.get(k, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", k, err)
	}
	return b, nil
}
