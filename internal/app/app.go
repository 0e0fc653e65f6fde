package app

import (
	"context"
	"errors"
	"log/slog"

	"dbfactory/internal/config"
	"dbfactory/internal/platform/logger"
)

// App wires application components.
type App struct {
	cfg      config.Config
	log      *slog.Logger
	provider *Provider
}

// New loads configuration, sets up logging and opens the store.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "dbfactory",
	})
	return NewWithConfig(ctx, cfg, log)
}

// NewWithConfig builds the app from an already loaded configuration.
func NewWithConfig(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	p, err := NewProvider(ctx, ProviderOptions{
		ConnectionString:           cfg.DB.ConnectionString,
		Driver:                     cfg.DB.Driver,
		Logger:                     log,
		EnableSensitiveDataLogging: cfg.DB.SensitiveLogging,
		InMemory:                   cfg.DB.InMemory,
		Isolation:                  cfg.Isolation(),
		WaitTimeout:                cfg.DB.WaitTimeout,
	})
	if err != nil {
		_ = logger.Close(log)
		return nil, err
	}
	a := &App{cfg: cfg, log: log, provider: p}
	// An in-memory store starts empty, so its schema is always applied.
	if cfg.DB.Migrations || cfg.DB.InMemory {
		if err := p.Migrate(ctx); err != nil {
			return nil, errors.Join(err, a.Close())
		}
	}
	return a, nil
}

// Provider returns the factory provider.
func (a *App) Provider() *Provider { return a.provider }

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger { return a.log }

// Run seeds one quiz and reads it back.
func (a *App) Run(ctx context.Context, title string) (DemoResult, error) {
	a.log.Info("starting demo", slog.String("title", title))
	res, err := RunDemo(ctx, a.provider, title)
	if err != nil {
		a.log.Error("demo failed", slog.Any("err", err))
		return DemoResult{}, err
	}
	a.log.Info("demo finished",
		slog.Int64("quiz_id", res.QuizID),
		slog.Int64("quizzes", res.Quizzes),
		slog.Int("questions", res.Questions),
	)
	return res, nil
}

// Close closes the store and the log file.
func (a *App) Close() error {
	return errors.Join(a.provider.Close(), logger.Close(a.log))
}
