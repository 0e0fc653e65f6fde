// Package scheduler запускает периодические задачи по cron-расписанию.
// Используется командой watch для регулярной проверки хранилища.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc представляет функцию задачи планировщика.
type JobFunc func(ctx context.Context) error

// JobID - идентификатор задачи.
type JobID = cron.EntryID

// JobOptions содержит опции задачи.
type JobOptions struct {
	// Name - имя задачи для логирования.
	Name string
	// Timeout ограничивает одно выполнение задачи.
	Timeout time.Duration
	// SkipIfRunning пропускает запуск, пока предыдущий не завершился.
	SkipIfRunning bool
}

// Hooks содержит необязательные хуки.
type Hooks struct {
	OnJobFinish func(name string, duration time.Duration, err error)
}

// Config содержит конфигурацию планировщика.
type Config struct {
	Logger *slog.Logger
	Hooks  Hooks
}

// Scheduler управляет периодическими задачами.
type Scheduler struct {
	cron      *cron.Cron
	log       *slog.Logger
	hooks     Hooks
	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
}

// cronLogger передаёт сообщения cron в slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}

// New создаёт планировщик. Отмена parent останавливает все задачи.
func New(parent context.Context, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(parent)
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	cl := cronLogger{log: log.With("component", "cron")}
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		log:    log,
		hooks:  cfg.Hooks,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add регистрирует задачу. Расписание принимает секунды первым полем,
// а также дескрипторы вида "@every 30s" и "@hourly".
func (s *Scheduler) Add(schedule string, job JobFunc, opts JobOptions) (JobID, error) {
	if job == nil {
		return 0, fmt.Errorf("job must not be nil")
	}
	name := opts.Name
	if name == "" {
		name = "unnamed"
	}

	var run cron.Job = cron.FuncJob(func() { s.run(name, job, opts.Timeout) })
	if opts.SkipIfRunning {
		run = cron.NewChain(cron.SkipIfStillRunning(cronLogger{log: s.log})).Then(run)
	}

	id, err := s.cron.AddJob(schedule, run)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	s.log.Info("job added", "name", name, "schedule", schedule, "id", id)
	return id, nil
}

// Remove удаляет задачу.
func (s *Scheduler) Remove(id JobID) {
	s.cron.Remove(id)
}

// Start запускает планировщик. Повторный вызов ничего не делает.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.cron.Start()
		go func() {
			<-s.ctx.Done()
			s.stopOnce.Do(s.stop)
		}()
	})
}

// Stop останавливает планировщик и ждёт выполняющиеся задачи не дольше,
// чем живёт ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.stopOnce.Do(s.stop)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) run(name string, job JobFunc, timeout time.Duration) {
	ctx := s.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := job(ctx)
	duration := time.Since(start)

	if err != nil {
		s.log.Error("job failed", "name", name, "error", err, "duration", duration)
	} else {
		s.log.Debug("job completed", "name", name, "duration", duration)
	}
	if s.hooks.OnJobFinish != nil {
		s.hooks.OnJobFinish(name, duration, err)
	}
}
