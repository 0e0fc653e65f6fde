package cli

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"dbfactory/internal/platform/scheduler"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Apply the quiz schema",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			rootOpts.NoMigrate = true
			a, err := open(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.Close()) }()

			if err := a.Provider().Migrate(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return err
		},
	}
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:          "demo",
		Short:        "Write a quiz in a transaction and read it back read-only",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := open(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.Close()) }()

			res, err := a.Run(cmd.Context(), title)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "quiz %d %q: %d questions, %d correct answers, %d quizzes in store\n",
				res.QuizID, res.Title, res.Questions, res.Correct, res.Quizzes)
			return err
		},
	}
	cmd.Flags().StringVar(&title, "title", "Test 1", "quiz title")
	return cmd
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "check",
		Short:        "Verify that the store answers queries",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			rootOpts.NoMigrate = true
			a, err := open(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.Close()) }()

			if err := a.Provider().Check(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return err
		},
	}
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		schedule string
		count    int
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:          "watch",
		Short:        "Check the store on a cron schedule",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			rootOpts.NoMigrate = true
			a, err := open(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.Close()) }()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var checks, failures atomic.Int64
			s := scheduler.New(ctx, scheduler.Config{
				Logger: a.Logger(),
				Hooks: scheduler.Hooks{OnJobFinish: func(_ string, d time.Duration, err error) {
					n := checks.Add(1)
					status := "ok"
					if err != nil {
						failures.Add(1)
						status = err.Error()
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "check %d: %s (%s)\n", n, status, d.Round(time.Millisecond))
					if count > 0 && n >= int64(count) {
						cancel()
					}
				}},
			})
			if _, err := s.Add(schedule, a.Provider().Check, scheduler.JobOptions{
				Name:          "store-check",
				Timeout:       timeout,
				SkipIfRunning: true,
			}); err != nil {
				return err
			}
			s.Start()
			<-ctx.Done()

			stopCtx, stopCancel := context.WithTimeout(context.Background(), timeout)
			defer stopCancel()
			if err := s.Stop(stopCtx); err != nil {
				return err
			}
			if failures.Load() > 0 {
				return fmt.Errorf("%d of %d checks failed", failures.Load(), checks.Load())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "@every 30s", "cron schedule, seconds first")
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many checks (0 runs until interrupted)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "timeout of a single check")
	return cmd
}
