// Package cli is the dbfactory command line.
package cli

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dbfactory/internal/app"
	"dbfactory/internal/config"
	"dbfactory/internal/platform/logger"
)

// RootOptions holds global flags for all commands. Empty flags fall back to
// the environment and .env.
type RootOptions struct {
	Driver     string
	DSN        string
	InMemory   bool
	Sensitive  bool
	Isolation  string
	LogLevel   string
	Wait       time.Duration
	NoMigrate  bool
	changedMem bool
	changedSen bool
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dbfactory",
		Short: "Session factory toolbox",
		Long:  "Applies the example schema, runs the quiz demo and checks store connectivity once or on a schedule.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.changedMem = cmd.Flags().Changed("in-memory")
			opts.changedSen = cmd.Flags().Changed("sensitive")
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "store driver (sqlite|postgres)")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "connection string, file path or in-memory name")
	cmd.PersistentFlags().BoolVar(&opts.InMemory, "in-memory", false, "use an ephemeral in-memory sqlite store")
	cmd.PersistentFlags().BoolVar(&opts.Sensitive, "sensitive", false, "log statement parameters")
	cmd.PersistentFlags().StringVar(&opts.Isolation, "isolation", "", "transaction isolation level")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "console log level (debug|info|warn|error)")
	cmd.PersistentFlags().DurationVar(&opts.Wait, "wait", 0, "wait up to this long for a postgres server")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewDemoCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

func (o *RootOptions) overrides() map[string]string {
	m := map[string]string{
		"DB_DRIVER":            o.Driver,
		"DB_CONNECTION_STRING": o.DSN,
		"DB_ISOLATION_LEVEL":   o.Isolation,
		"LOG_CONSOLE_LEVEL":    o.LogLevel,
	}
	if o.changedMem {
		m["DB_IN_MEMORY"] = strconv.FormatBool(o.InMemory)
	}
	if o.changedSen {
		m["DB_SENSITIVE_LOGGING"] = strconv.FormatBool(o.Sensitive)
	}
	if o.Wait > 0 {
		m["DB_WAIT_TIMEOUT"] = o.Wait.String()
	}
	if o.NoMigrate {
		m["DB_MIGRATIONS"] = "false"
	}
	return m
}

// open loads the configuration and builds the app with the console bound to
// the command's output.
func open(cmd *cobra.Command, opts *RootOptions) (*app.App, error) {
	cfg, err := config.LoadWithOverrides(opts.overrides())
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "dbfactory",
		Console:      cmd.ErrOrStderr(),
	})
	log.Debug("configuration loaded", slog.String("driver", cfg.DB.Driver), slog.Bool("in_memory", cfg.DB.InMemory))
	return app.NewWithConfig(cmd.Context(), cfg, log)
}
