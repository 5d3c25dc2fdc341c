package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tordrt/fedquery"
	"github.com/tordrt/fedquery/internal/config"
)

// cliOptions holds the persistent flags shared by every command.
type cliOptions struct {
	configPath string
	timeout    time.Duration
	maxRows    int
	logLevel   string
	noColor    bool
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:   "fedquery",
		Short: "Ask questions across several databases as if they were one",
		Long: `fedquery maps tables from PostgreSQL, MySQL and SQLite databases into one
virtual schema, drafts SQL for natural-language questions and runs it on the
owning database, joining across databases when a query needs more than one.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "fedquery.yaml", "Configuration file")
	pf.DurationVar(&opts.timeout, "timeout", 0, "Abort a request after this long (0 disables)")
	pf.IntVar(&opts.maxRows, "max-rows", 0, "Stop reading results after this many rows (0 reads all)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")
	pf.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newAskCmd(opts),
		newShellCmd(opts),
		newExecCmd(opts),
		newTablesCmd(opts),
		newRouteCmd(opts),
		newSeedCmd(),
	)
	return root
}

// openEngine loads the configuration and connects to every backend.
func openEngine(ctx context.Context, opts *cliOptions) (*fedquery.Engine, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	engine, err := fedquery.Open(ctx, cfg, fedquery.WithMaxRows(opts.maxRows))
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}

// requestContext applies --timeout.
func requestContext(ctx context.Context, opts *cliOptions) (context.Context, context.CancelFunc) {
	if opts.timeout > 0 {
		return context.WithTimeout(ctx, opts.timeout)
	}
	return context.WithCancel(ctx)
}

func closeEngine(engine *fedquery.Engine) {
	if err := engine.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close connections: %v\n", err)
	}
}

func main() {
	// A missing .env is fine
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
