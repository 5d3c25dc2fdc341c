package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tordrt/fedquery/internal/db"
	"github.com/tordrt/fedquery/internal/demo"
	fqerrors "github.com/tordrt/fedquery/internal/errors"
	"github.com/tordrt/fedquery/internal/formatter"
	"github.com/tordrt/fedquery/internal/orchestrator"
)

func newAskCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question with generated SQL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeEngine(engine)

			ctx, cancel := requestContext(cmd.Context(), opts)
			defer cancel()

			res, err := engine.Ask(ctx, strings.Join(args, " "))
			printResult(cmd.OutOrStdout(), res)
			return err
		},
	}
}

// asker is the part of the engine the shell drives.
type asker interface {
	Ask(ctx context.Context, question string) (*orchestrator.Result, error)
}

func newShellCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Ask questions interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeEngine(engine)

			return runShell(cmd.Context(), engine, cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}
}

// runShell reads one question per line until EOF, "exit" or "quit". Failed
// questions are reported and the loop continues.
func runShell(ctx context.Context, a asker, in io.Reader, out io.Writer, opts *cliOptions) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, promptColor.Sprint("fedquery> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		reqCtx, cancel := requestContext(ctx, opts)
		res, err := a.Ask(reqCtx, question)
		cancel()

		printResult(out, res)
		if err != nil {
			printError(out, err)
		}
	}
}

func newExecCmd(opts *cliOptions) *cobra.Command {
	var planOnly bool

	cmd := &cobra.Command{
		Use:   "exec <sql>",
		Short: "Run SQL written against the virtual schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeEngine(engine)

			sql := strings.Join(args, " ")
			out := cmd.OutOrStdout()

			if planOnly {
				decision, err := engine.Plan(sql)
				if err != nil {
					return err
				}
				printPlan(out, decision)
				return nil
			}

			ctx, cancel := requestContext(cmd.Context(), opts)
			defer cancel()

			stream, err := engine.Exec(ctx, sql)
			if err != nil {
				return err
			}
			rows, err := collect(stream, opts.maxRows)
			if err != nil {
				return err
			}
			printRows(out, stream.Columns(), rows)
			return nil
		},
	}

	cmd.Flags().BoolVar(&planOnly, "plan", false, "Print the routing decision instead of running the query")
	return cmd
}

// collect drains a stream, stopping after limit rows when limit is positive.
func collect(stream db.RowStream, limit int) ([]db.Row, error) {
	defer stream.Close()

	var rows []db.Row
	for stream.Next() {
		rows = append(rows, stream.Row())
		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	return rows, stream.Err()
}

func newTablesCmd(opts *cliOptions) *cobra.Command {
	var (
		format     string
		outputFile string
		outputDir  string
	)

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Document the virtual schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputDir != "" && outputFile != "" {
				return fmt.Errorf("cannot use both --output-dir and --output flags")
			}

			engine, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeEngine(engine)

			docs, err := engine.Tables(cmd.Context())
			if err != nil {
				return err
			}

			if outputDir != "" {
				if err := formatter.NewMultiFileFormatter(outputDir, format).Format(docs); err != nil {
					return fmt.Errorf("failed to format output: %w", err)
				}
				return nil
			}

			writer := cmd.OutOrStdout()
			if outputFile != "" {
				f, err := os.Create(outputFile)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer func() {
					if err := f.Close(); err != nil {
						fmt.Fprintf(os.Stderr, "warning: failed to close output file: %v\n", err)
					}
				}()
				writer = f
			}

			f, err := formatter.New(format, writer)
			if err != nil {
				return err
			}
			if err := f.Format(docs); err != nil {
				return fmt.Errorf("failed to format output: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatter.FormatText, "Output format: text or markdown")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "d", "", "Write one file per table plus an overview")
	return cmd
}

func newRouteCmd(opts *cliOptions) *cobra.Command {
	var (
		topK int
		all  bool
	)

	cmd := &cobra.Command{
		Use:   "route <question>",
		Short: "Show which virtual tables a question selects",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.MinimumNArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeEngine(engine)

			ctx, cancel := requestContext(cmd.Context(), opts)
			defer cancel()

			if all {
				if err := engine.Index(ctx); err != nil {
					return err
				}
				printEntries(cmd.OutOrStdout(), engine.Entries())
				return nil
			}

			sel, err := engine.Route(ctx, strings.Join(args, " "), topK)
			if err != nil {
				if errors.Is(err, fqerrors.ErrEmptyIndex) {
					return fmt.Errorf("no virtual tables to select from: %w", err)
				}
				return err
			}
			printSelection(cmd.OutOrStdout(), sel)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of tables to select (default: selector.top_k)")
	cmd.Flags().BoolVar(&all, "all", false, "List every indexed table instead of ranking a question")
	return cmd
}

func newSeedCmd() *cobra.Command {
	var (
		dir         string
		force       bool
		writeConfig string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo SQLite databases to query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := demo.Seed(cmd.Context(), dir, force)
			if err != nil {
				if errors.Is(err, demo.ErrExists) {
					return fmt.Errorf("%w (use --force to replace it)", err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			for _, d := range demo.Databases {
				fmt.Fprintf(out, "Created %s\n", paths[d.Alias])
			}
			if writeConfig == "" {
				return nil
			}

			if _, err := os.Stat(writeConfig); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to replace it)", writeConfig)
			}
			// Relative SQLite paths resolve against the config file
			dataDir, err := filepath.Rel(filepath.Dir(writeConfig), dir)
			if err != nil {
				if dataDir, err = filepath.Abs(dir); err != nil {
					return err
				}
			}
			if err := os.WriteFile(writeConfig, []byte(demo.Config(dataDir)), 0o644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Fprintf(out, "Wrote %s\n", writeConfig)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "data", "Directory for the database files")
	cmd.Flags().BoolVar(&force, "force", false, "Replace existing files")
	cmd.Flags().StringVar(&writeConfig, "write-config", "", "Also write a configuration file serving the databases")
	return cmd
}
