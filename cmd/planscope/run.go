package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mickamy/planscope"
	"github.com/mickamy/planscope/internal/runner"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		url       string
		sqlPath   string
		inlineSQL string
		raw       bool
		timeout   time.Duration
		explain   planscope.Options
		format    string
		reportOpt reportOptions
	)

	cmd := &cobra.Command{
		Use:   "run --url <url> (--sql file.sql | --query \"SELECT ...\")",
		Short: "Run EXPLAIN against PostgreSQL and analyse the result",
		Long: `Run EXPLAIN for a statement and analyse the plan in one step.
With --analyze the statement is executed inside a transaction that is
rolled back afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			connection := strings.TrimSpace(url)
			if connection == "" {
				connection = strings.TrimSpace(os.Getenv("DATABASE_URL"))
			}
			if connection == "" {
				return errors.New("--url is required or set $DATABASE_URL")
			}

			sqlText, err := statementFrom(sqlPath, inlineSQL)
			if err != nil {
				return err
			}

			f, err := detectFormat(format, "")
			if err != nil {
				return err
			}
			explain.Format = f

			a.logger.Debug("running explain", zap.Bool("analyze", explain.MeasureExecution), zap.String("format", string(f)))
			result, err := runner.Run(cmd.Context(), connection, sqlText, runner.Options{Timeout: timeout, Explain: explain})
			if err != nil {
				return err
			}

			if raw {
				_, err = cmd.OutOrStdout().Write(append(result, '\n'))
				return err
			}
			analysis, err := a.analyzer.Analyze(string(result), explain)
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), a.analyzer, analysis, reportOpt)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "PostgreSQL connection string; defaults to $DATABASE_URL")
	cmd.Flags().StringVar(&sqlPath, "sql", "", "Path to the SQL file to EXPLAIN")
	cmd.Flags().StringVar(&inlineSQL, "query", "", "Inline SQL string to EXPLAIN")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the server's EXPLAIN output instead of the analysis")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Optional execution timeout, e.g. 45s")
	cmd.Flags().StringVar(&format, "format", "json", "EXPLAIN format: json, text, xml or yaml")
	cmd.Flags().BoolVar(&explain.MeasureExecution, "analyze", true, "Execute the statement (EXPLAIN ANALYZE)")
	cmd.Flags().BoolVar(&explain.Verbose, "verbose-plan", false, "Request VERBOSE output")
	cmd.Flags().BoolVar(&explain.ShowCosts, "costs", true, "Include planner cost estimates")
	cmd.Flags().BoolVar(&explain.ShowBuffers, "buffers", true, "Include buffer usage")
	cmd.Flags().BoolVar(&explain.ShowTiming, "timing", true, "Include per-node timing")
	cmd.Flags().BoolVar(&explain.ShowWAL, "wal", false, "Include WAL usage (requires --analyze)")
	cmd.MarkFlagsMutuallyExclusive("sql", "query")
	addReportFlags(cmd, &reportOpt)
	return cmd
}

func statementFrom(sqlPath, inlineSQL string) (string, error) {
	switch {
	case sqlPath != "" && inlineSQL != "":
		return "", errors.New("specify only one of --sql or --query")
	case sqlPath != "":
		data, err := os.ReadFile(sqlPath)
		if err != nil {
			return "", fmt.Errorf("read sql file: %w", err)
		}
		return string(data), nil
	case inlineSQL != "":
		return inlineSQL, nil
	default:
		return "", errors.New("--sql or --query is required")
	}
}
