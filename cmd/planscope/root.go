package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mickamy/planscope"
)

// app carries the state shared by every subcommand once flags are parsed.
type app struct {
	configPath string
	verbose    bool

	logger   *zap.Logger
	analyzer *planscope.Analyzer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "planscope",
		Short: "PostgreSQL EXPLAIN analyzer",
		Long: `planscope reads EXPLAIN output, works out where the time went, and flags
plan shapes that usually mean trouble: large sequential scans, bad row
estimates, sorts and hashes spilling to disk, and more.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a JSON or YAML threshold file. Falls back to $PLANSCOPE_CONFIG")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Verbose (debug) logging to stderr")

	root.AddCommand(
		newAnalyzeCmd(a),
		newRunCmd(a),
		newTimelineCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	logger, err := newLogger(a.verbose)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	a.logger = logger

	path := strings.TrimSpace(a.configPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("PLANSCOPE_CONFIG"))
	}
	cfg, err := planscope.LoadConfig(path)
	if err != nil {
		return err
	}
	if path != "" {
		logger.Debug("loaded thresholds", zap.String("path", path))
	}

	a.analyzer = planscope.New(planscope.WithConfig(cfg), planscope.WithLogger(logger))
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}
