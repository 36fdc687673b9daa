package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mickamy/planscope"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		format    string
		measured  bool
		maxJobs   int
		reportOpt reportOptions
	)

	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Analyse saved EXPLAIN output",
		Long: `Analyse one or more files holding EXPLAIN output. Use "-" to read from stdin.
Files are analysed in parallel and reported in the order given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]*planscope.QueryPlanAnalysis, len(args))

			g, ctx := errgroup.WithContext(cmd.Context())
			if maxJobs > 0 {
				g.SetLimit(maxJobs)
			}
			for i, path := range args {
				i, path := i, path
				g.Go(func() error {
					if err := ctx.Err(); err != nil {
						return err
					}
					f, err := detectFormat(format, path)
					if err != nil {
						return err
					}
					raw, err := readPlan(path, cmd.InOrStdin())
					if err != nil {
						return err
					}
					analysis, err := a.analyzer.Analyze(string(raw), planscope.Options{
						MeasureExecution: measured,
						ShowCosts:        true,
						ShowTiming:       measured,
						Format:           f,
					})
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					results[i] = analysis
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			a.logger.Debug("analysed plans", zap.Int("files", len(args)))
			return writeReports(cmd.OutOrStdout(), a, args, results, reportOpt)
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Plan format: json, text, xml or yaml (default: from file extension)")
	cmd.Flags().BoolVar(&measured, "analyze", true, "The plan was produced with EXPLAIN ANALYZE")
	cmd.Flags().IntVar(&maxJobs, "jobs", 0, "Maximum files analysed at once (0 = unlimited)")
	addReportFlags(cmd, &reportOpt)
	return cmd
}

func addReportFlags(cmd *cobra.Command, opts *reportOptions) {
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Output: text, json or yaml")
	cmd.Flags().BoolVar(&opts.color, "color", false, "Enable ANSI colors for text output")
	cmd.Flags().IntVar(&opts.maxDepth, "max-depth", 0, "Limit tree depth in text output")
	cmd.Flags().BoolVar(&opts.warnings, "warnings", true, "List warnings above the tree in text output")
	cmd.Flags().BoolVar(&opts.timeline, "timeline", false, "Draw the timeline below the tree in text output")
}

func writeReports(w io.Writer, a *app, names []string, results []*planscope.QueryPlanAnalysis, opts reportOptions) error {
	for i, analysis := range results {
		if len(results) > 1 && (opts.output == "" || opts.output == "text") {
			if i > 0 {
				_, _ = fmt.Fprintln(w)
			}
			_, _ = fmt.Fprintf(w, "== %s ==\n", names[i])
		}
		if err := writeReport(w, a.analyzer, analysis, opts); err != nil {
			return err
		}
	}
	return nil
}
