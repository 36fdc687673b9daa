package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mickamy/planscope"
	"github.com/mickamy/planscope/internal/insight"
)

func newTimelineCmd(a *app) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "timeline FILE",
		Short: "Print the timeline layout of a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := detectFormat(format, args[0])
			if err != nil {
				return err
			}
			raw, err := readPlan(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			analysis, err := a.analyzer.Analyze(string(raw), planscope.Options{MeasureExecution: true, ShowCosts: true, ShowTiming: true, Format: f})
			if err != nil {
				return err
			}
			if !analysis.Format.Structured() {
				return fmt.Errorf("timeline needs a JSON plan, got %s", analysis.Format)
			}
			intervals := a.analyzer.Timeline(analysis)

			switch output {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(intervals)
			case "yaml":
				return writeYAML(cmd.OutOrStdout(), intervals)
			case "", "text":
			default:
				return fmt.Errorf("unknown output %q (want text, json or yaml)", output)
			}

			labels := map[string]string{}
			analysis.Root.Walk(func(n *planscope.PlanNode) { labels[n.ID] = insight.CompactLabel(n) })

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ROW\tSTART\tWIDTH\tNODE")
			for _, iv := range intervals {
				_, _ = fmt.Fprintf(tw, "%d\t%.2f%%\t%.2f%%\t%s\n", iv.Row, iv.StartPercent, iv.WidthPercent, labels[iv.NodeID])
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Plan format (default: from file extension)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output: text, json or yaml")
	return cmd
}
