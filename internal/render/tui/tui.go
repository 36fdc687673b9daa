package tui

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mickamy/planscope/internal/insight"
	"github.com/mickamy/planscope/internal/model"
)

// Options controls how the text renderer behaves.
type Options struct {
	EnableColor  bool
	MaxDepth     int
	ShowWarnings bool
	BarWidth     int
	// Timeline, when set, is drawn below the tree.
	Timeline []model.TimelineInterval
	// TimelineWidth is the number of columns that represent 100%.
	TimelineWidth int
}

// Render prints an ASCII tree that highlights slow nodes and warnings.
func Render(w io.Writer, analysis *model.QueryPlanAnalysis, opts Options) error {
	if w == nil {
		return errors.New("tui: writer is nil")
	}
	if analysis == nil || analysis.Root == nil {
		return errors.New("tui: empty analysis")
	}

	if !analysis.Format.Structured() {
		_, _ = fmt.Fprintf(w, "Plan in %s format (not analysed)\n\n", analysis.Format)
		_, err := io.WriteString(w, analysis.RawText)
		return err
	}

	if opts.BarWidth <= 0 {
		opts.BarWidth = 20
	}
	if opts.TimelineWidth <= 0 {
		opts.TimelineWidth = 60
	}

	renderHeader(w, analysis)
	renderWarnings(w, analysis.Root, opts)

	_, _ = fmt.Fprintf(w, "%s\n", renderLine(analysis.Root, opts))
	printChildren(w, analysis.Root, "", opts)

	if len(opts.Timeline) > 0 {
		_, _ = fmt.Fprintln(w)
		renderTimeline(w, analysis.Root, opts)
	}
	return nil
}

func renderHeader(w io.Writer, analysis *model.QueryPlanAnalysis) {
	if analysis.ExecutionTimeMs != nil {
		planning := 0.0
		if analysis.PlanningTimeMs != nil {
			planning = *analysis.PlanningTimeMs
		}
		_, _ = fmt.Fprintf(w, "Execution time %.3f ms (planning %.3f ms)\n", *analysis.ExecutionTimeMs, planning)
	} else {
		_, _ = fmt.Fprintf(w, "Estimated cost %.2f (not executed)\n", analysis.Root.TotalCost)
	}

	warnings := 0
	analysis.Root.Walk(func(n *model.PlanNode) { warnings += len(n.Warnings) })
	_, _ = fmt.Fprintf(w, "Nodes %d | Warnings %d\n", analysis.Root.Count(), warnings)

	for _, trig := range analysis.TriggerTimings {
		_, _ = fmt.Fprintf(w, "Trigger %s on %s: %.3f ms, %d calls\n", trig.Name, trig.Relation, trig.TimeMs, trig.Calls)
	}
	if analysis.JIT != nil {
		_, _ = fmt.Fprintf(w, "JIT %d functions, %.3f ms\n", analysis.JIT.Functions, analysis.JIT.Timing.TotalMs)
	}
	_, _ = fmt.Fprintln(w)
}

func renderWarnings(w io.Writer, root *model.PlanNode, opts Options) {
	if !opts.ShowWarnings {
		return
	}
	var lines []string
	root.Walk(func(n *model.PlanNode) {
		for _, warn := range n.Warnings {
			text := fmt.Sprintf("%s %s: %s - %s", severityIcon(warn.Severity), insight.CompactLabel(n), warn.Message, warn.Suggestion)
			if opts.EnableColor && warn.Severity == model.SeverityCritical {
				text = applyColor(text, "red")
			}
			lines = append(lines, text)
		}
	})
	if len(lines) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, "Warnings:")
	for _, line := range lines {
		_, _ = fmt.Fprintf(w, "  - %s\n", line)
	}
	_, _ = fmt.Fprintln(w)
}

func printChildren(w io.Writer, parent *model.PlanNode, prefix string, opts Options) {
	for i, child := range parent.Children {
		renderBranch(w, child, prefix, i == len(parent.Children)-1, opts)
	}
}

func renderBranch(w io.Writer, node *model.PlanNode, prefix string, isLast bool, opts Options) {
	connector := "|-- "
	childPrefix := prefix + "|   "
	if isLast {
		connector = "`-- "
		childPrefix = prefix + "    "
	}

	line := renderLine(node, opts)
	_, _ = fmt.Fprintf(w, "%s%s%s\n", prefix, connector, line)

	if opts.MaxDepth > 0 && node.Depth >= opts.MaxDepth {
		if len(node.Children) > 0 {
			_, _ = fmt.Fprintf(w, "%s`-- ... (%d more nodes)\n", childPrefix, node.Count()-1)
		}
		return
	}

	printChildren(w, node, childPrefix, opts)
}

func renderLine(node *model.PlanNode, opts Options) string {
	label := insight.NodeLabel(node)
	if node.IsSlowest {
		label = "* " + label
	}

	share := fmt.Sprintf("%5.1f%%", node.PercentOfTotal)
	bar := drawBar(node.PercentOfTotal/100, opts.BarWidth)
	if opts.EnableColor {
		bar = applyColor(bar, pickColor(node.PercentOfTotal/100))
	}

	parts := []string{label, share, bar}
	if node.HasActualTiming() {
		parts = append(parts, fmt.Sprintf("self %.2f ms", node.ExclusiveTimeMs))
	} else {
		parts = append(parts, fmt.Sprintf("cost %.2f..%.2f", node.StartupCost, node.TotalCost))
	}

	if node.ActualRows != nil {
		parts = append(parts, fmt.Sprintf("rows %s/%s", humanize.Comma(int64(*node.ActualRows)), humanize.Comma(int64(node.PlanRows))))
	} else {
		parts = append(parts, fmt.Sprintf("rows ~%s", humanize.Comma(int64(node.PlanRows))))
	}

	if node.Buffers != nil && node.Buffers.Total() > 0 {
		total := node.Buffers.Total()
		parts = append(parts, fmt.Sprintf("buf %d (~%s)", total, insight.HumanizeBlocks(total)))
	}

	warningText := ""
	if len(node.Warnings) > 0 {
		kinds := make([]string, 0, len(node.Warnings))
		for _, warn := range node.Warnings {
			kinds = append(kinds, string(warn.Kind))
		}
		warningText = strings.Join(kinds, "; ")
		if opts.EnableColor {
			warningText = applyColor(warningText, "yellow")
		}
		warningText = " [" + warningText + "]"
	}

	return strings.Join(parts, " | ") + warningText
}

func renderTimeline(w io.Writer, root *model.PlanNode, opts Options) {
	labels := map[string]string{}
	root.Walk(func(n *model.PlanNode) { labels[n.ID] = insight.CompactLabel(n) })

	rows := 0
	for _, iv := range opts.Timeline {
		if iv.Row+1 > rows {
			rows = iv.Row + 1
		}
	}

	_, _ = fmt.Fprintf(w, "Timeline (%d rows):\n", rows)
	for row := 0; row < rows; row++ {
		line := []rune(strings.Repeat(" ", opts.TimelineWidth))
		var names []string
		for _, iv := range opts.Timeline {
			if iv.Row != row {
				continue
			}
			start := columnFor(iv.StartPercent, opts.TimelineWidth)
			end := columnFor(iv.StartPercent+iv.WidthPercent, opts.TimelineWidth)
			if end <= start {
				end = start + 1
			}
			for c := start; c < end && c < len(line); c++ {
				line[c] = '='
			}
			names = append(names, labels[iv.NodeID])
		}
		_, _ = fmt.Fprintf(w, "  %2d |%s| %s\n", row, string(line), strings.Join(names, ", "))
	}
}

// columnFor maps a percentage onto the timeline, clamping for display.
func columnFor(percent float64, width int) int {
	clamped := math.Max(0, math.Min(100, percent))
	return int(math.Round(clamped / 100 * float64(width)))
}

func drawBar(ratio float64, width int) string {
	if width <= 0 {
		return ""
	}
	clamped := ratio
	if clamped < 0 {
		clamped = 0
	}
	if clamped > 1 {
		clamped = 1
	}
	fill := int(math.Round(clamped * float64(width)))
	if clamped > 0 && fill == 0 {
		fill = 1
	}
	if fill > width {
		fill = width
	}
	return strings.Repeat("#", fill) + strings.Repeat("-", width-fill)
}

func pickColor(ratio float64) string {
	switch {
	case ratio >= 0.40:
		return "red"
	case ratio >= 0.20:
		return "yellow"
	case ratio >= 0.10:
		return "cyan"
	default:
		return ""
	}
}

func applyColor(text, color string) string {
	code := ""
	switch color {
	case "red":
		code = "\033[31m"
	case "yellow":
		code = "\033[33m"
	case "cyan":
		code = "\033[36m"
	default:
		return text
	}
	return code + text + "\033[0m"
}

func severityIcon(sev model.Severity) string {
	switch sev {
	case model.SeverityCritical:
		return "🔥"
	case model.SeverityWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}
