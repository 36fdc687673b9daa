package insight

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mickamy/planscope/internal/config"
	"github.com/mickamy/planscope/internal/model"
)

const blockSize = 8192

// rule inspects a single node and returns a warning when it applies.
type rule func(node *model.PlanNode, cfg config.InsightConfig) *model.Warning

var rules = []rule{
	largeSeqScan,
	estimateMismatch,
	hotNestedLoop,
	diskSort,
	hashSpill,
	overFiltering,
	lowCacheHit,
	parallelShortfall,
	lossyBitmap,
}

// Detect evaluates every rule against every node and attaches the resulting
// warnings. Rules only look at the node's own fields.
func Detect(root *model.PlanNode, cfg config.InsightConfig) {
	root.Walk(func(node *model.PlanNode) {
		node.Warnings = Evaluate(node, cfg)
	})
}

// Evaluate returns the warnings for a single node.
func Evaluate(node *model.PlanNode, cfg config.InsightConfig) []model.Warning {
	var out []model.Warning
	for _, r := range rules {
		if w := r(node, cfg); w != nil {
			out = append(out, *w)
		}
	}
	return out
}

func largeSeqScan(node *model.PlanNode, cfg config.InsightConfig) *model.Warning {
	if !strings.Contains(node.NodeType, "Seq Scan") {
		return nil
	}
	rows := node.PlanRows
	if node.ActualRows != nil {
		rows = *node.ActualRows
	}
	if rows <= cfg.LargeSeqScanRows {
		return nil
	}
	return &model.Warning{
		Kind:       model.KindLargeSeqScan,
		Severity:   model.SeverityWarning,
		Message:    fmt.Sprintf("Sequential scan on %s reads %s rows", relationLabel(node), humanize.Comma(int64(rows))),
		Suggestion: "Consider an index on the filtered columns or a tighter predicate",
		Details:    node.Filter,
	}
}

func estimateMismatch(node *model.PlanNode, cfg config.InsightConfig) *model.Warning {
	if node.ActualRows == nil || node.PlanRows <= 0 || *node.ActualRows <= 0 {
		return nil
	}
	ratio := *node.ActualRows / node.PlanRows
	if within(ratio, cfg.EstimateWarnFactor) {
		return nil
	}
	severity := model.SeverityWarning
	if !within(ratio, cfg.EstimateCriticalFactor) {
		severity = model.SeverityCritical
	}
	direction := "more"
	if ratio < 1 {
		direction = "fewer"
	}
	return &model.Warning{
		Kind:     model.KindEstimateMismatch,
		Severity: severity,
		Message: fmt.Sprintf("%s returned %s rows, planner estimated %s (%s)",
			CompactLabel(node), humanize.Comma(int64(*node.ActualRows)), humanize.Comma(int64(node.PlanRows)), factorText(ratio, direction)),
		Suggestion: "Run ANALYZE on the involved tables or raise the statistics target for skewed columns",
		Details:    fmt.Sprintf("ratio %.4g", ratio),
	}
}

// within reports whether ratio lies inside [1/factor, factor].
func within(ratio, factor float64) bool {
	if factor <= 0 {
		return true
	}
	return ratio >= 1/factor && ratio <= factor
}

func factorText(ratio float64, direction string) string {
	factor := ratio
	if ratio < 1 {
		factor = 1 / ratio
	}
	return fmt.Sprintf("%.1fx %s", factor, direction)
}

func hotNestedLoop(node *model.PlanNode, cfg config.InsightConfig) *model.Warning {
	if node.NodeType != "Nested Loop" || node.ActualLoops == nil {
		return nil
	}
	loops := *node.ActualLoops
	if loops <= cfg.HotNestedLoopLoops {
		return nil
	}
	return &model.Warning{
		Kind:       model.KindHotNestedLoop,
		Severity:   model.SeverityWarning,
		Message:    fmt.Sprintf("Nested loop executed %s times", humanize.Comma(int64(loops))),
		Suggestion: "Index the inner side's join key or let the planner pick a hash or merge join",
		Details:    node.JoinFilter,
	}
}

func diskSort(node *model.PlanNode, _ config.InsightConfig) *model.Warning {
	if !strings.Contains(node.NodeType, "Sort") || !strings.EqualFold(node.SortSpaceType, "Disk") {
		return nil
	}
	used := "unknown space"
	if node.SortSpaceUsed != nil {
		used = humanize.IBytes(uint64(*node.SortSpaceUsed) * 1024)
	}
	return &model.Warning{
		Kind:       model.KindDiskSort,
		Severity:   model.SeverityCritical,
		Message:    fmt.Sprintf("Sort spilled to disk using %s", used),
		Suggestion: "Increase work_mem for this query or add an index matching the sort key",
		Details:    node.SortMethod,
	}
}

func hashSpill(node *model.PlanNode, cfg config.InsightConfig) *model.Warning {
	if node.HashBatches == nil || *node.HashBatches <= cfg.HashSpillBatches {
		return nil
	}
	details := ""
	if node.OriginalHashBatches != nil {
		details = fmt.Sprintf("planned %d batches", *node.OriginalHashBatches)
	}
	return &model.Warning{
		Kind:       model.KindHashSpill,
		Severity:   model.SeverityWarning,
		Message:    fmt.Sprintf("Hash table split into %d batches", *node.HashBatches),
		Suggestion: "Increase work_mem so the hash table fits in memory",
		Details:    details,
	}
}

func overFiltering(node *model.PlanNode, cfg config.InsightConfig) *model.Warning {
	if node.RowsRemoved == nil {
		return nil
	}
	removed := *node.RowsRemoved
	kept := node.PlanRows
	if node.ActualRows != nil {
		kept = *node.ActualRows
	}
	scanned := removed + kept
	if scanned <= 0 {
		return nil
	}
	ratio := removed / scanned
	if ratio <= cfg.OverFilterRatio {
		return nil
	}
	return &model.Warning{
		Kind:       model.KindOverFiltering,
		Severity:   model.SeverityInfo,
		Message:    fmt.Sprintf("%s discarded %.1f%% of the rows it read", CompactLabel(node), ratio*100),
		Suggestion: "An index covering the filter columns would avoid reading rows that are thrown away",
		Details:    firstNonEmpty(node.Filter, node.JoinFilter, node.RecheckCond),
	}
}

func lowCacheHit(node *model.PlanNode, cfg config.InsightConfig) *model.Warning {
	if node.Buffers == nil {
		return nil
	}
	hit := node.Buffers.SharedHit
	read := node.Buffers.SharedRead
	if hit+read <= cfg.CacheMinBlocks {
		return nil
	}
	ratio := float64(hit) / float64(hit+read)
	if ratio >= cfg.CacheHitRatioMin {
		return nil
	}
	return &model.Warning{
		Kind:       model.KindLowCacheHit,
		Severity:   model.SeverityWarning,
		Message:    fmt.Sprintf("Buffer cache hit ratio %.1f%% (%s read from disk)", ratio*100, humanize.IBytes(uint64(read)*blockSize)),
		Suggestion: "Check shared_buffers sizing or reduce the data this node touches",
		Details:    fmt.Sprintf("%d hit, %d read", hit, read),
	}
}

func parallelShortfall(node *model.PlanNode, _ config.InsightConfig) *model.Warning {
	if node.WorkersPlanned == nil || node.WorkersLaunched == nil {
		return nil
	}
	planned, launched := *node.WorkersPlanned, *node.WorkersLaunched
	if launched >= planned {
		return nil
	}
	return &model.Warning{
		Kind:       model.KindParallelShortfall,
		Severity:   model.SeverityInfo,
		Message:    fmt.Sprintf("Only %d of %d planned parallel workers launched", launched, planned),
		Suggestion: "Raise max_parallel_workers or max_worker_processes if this is routine",
	}
}

func lossyBitmap(node *model.PlanNode, cfg config.InsightConfig) *model.Warning {
	if !strings.Contains(strings.ToLower(node.NodeType), "bitmap") || node.LossyHeapBlocks == nil {
		return nil
	}
	lossy := *node.LossyHeapBlocks
	var exact int64
	if node.ExactHeapBlocks != nil {
		exact = *node.ExactHeapBlocks
	}
	if exact+lossy <= 0 {
		return nil
	}
	ratio := float64(lossy) / float64(exact+lossy)
	if ratio <= cfg.LossyBitmapRatio {
		return nil
	}
	return &model.Warning{
		Kind:       model.KindLossyBitmap,
		Severity:   model.SeverityWarning,
		Message:    fmt.Sprintf("%.0f%% of heap blocks in the bitmap were lossy", ratio*100),
		Suggestion: "Increase work_mem so the bitmap stays exact and avoids rechecks",
		Details:    fmt.Sprintf("%d exact, %d lossy", exact, lossy),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func relationLabel(node *model.PlanNode) string {
	if node.RelationName == "" {
		return "an unnamed relation"
	}
	if node.Schema != "" {
		return node.Schema + "." + node.RelationName
	}
	return node.RelationName
}

// NodeLabel builds a descriptive label for a plan node.
func NodeLabel(node *model.PlanNode) string {
	if node == nil {
		return ""
	}
	label := node.NodeType
	if node.RelationName != "" {
		label = fmt.Sprintf("%s on %s", label, node.RelationName)
		if node.Alias != "" && node.Alias != node.RelationName {
			label = fmt.Sprintf("%s (%s)", label, node.Alias)
		}
	} else if node.CTEName != "" {
		label = fmt.Sprintf("%s on %s", label, node.CTEName)
	} else if node.IndexName != "" {
		label = fmt.Sprintf("%s using %s", label, node.IndexName)
	} else if node.Alias != "" {
		label = fmt.Sprintf("%s (%s)", label, node.Alias)
	}
	return label
}

// CompactLabel shortens long labels for inline summaries.
func CompactLabel(node *model.PlanNode) string {
	label := NodeLabel(node)
	if len(label) > 60 {
		return label[:57] + "..."
	}
	return label
}

// HumanizeBlocks converts a block count into a readable size using 8KiB blocks.
func HumanizeBlocks(blocks int64) string {
	if blocks <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(blocks) * blockSize)
}
