package insight_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/planscope/internal/config"
	"github.com/mickamy/planscope/internal/insight"
	"github.com/mickamy/planscope/internal/model"
	"github.com/mickamy/planscope/test"
)

func kinds(warnings []model.Warning) []model.WarningKind {
	var out []model.WarningKind
	for _, w := range warnings {
		out = append(out, w.Kind)
	}
	return out
}

func TestLargeSeqScanSample(t *testing.T) {
	plan := test.ParseSample(t, "seq_scan.json")
	insight.Detect(plan.Root, config.Default().Insights)

	require.Len(t, plan.Root.Warnings, 1)
	w := plan.Root.Warnings[0]
	assert.Equal(t, model.KindLargeSeqScan, w.Kind)
	assert.Equal(t, model.SeverityWarning, w.Severity)
	assert.Contains(t, w.Message, "50,000")
	assert.NotEmpty(t, w.Suggestion)
}

func TestDiskSortSample(t *testing.T) {
	plan := test.ParseSample(t, "disk_sort.json")
	insight.Detect(plan.Root, config.Default().Insights)

	require.Len(t, plan.Root.Warnings, 1)
	w := plan.Root.Warnings[0]
	assert.Equal(t, model.KindDiskSort, w.Kind)
	assert.Equal(t, model.SeverityCritical, w.Severity)
	assert.Contains(t, w.Message, "40 MiB")
	assert.Equal(t, "external merge", w.Details)
}

func TestDetectSampleTree(t *testing.T) {
	plan := test.ParseSample(t, "hash_join_analyze.json")
	insight.Detect(plan.Root, config.Default().Insights)

	root := plan.Root
	gather := root.Children[0]
	scan := gather.Children[0]
	hash := root.Children[1]
	bitmap := hash.Children[0]
	index := bitmap.Children[0]

	assert.Empty(t, root.Warnings)
	assert.ElementsMatch(t, []model.WarningKind{model.KindParallelShortfall, model.KindLowCacheHit}, kinds(gather.Warnings))
	assert.ElementsMatch(t, []model.WarningKind{model.KindLargeSeqScan, model.KindOverFiltering, model.KindLowCacheHit}, kinds(scan.Warnings))
	assert.ElementsMatch(t, []model.WarningKind{model.KindHashSpill}, kinds(hash.Warnings))
	assert.ElementsMatch(t, []model.WarningKind{model.KindLossyBitmap, model.KindEstimateMismatch}, kinds(bitmap.Warnings))
	assert.Empty(t, index.Warnings)

	for _, w := range bitmap.Warnings {
		if w.Kind == model.KindEstimateMismatch {
			// a factor of exactly 100 stays a warning
			assert.Equal(t, model.SeverityWarning, w.Severity)
		}
	}
}

func TestRules(t *testing.T) {
	cfg := config.Default().Insights

	tests := []struct {
		name     string
		node     model.PlanNode
		kind     model.WarningKind
		severity model.Severity
		fires    bool
	}{
		{
			name:  "seq scan under threshold",
			node:  model.PlanNode{NodeType: "Seq Scan", PlanRows: 10000},
			kind:  model.KindLargeSeqScan,
			fires: false,
		},
		{
			name:     "seq scan estimated rows",
			node:     model.PlanNode{NodeType: "Seq Scan", PlanRows: 10001},
			kind:     model.KindLargeSeqScan,
			severity: model.SeverityWarning,
			fires:    true,
		},
		{
			name:  "seq scan actual rows win over estimate",
			node:  model.PlanNode{NodeType: "Seq Scan", PlanRows: 90000, ActualRows: test.Float(10)},
			kind:  model.KindLargeSeqScan,
			fires: false,
		},
		{
			name:     "estimate far too low",
			node:     model.PlanNode{NodeType: "Index Scan", PlanRows: 10, ActualRows: test.Float(500)},
			kind:     model.KindEstimateMismatch,
			severity: model.SeverityWarning,
			fires:    true,
		},
		{
			name:     "estimate wildly too high",
			node:     model.PlanNode{NodeType: "Index Scan", PlanRows: 100000, ActualRows: test.Float(5)},
			kind:     model.KindEstimateMismatch,
			severity: model.SeverityCritical,
			fires:    true,
		},
		{
			name:  "estimate at the boundary",
			node:  model.PlanNode{NodeType: "Index Scan", PlanRows: 100, ActualRows: test.Float(10)},
			kind:  model.KindEstimateMismatch,
			fires: false,
		},
		{
			name:  "zero actual rows skip the ratio",
			node:  model.PlanNode{NodeType: "Index Scan", PlanRows: 100, ActualRows: test.Float(0)},
			kind:  model.KindEstimateMismatch,
			fires: false,
		},
		{
			name:     "hot nested loop",
			node:     model.PlanNode{NodeType: "Nested Loop", ActualLoops: test.Float(1001)},
			kind:     model.KindHotNestedLoop,
			severity: model.SeverityWarning,
			fires:    true,
		},
		{
			name:  "nested loop without actuals",
			node:  model.PlanNode{NodeType: "Nested Loop"},
			kind:  model.KindHotNestedLoop,
			fires: false,
		},
		{
			name:  "in-memory sort",
			node:  model.PlanNode{NodeType: "Sort", SortSpaceType: "Memory", SortSpaceUsed: test.Int(25)},
			kind:  model.KindDiskSort,
			fires: false,
		},
		{
			name:     "incremental sort on disk",
			node:     model.PlanNode{NodeType: "Incremental Sort", SortSpaceType: "Disk"},
			kind:     model.KindDiskSort,
			severity: model.SeverityCritical,
			fires:    true,
		},
		{
			name:     "hash spill",
			node:     model.PlanNode{NodeType: "Hash", HashBatches: test.Int(2)},
			kind:     model.KindHashSpill,
			severity: model.SeverityWarning,
			fires:    true,
		},
		{
			name:  "single hash batch",
			node:  model.PlanNode{NodeType: "Hash", HashBatches: test.Int(1)},
			kind:  model.KindHashSpill,
			fires: false,
		},
		{
			name:     "over filtering",
			node:     model.PlanNode{NodeType: "Seq Scan", PlanRows: 5, ActualRows: test.Float(5), RowsRemoved: test.Float(95)},
			kind:     model.KindOverFiltering,
			severity: model.SeverityInfo,
			fires:    true,
		},
		{
			name:  "filter removes exactly ninety percent",
			node:  model.PlanNode{NodeType: "Seq Scan", ActualRows: test.Float(10), RowsRemoved: test.Float(90)},
			kind:  model.KindOverFiltering,
			fires: false,
		},
		{
			name:  "nothing scanned",
			node:  model.PlanNode{NodeType: "Seq Scan", ActualRows: test.Float(0), RowsRemoved: test.Float(0)},
			kind:  model.KindOverFiltering,
			fires: false,
		},
		{
			name:     "cold cache",
			node:     model.PlanNode{NodeType: "Index Scan", Buffers: &model.Buffers{SharedHit: 80, SharedRead: 40}},
			kind:     model.KindLowCacheHit,
			severity: model.SeverityWarning,
			fires:    true,
		},
		{
			name:  "too few blocks to judge",
			node:  model.PlanNode{NodeType: "Index Scan", Buffers: &model.Buffers{SharedHit: 0, SharedRead: 100}},
			kind:  model.KindLowCacheHit,
			fires: false,
		},
		{
			name:     "missing workers",
			node:     model.PlanNode{NodeType: "Gather Merge", WorkersPlanned: test.Int(4), WorkersLaunched: test.Int(0)},
			kind:     model.KindParallelShortfall,
			severity: model.SeverityInfo,
			fires:    true,
		},
		{
			name:  "all workers launched",
			node:  model.PlanNode{NodeType: "Gather", WorkersPlanned: test.Int(2), WorkersLaunched: test.Int(2)},
			kind:  model.KindParallelShortfall,
			fires: false,
		},
		{
			name:     "lossy bitmap",
			node:     model.PlanNode{NodeType: "Bitmap Heap Scan", ExactHeapBlocks: test.Int(10), LossyHeapBlocks: test.Int(11)},
			kind:     model.KindLossyBitmap,
			severity: model.SeverityWarning,
			fires:    true,
		},
		{
			name:  "lossy counters on a non-bitmap node",
			node:  model.PlanNode{NodeType: "Seq Scan", ExactHeapBlocks: test.Int(0), LossyHeapBlocks: test.Int(11)},
			kind:  model.KindLossyBitmap,
			fires: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := tt.node
			var found *model.Warning
			for _, w := range insight.Evaluate(&node, cfg) {
				if w.Kind == tt.kind {
					found = &w
				}
			}
			if !tt.fires {
				assert.Nil(t, found)
				return
			}
			require.NotNil(t, found)
			assert.Equal(t, tt.severity, found.Severity)
			assert.NotEmpty(t, found.Message)
			assert.NotEmpty(t, found.Suggestion)
		})
	}
}

func TestThresholdsFromConfig(t *testing.T) {
	cfg := config.Default().Insights
	cfg.LargeSeqScanRows = 100

	node := &model.PlanNode{NodeType: "Seq Scan", PlanRows: 500}
	insight.Detect(node, cfg)
	assert.Equal(t, []model.WarningKind{model.KindLargeSeqScan}, kinds(node.Warnings))

	insight.Detect(node, config.Default().Insights)
	assert.Empty(t, node.Warnings)
}

func TestNodeLabel(t *testing.T) {
	assert.Equal(t, "Seq Scan on orders (o)", insight.NodeLabel(&model.PlanNode{NodeType: "Seq Scan", RelationName: "orders", Alias: "o"}))
	assert.Equal(t, "CTE Scan on recent", insight.NodeLabel(&model.PlanNode{NodeType: "CTE Scan", CTEName: "recent"}))
	assert.Equal(t, "Bitmap Index Scan using idx", insight.NodeLabel(&model.PlanNode{NodeType: "Bitmap Index Scan", IndexName: "idx"}))
	assert.Equal(t, "0 B", insight.HumanizeBlocks(0))
	assert.Equal(t, "80 KiB", insight.HumanizeBlocks(10))
}
