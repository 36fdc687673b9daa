package parser_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/planscope/internal/model"
	"github.com/mickamy/planscope/internal/parser"
	"github.com/mickamy/planscope/test"
)

func TestParseSampleTree(t *testing.T) {
	plan := test.ParseSample(t, "hash_join_analyze.json")

	require.Equal(t, model.FormatJSON, plan.Format)
	require.NotNil(t, plan.Root)
	assert.Equal(t, 6, plan.Root.Count())

	root := plan.Root
	assert.Equal(t, "Hash Join", root.NodeType)
	assert.Equal(t, "Inner", root.JoinType)
	assert.Equal(t, "(o.customer_id = c.id)", root.HashCond)
	require.NotNil(t, root.ActualTotalTime)
	assert.Equal(t, 200.0, *root.ActualTotalTime)
	require.NotNil(t, root.Buffers)
	assert.EqualValues(t, 5000, root.Buffers.SharedHit)
	require.NotNil(t, root.IOTiming)
	assert.Equal(t, 1.25, root.IOTiming.ReadTimeMs)
	assert.Nil(t, root.WAL)

	require.Len(t, root.Children, 2)
	gather := root.Children[0]
	assert.Equal(t, "Gather", gather.NodeType)
	require.NotNil(t, gather.WorkersPlanned)
	require.NotNil(t, gather.WorkersLaunched)
	assert.EqualValues(t, 2, *gather.WorkersPlanned)
	assert.EqualValues(t, 1, *gather.WorkersLaunched)

	scan := gather.Children[0]
	assert.Equal(t, "orders", scan.RelationName)
	assert.Equal(t, "public", scan.Schema)
	assert.True(t, scan.ParallelAware)
	require.Len(t, scan.Workers, 1)
	assert.EqualValues(t, 0, scan.Workers[0].WorkerNumber)
	require.NotNil(t, scan.Workers[0].Buffers)
	assert.EqualValues(t, 480, scan.Workers[0].Buffers.SharedRead)

	hash := root.Children[1]
	require.NotNil(t, hash.HashBatches)
	assert.EqualValues(t, 4, *hash.HashBatches)
	require.NotNil(t, hash.PeakMemoryUsage)
	assert.EqualValues(t, 4096, *hash.PeakMemoryUsage)

	bitmap := hash.Children[0]
	require.NotNil(t, bitmap.LossyHeapBlocks)
	assert.EqualValues(t, 300, *bitmap.LossyHeapBlocks)
	assert.Equal(t, "customers_region_idx", bitmap.Children[0].IndexName)
}

func TestParseRootMetadata(t *testing.T) {
	plan := test.ParseSample(t, "hash_join_analyze.json")

	require.NotNil(t, plan.PlanningTimeMs)
	assert.Equal(t, 1.5, *plan.PlanningTimeMs)
	require.NotNil(t, plan.ExecutionTimeMs)
	assert.Equal(t, 201.25, *plan.ExecutionTimeMs)

	require.Len(t, plan.TriggerTimings, 1)
	assert.Equal(t, model.TriggerTiming{Name: "audit_orders", Relation: "orders", TimeMs: 0.75, Calls: 3}, plan.TriggerTimings[0])

	require.NotNil(t, plan.JIT)
	assert.EqualValues(t, 12, plan.JIT.Functions)
	assert.True(t, plan.JIT.Options["Expressions"])
	assert.False(t, plan.JIT.Options["Inlining"])
	assert.Equal(t, 6.7, plan.JIT.Timing.TotalMs)
	assert.Equal(t, map[string]string{"work_mem": "4MB"}, plan.Settings)
}

func TestParseWithoutExecution(t *testing.T) {
	plan := test.ParseSample(t, "limit_costs.json")

	assert.Nil(t, plan.ExecutionTimeMs)
	assert.Nil(t, plan.PlanningTimeMs)
	assert.Nil(t, plan.JIT)
	plan.Root.Walk(func(n *model.PlanNode) {
		assert.Nil(t, n.ActualTotalTime, n.NodeType)
		assert.Nil(t, n.Buffers, n.NodeType)
		assert.Nil(t, n.RowsRemoved, n.NodeType)
	})
}

func TestParseDepthAndUniqueIDs(t *testing.T) {
	plan := test.ParseSample(t, "hash_join_analyze.json")

	assert.Equal(t, 0, plan.Root.Depth)
	seen := map[string]bool{}
	var check func(*model.PlanNode)
	check = func(n *model.PlanNode) {
		require.NotEmpty(t, n.ID)
		require.False(t, seen[n.ID], "duplicate id %s", n.ID)
		seen[n.ID] = true
		for _, child := range n.Children {
			assert.Equal(t, n.Depth+1, child.Depth)
			check(child)
		}
	}
	check(plan.Root)
}

func TestRowsRemovedNormalization(t *testing.T) {
	tests := []struct {
		name string
		node string
		want *float64
	}{
		{name: "none", node: `{"Node Type": "Seq Scan"}`, want: nil},
		{name: "filter", node: `{"Node Type": "Seq Scan", "Rows Removed by Filter": 7}`, want: test.Float(7)},
		{name: "recheck and join", node: `{"Node Type": "Nested Loop", "Rows Removed by Index Recheck": 2, "Rows Removed by Join Filter": 5}`, want: test.Float(7)},
		{name: "all three", node: `{"Node Type": "Nested Loop", "Rows Removed by Filter": 1, "Rows Removed by Index Recheck": 2, "Rows Removed by Join Filter": 3}`, want: test.Float(6)},
		{name: "zero is present", node: `{"Node Type": "Seq Scan", "Rows Removed by Filter": 0}`, want: test.Float(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := parser.Parse([]byte(`[{"Plan": `+tt.node+`}]`), model.Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.Root.RowsRemoved)
		})
	}
}

func TestParseUnknownFieldsIgnored(t *testing.T) {
	raw := `[{"Plan": {"Node Type": "Result", "Async Capable": false, "Some Future Key": {"x": [1]}}, "Query Identifier": 123}]`
	plan, err := parser.Parse([]byte(raw), model.Options{Format: model.FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, "Result", plan.Root.NodeType)
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		location string
	}{
		{name: "object at top level", raw: `{"Plan": {"Node Type": "Result"}}`, location: "$"},
		{name: "empty array", raw: `[]`, location: "$"},
		{name: "string entry", raw: `["plan"]`, location: "$[0]"},
		{name: "missing plan", raw: `[{"Planning Time": 1}]`, location: "$[0]"},
		{name: "plan not object", raw: `[{"Plan": [1]}]`, location: "$[0].Plan"},
		{name: "missing node type", raw: `[{"Plan": {"Total Cost": 1}}]`, location: "$[0].Plan"},
		{name: "bad child", raw: `[{"Plan": {"Node Type": "Hash Join", "Plans": [{"Node Type": "Hash"}, 3]}}]`, location: "$[0].Plan.Plans[1]"},
		{name: "nested missing type", raw: `[{"Plan": {"Node Type": "Limit", "Plans": [{"Plans": []}]}}]`, location: "$[0].Plan.Plans[0]"},
		{name: "truncated", raw: `[{"Plan": {"Node Type": "Lim`, location: "end of input"},
		{name: "syntax", raw: `[{"Plan": }]`, location: "offset"},
		{name: "empty input", raw: ``, location: "end of input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := parser.Parse([]byte(tt.raw), model.Options{Format: model.FormatJSON})
			require.Error(t, err)
			assert.Nil(t, plan)
			assert.ErrorIs(t, err, parser.ErrMalformed)

			var malformed *parser.MalformedError
			require.True(t, errors.As(err, &malformed))
			if tt.location == "offset" {
				assert.Regexp(t, `^offset \d+$`, malformed.Location)
				return
			}
			assert.Equal(t, tt.location, malformed.Location)
		})
	}
}

func TestParseUnstructuredFormats(t *testing.T) {
	raw := test.ReadSample(t, "plan.txt")
	for _, format := range []model.Format{model.FormatText, model.FormatXML, model.FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			plan, err := parser.Parse(raw, model.Options{Format: format})
			require.NoError(t, err)
			assert.Equal(t, format, plan.Format)
			assert.Equal(t, string(raw), plan.RawText)
			require.NotNil(t, plan.Root)
			assert.Equal(t, parser.PlaceholderNodeType, plan.Root.NodeType)
			assert.Empty(t, plan.Root.Children)
		})
	}
}

func TestParseWorkersSkipsNonObjects(t *testing.T) {
	raw := `[{"Plan": {"Node Type": "Gather", "Workers": [1, "x", {"Worker Number": 2, "Actual Rows": 10}]}}]`
	plan, err := parser.Parse([]byte(raw), model.Options{Format: model.FormatJSON})
	require.NoError(t, err)

	require.Len(t, plan.Root.Workers, 1)
	assert.EqualValues(t, 2, plan.Root.Workers[0].WorkerNumber)
	require.NotNil(t, plan.Root.Workers[0].ActualRows)
	assert.Equal(t, 10.0, *plan.Root.Workers[0].ActualRows)
}

func TestParseIOTimingVariants(t *testing.T) {
	tests := []struct {
		name  string
		keys  string
		read  float64
		write float64
		none  bool
	}{
		{name: "absent", none: true},
		{name: "combined", keys: `, "I/O Read Time": 1.5, "I/O Write Time": 0.5`, read: 1.5, write: 0.5},
		{name: "combined with temp", keys: `, "I/O Read Time": 1.5, "Temp I/O Read Time": 2, "Temp I/O Write Time": 3`, read: 3.5, write: 3},
		{name: "split", keys: `, "Shared I/O Read Time": 1, "Local I/O Read Time": 0.25, "Temp I/O Read Time": 0.5, "Shared I/O Write Time": 2, "Local I/O Write Time": 1`, read: 1.75, write: 3},
		{name: "local only", keys: `, "Local I/O Write Time": 4`, write: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `[{"Plan": {"Node Type": "Seq Scan"` + tt.keys + `}}]`
			plan, err := parser.Parse([]byte(raw), model.Options{Format: model.FormatJSON})
			require.NoError(t, err)
			if tt.none {
				assert.Nil(t, plan.Root.IOTiming)
				return
			}
			require.NotNil(t, plan.Root.IOTiming)
			assert.InDelta(t, tt.read, plan.Root.IOTiming.ReadTimeMs, 1e-9)
			assert.InDelta(t, tt.write, plan.Root.IOTiming.WriteTimeMs, 1e-9)
		})
	}
}

func TestParseNonFiniteNumbersAreAbsent(t *testing.T) {
	raw := `[{"Plan": {"Node Type": "Seq Scan", "Total Cost": "NaN", "Plan Rows": "Infinity", "Actual Total Time": "-Inf"}}]`
	plan, err := parser.Parse([]byte(raw), model.Options{Format: model.FormatJSON})
	require.NoError(t, err)

	assert.Zero(t, plan.Root.TotalCost)
	assert.Zero(t, plan.Root.PlanRows)
	assert.Nil(t, plan.Root.ActualTotalTime)
}

func TestParseUnknownFormat(t *testing.T) {
	plan, err := parser.Parse([]byte("a,b"), model.Options{Format: "csv"})
	require.ErrorIs(t, err, parser.ErrUnknownFormat)
	assert.NotErrorIs(t, err, parser.ErrMalformed)
	assert.Nil(t, plan)
}
