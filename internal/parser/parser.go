package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/mickamy/planscope/internal/field"
	"github.com/mickamy/planscope/internal/model"
)

// PlaceholderNodeType is the node type of the root stand-in used for plans
// in formats that are not parsed into a tree.
const PlaceholderNodeType = "Unparsed Plan"

// Parse builds a plan tree from raw EXPLAIN output. Only JSON is parsed; for
// the other formats the text is kept verbatim under a placeholder root.
func Parse(raw []byte, opts model.Options) (*model.QueryPlanAnalysis, error) {
	format := opts.Format
	if format == "" {
		format = model.FormatJSON
	}
	if !format.Valid() {
		return nil, fmt.Errorf("%w %q", ErrUnknownFormat, format)
	}
	if !format.Structured() {
		return &model.QueryPlanAnalysis{
			Format:  format,
			Root:    Placeholder(),
			RawText: string(raw),
		}, nil
	}
	return ParseJSON(bytes.NewReader(raw))
}

// Placeholder returns the degenerate root used when no tree is built.
func Placeholder() *model.PlanNode {
	return &model.PlanNode{ID: uuid.NewString(), NodeType: PlaceholderNodeType}
}

// ParseJSON reads a PostgreSQL EXPLAIN (FORMAT JSON) document.
func ParseJSON(r io.Reader) (*model.QueryPlanAnalysis, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, &MalformedError{Location: decodeLocation(err), Err: fmt.Errorf("decode explain json: %w", err)}
	}

	entry, err := pickFirstEntry(payload)
	if err != nil {
		return nil, err
	}

	planVal, ok := entry["Plan"]
	if !ok {
		return nil, malformed("$[0]", "missing Plan root")
	}
	planMap, ok := planVal.(map[string]any)
	if !ok {
		return nil, malformed("$[0].Plan", "expected object, got %T", planVal)
	}

	root, err := parsePlanNode(planMap, "$[0].Plan", 0)
	if err != nil {
		return nil, err
	}

	return &model.QueryPlanAnalysis{
		Format:          model.FormatJSON,
		Root:            root,
		PlanningTimeMs:  field.FloatPtr(entry, "Planning Time"),
		ExecutionTimeMs: field.FloatPtr(entry, "Execution Time"),
		TriggerTimings:  parseTriggers(entry),
		JIT:             parseJIT(entry),
		Settings:        parseSettings(entry["Settings"]),
	}, nil
}

func decodeLocation(err error) string {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Sprintf("offset %d", syntaxErr.Offset)
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("offset %d", typeErr.Offset)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return "end of input"
	}
	return ""
}

func pickFirstEntry(payload any) (map[string]any, error) {
	list, ok := payload.([]any)
	if !ok {
		return nil, malformed("$", "expected array, got %s", describe(payload))
	}
	if len(list) == 0 {
		return nil, malformed("$", "empty payload")
	}
	obj, ok := list[0].(map[string]any)
	if !ok {
		return nil, malformed("$[0]", "expected object, got %s", describe(list[0]))
	}
	return obj, nil
}

func describe(val any) string {
	switch val.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", val)
	}
}

func parsePlanNode(data map[string]any, path string, depth int) (*model.PlanNode, error) {
	nodeType, ok := field.String(data, "Node Type")
	if !ok || strings.TrimSpace(nodeType) == "" {
		return nil, malformed(path, "missing Node Type")
	}

	parallelAware, _ := field.Bool(data, "Parallel Aware")
	output, _ := field.Strings(data, "Output")
	sortKey, _ := field.Strings(data, "Sort Key")
	groupKey, _ := field.Strings(data, "Group Key")

	node := &model.PlanNode{
		ID:                 uuid.NewString(),
		NodeType:           nodeType,
		ParentRelationship: field.StringOr(data, "Parent Relationship"),
		RelationName:       field.StringOr(data, "Relation Name"),
		Alias:              field.StringOr(data, "Alias"),
		Schema:             field.StringOr(data, "Schema"),
		IndexName:          field.StringOr(data, "Index Name"),
		CTEName:            field.StringOr(data, "CTE Name"),
		SubplanName:        field.StringOr(data, "Subplan Name"),
		JoinType:           field.StringOr(data, "Join Type"),
		Strategy:           field.StringOr(data, "Strategy"),
		ScanDirection:      field.StringOr(data, "Scan Direction"),
		ParallelAware:      parallelAware,
		Output:             output,

		StartupCost: field.FloatOr(data, "Startup Cost"),
		TotalCost:   field.FloatOr(data, "Total Cost"),
		PlanRows:    field.FloatOr(data, "Plan Rows"),
		PlanWidth:   field.FloatOr(data, "Plan Width"),

		ActualStartupTime: field.FloatPtr(data, "Actual Startup Time"),
		ActualTotalTime:   field.FloatPtr(data, "Actual Total Time"),
		ActualRows:        field.FloatPtr(data, "Actual Rows"),
		ActualLoops:       field.FloatPtr(data, "Actual Loops"),

		Filter:      field.StringOr(data, "Filter"),
		IndexCond:   field.StringOr(data, "Index Cond"),
		RecheckCond: field.StringOr(data, "Recheck Cond"),
		JoinFilter:  field.StringOr(data, "Join Filter"),
		HashCond:    field.StringOr(data, "Hash Cond"),
		MergeCond:   field.StringOr(data, "Merge Cond"),

		RowsRemovedByFilter:       field.FloatPtr(data, "Rows Removed by Filter"),
		RowsRemovedByIndexRecheck: field.FloatPtr(data, "Rows Removed by Index Recheck"),
		RowsRemovedByJoinFilter:   field.FloatPtr(data, "Rows Removed by Join Filter"),

		Buffers:  parseBuffers(data),
		IOTiming: parseIOTiming(data),
		WAL:      parseWAL(data),

		WorkersPlanned:  field.IntPtr(data, "Workers Planned"),
		WorkersLaunched: field.IntPtr(data, "Workers Launched"),

		SortKey:       sortKey,
		SortMethod:    field.StringOr(data, "Sort Method"),
		SortSpaceUsed: field.IntPtr(data, "Sort Space Used"),
		SortSpaceType: field.StringOr(data, "Sort Space Type"),

		HashBuckets:         field.IntPtr(data, "Hash Buckets"),
		OriginalHashBuckets: field.IntPtr(data, "Original Hash Buckets"),
		HashBatches:         field.IntPtr(data, "Hash Batches"),
		OriginalHashBatches: field.IntPtr(data, "Original Hash Batches"),
		PeakMemoryUsage:     field.IntPtr(data, "Peak Memory Usage"),

		ExactHeapBlocks: field.IntPtr(data, "Exact Heap Blocks"),
		LossyHeapBlocks: field.IntPtr(data, "Lossy Heap Blocks"),

		GroupKey: groupKey,
		Depth:    depth,
	}

	node.RowsRemoved = sumPresent(node.RowsRemovedByFilter, node.RowsRemovedByIndexRecheck, node.RowsRemovedByJoinFilter)

	node.Workers = parseWorkers(data)

	children, _ := field.Slice(data, "Plans")
	for i, childVal := range children {
		childPath := fmt.Sprintf("%s.Plans[%d]", path, i)
		childMap, ok := childVal.(map[string]any)
		if !ok {
			return nil, malformed(childPath, "expected object, got %s", describe(childVal))
		}

		child, err := parsePlanNode(childMap, childPath, depth+1)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}

	return node, nil
}

// sumPresent adds up the non-nil values, returning nil when all are nil.
func sumPresent(values ...*float64) *float64 {
	var (
		total float64
		seen  bool
	)
	for _, v := range values {
		if v == nil {
			continue
		}
		total += *v
		seen = true
	}
	if !seen {
		return nil
	}
	return &total
}

var bufferKeys = []string{
	"Shared Hit Blocks", "Shared Read Blocks", "Shared Dirtied Blocks", "Shared Written Blocks",
	"Local Hit Blocks", "Local Read Blocks", "Local Dirtied Blocks", "Local Written Blocks",
	"Temp Read Blocks", "Temp Written Blocks",
}

func parseBuffers(data map[string]any) *model.Buffers {
	if !anyPresent(data, bufferKeys...) {
		return nil
	}
	return &model.Buffers{
		SharedHit:     field.IntOr(data, "Shared Hit Blocks"),
		SharedRead:    field.IntOr(data, "Shared Read Blocks"),
		SharedDirtied: field.IntOr(data, "Shared Dirtied Blocks"),
		SharedWritten: field.IntOr(data, "Shared Written Blocks"),
		LocalHit:      field.IntOr(data, "Local Hit Blocks"),
		LocalRead:     field.IntOr(data, "Local Read Blocks"),
		LocalDirtied:  field.IntOr(data, "Local Dirtied Blocks"),
		LocalWritten:  field.IntOr(data, "Local Written Blocks"),
		TempRead:      field.IntOr(data, "Temp Read Blocks"),
		TempWritten:   field.IntOr(data, "Temp Written Blocks"),
	}
}

func parseIOTiming(data map[string]any) *model.IOTiming {
	// PostgreSQL 15 reports temp I/O apart from the combined counter; 16 also
	// splits that counter into shared and local.
	read := sumPresent(
		firstFloat(data, "I/O Read Time", "Shared I/O Read Time"),
		field.FloatPtr(data, "Local I/O Read Time"),
		field.FloatPtr(data, "Temp I/O Read Time"),
	)
	write := sumPresent(
		firstFloat(data, "I/O Write Time", "Shared I/O Write Time"),
		field.FloatPtr(data, "Local I/O Write Time"),
		field.FloatPtr(data, "Temp I/O Write Time"),
	)
	if read == nil && write == nil {
		return nil
	}
	timing := &model.IOTiming{}
	if read != nil {
		timing.ReadTimeMs = *read
	}
	if write != nil {
		timing.WriteTimeMs = *write
	}
	return timing
}

func parseWAL(data map[string]any) *model.WAL {
	if !anyPresent(data, "WAL Records", "WAL FPI", "WAL Bytes") {
		return nil
	}
	return &model.WAL{
		Records: field.IntOr(data, "WAL Records"),
		FPI:     field.IntOr(data, "WAL FPI"),
		Bytes:   field.IntOr(data, "WAL Bytes"),
	}
}

func parseWorkers(data map[string]any) []model.WorkerDetail {
	items, _ := field.Slice(data, "Workers")
	var workers []model.WorkerDetail
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		workers = append(workers, model.WorkerDetail{
			WorkerNumber:      field.IntOr(obj, "Worker Number"),
			ActualStartupTime: field.FloatPtr(obj, "Actual Startup Time"),
			ActualTotalTime:   field.FloatPtr(obj, "Actual Total Time"),
			ActualRows:        field.FloatPtr(obj, "Actual Rows"),
			ActualLoops:       field.FloatPtr(obj, "Actual Loops"),
			Buffers:           parseBuffers(obj),
		})
	}
	return workers
}

func parseTriggers(entry map[string]any) []model.TriggerTiming {
	items, _ := field.Slice(entry, "Triggers")
	var out []model.TriggerTiming
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := field.StringOr(obj, "Trigger Name")
		if name == "" {
			name = field.StringOr(obj, "Constraint Name")
		}
		out = append(out, model.TriggerTiming{
			Name:     name,
			Relation: field.StringOr(obj, "Relation"),
			TimeMs:   field.FloatOr(obj, "Time"),
			Calls:    field.IntOr(obj, "Calls"),
		})
	}
	return out
}

func parseJIT(entry map[string]any) *model.JITInfo {
	obj, ok := field.Object(entry, "JIT")
	if !ok {
		return nil
	}
	info := &model.JITInfo{Functions: field.IntOr(obj, "Functions")}
	if opts, ok := field.Object(obj, "Options"); ok {
		for k := range opts {
			if b, ok := field.Bool(opts, k); ok {
				if info.Options == nil {
					info.Options = map[string]bool{}
				}
				info.Options[k] = b
			}
		}
	}
	if timing, ok := field.Object(obj, "Timing"); ok {
		info.Timing = model.JITTiming{
			GenerationMs:   phaseTime(timing, "Generation"),
			InliningMs:     phaseTime(timing, "Inlining"),
			OptimizationMs: phaseTime(timing, "Optimization"),
			EmissionMs:     phaseTime(timing, "Emission"),
			TotalMs:        phaseTime(timing, "Total"),
		}
	}
	return info
}

// phaseTime reads a JIT phase that is either a number or, since PostgreSQL 17,
// an object with its own Total.
func phaseTime(timing map[string]any, key string) float64 {
	if nested, ok := field.Object(timing, key); ok {
		return field.FloatOr(nested, "Total")
	}
	return field.FloatOr(timing, key)
}

func parseSettings(val any) map[string]string {
	if val == nil {
		return nil
	}

	result := map[string]string{}
	switch typed := val.(type) {
	case []any:
		for _, entry := range typed {
			item, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			name := field.StringOr(item, "Name")
			if name == "" {
				name = field.StringOr(item, "name")
			}
			value := field.StringOr(item, "Setting")
			if value == "" {
				value = field.StringOr(item, "value")
			}
			if name != "" && value != "" {
				result[name] = value
			}
		}
	case map[string]any:
		for k, v := range typed {
			result[k] = fmt.Sprint(v)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func anyPresent(data map[string]any, keys ...string) bool {
	for _, key := range keys {
		if _, ok := data[key]; ok {
			return true
		}
	}
	return false
}

func firstFloat(data map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		if v := field.FloatPtr(data, key); v != nil {
			return v
		}
	}
	return nil
}
