package model

// Format identifies the EXPLAIN output format a plan was produced in.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
	FormatXML  Format = "xml"
	FormatYAML Format = "yaml"
)

// Valid reports whether f is one of the known formats. The empty format
// stands for JSON.
func (f Format) Valid() bool {
	switch f {
	case "", FormatJSON, FormatText, FormatXML, FormatYAML:
		return true
	default:
		return false
	}
}

// Structured reports whether plans in this format are parsed into a tree.
func (f Format) Structured() bool {
	return f == FormatJSON || f == ""
}

// Options mirrors the EXPLAIN options that produced a raw plan.
type Options struct {
	MeasureExecution bool   `json:"measureExecution"`
	Verbose          bool   `json:"verbose"`
	ShowCosts        bool   `json:"showCosts"`
	ShowBuffers      bool   `json:"showBuffers"`
	ShowTiming       bool   `json:"showTiming"`
	ShowWAL          bool   `json:"showWal"`
	Format           Format `json:"format"`
}

// QueryPlanAnalysis is the root of an analysed execution plan.
type QueryPlanAnalysis struct {
	Format          Format            `json:"format"`
	Root            *PlanNode         `json:"rootNode"`
	PlanningTimeMs  *float64          `json:"planningTimeMs,omitempty"`
	ExecutionTimeMs *float64          `json:"executionTimeMs,omitempty"`
	TriggerTimings  []TriggerTiming   `json:"triggerTimings,omitempty"`
	JIT             *JITInfo          `json:"jitInfo,omitempty"`
	TotalTimeMs     float64           `json:"totalTimeMs"`
	Settings        map[string]string `json:"settings,omitempty"`
	// RawText holds the input verbatim for formats that are not tree-parsed.
	RawText string `json:"rawText,omitempty"`
}

// TriggerTiming reports time spent in one trigger during execution.
type TriggerTiming struct {
	Name     string  `json:"name"`
	Relation string  `json:"relation,omitempty"`
	TimeMs   float64 `json:"timeMs"`
	Calls    int64   `json:"calls"`
}

// JITInfo summarises just-in-time compilation for the statement.
type JITInfo struct {
	Functions int64           `json:"functions"`
	Options   map[string]bool `json:"options,omitempty"`
	Timing    JITTiming       `json:"timing"`
}

// JITTiming breaks JIT time down by phase, in milliseconds.
type JITTiming struct {
	GenerationMs   float64 `json:"generationMs"`
	InliningMs     float64 `json:"inliningMs"`
	OptimizationMs float64 `json:"optimizationMs"`
	EmissionMs     float64 `json:"emissionMs"`
	TotalMs        float64 `json:"totalMs"`
}

// PlanNode captures one node in the execution plan tree.
type PlanNode struct {
	ID                 string   `json:"id"`
	NodeType           string   `json:"nodeType"`
	ParentRelationship string   `json:"parentRelationship,omitempty"`
	RelationName       string   `json:"relationName,omitempty"`
	Alias              string   `json:"alias,omitempty"`
	Schema             string   `json:"schema,omitempty"`
	IndexName          string   `json:"indexName,omitempty"`
	CTEName            string   `json:"cteName,omitempty"`
	SubplanName        string   `json:"subplanName,omitempty"`
	JoinType           string   `json:"joinType,omitempty"`
	Strategy           string   `json:"strategy,omitempty"`
	ScanDirection      string   `json:"scanDirection,omitempty"`
	ParallelAware      bool     `json:"parallelAware,omitempty"`
	Output             []string `json:"output,omitempty"`

	StartupCost float64 `json:"startupCost"`
	TotalCost   float64 `json:"totalCost"`
	PlanRows    float64 `json:"planRows"`
	PlanWidth   float64 `json:"planWidth"`

	ActualStartupTime *float64 `json:"actualStartupTime,omitempty"`
	ActualTotalTime   *float64 `json:"actualTotalTime,omitempty"`
	ActualRows        *float64 `json:"actualRows,omitempty"`
	ActualLoops       *float64 `json:"actualLoops,omitempty"`

	Filter      string `json:"filter,omitempty"`
	IndexCond   string `json:"indexCond,omitempty"`
	RecheckCond string `json:"recheckCond,omitempty"`
	JoinFilter  string `json:"joinFilter,omitempty"`
	HashCond    string `json:"hashCond,omitempty"`
	MergeCond   string `json:"mergeCond,omitempty"`

	RowsRemovedByFilter       *float64 `json:"rowsRemovedByFilter,omitempty"`
	RowsRemovedByIndexRecheck *float64 `json:"rowsRemovedByIndexRecheck,omitempty"`
	RowsRemovedByJoinFilter   *float64 `json:"rowsRemovedByJoinFilter,omitempty"`
	// RowsRemoved is the sum of whichever removal counters are present.
	RowsRemoved *float64 `json:"rowsRemoved,omitempty"`

	Buffers  *Buffers  `json:"buffers,omitempty"`
	IOTiming *IOTiming `json:"ioTiming,omitempty"`
	WAL      *WAL      `json:"wal,omitempty"`

	WorkersPlanned  *int64         `json:"workersPlanned,omitempty"`
	WorkersLaunched *int64         `json:"workersLaunched,omitempty"`
	Workers         []WorkerDetail `json:"workers,omitempty"`

	SortKey       []string `json:"sortKey,omitempty"`
	SortMethod    string   `json:"sortMethod,omitempty"`
	SortSpaceUsed *int64   `json:"sortSpaceUsed,omitempty"`
	SortSpaceType string   `json:"sortSpaceType,omitempty"`

	HashBuckets         *int64 `json:"hashBuckets,omitempty"`
	OriginalHashBuckets *int64 `json:"originalHashBuckets,omitempty"`
	HashBatches         *int64 `json:"hashBatches,omitempty"`
	OriginalHashBatches *int64 `json:"originalHashBatches,omitempty"`
	PeakMemoryUsage     *int64 `json:"peakMemoryUsage,omitempty"`

	ExactHeapBlocks *int64 `json:"exactHeapBlocks,omitempty"`
	LossyHeapBlocks *int64 `json:"lossyHeapBlocks,omitempty"`

	GroupKey []string `json:"groupKey,omitempty"`

	Children []*PlanNode `json:"children,omitempty"`

	// Computed by the analysis passes.
	Depth           int       `json:"depth"`
	PercentOfTotal  float64   `json:"percentOfTotal"`
	ExclusiveTimeMs float64   `json:"exclusiveTimeMs"`
	IsSlowest       bool      `json:"isSlowest"`
	Warnings        []Warning `json:"warnings,omitempty"`
}

// HasActualTiming reports whether the node carries measured timing.
func (n *PlanNode) HasActualTiming() bool {
	return n != nil && n.ActualTotalTime != nil
}

// Walk visits the node and its descendants in pre-order.
func (n *PlanNode) Walk(fn func(*PlanNode)) {
	if n == nil {
		return
	}
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *PlanNode) Count() int {
	count := 0
	n.Walk(func(*PlanNode) { count++ })
	return count
}

// Buffers holds buffer usage statistics for a node.
type Buffers struct {
	SharedHit     int64 `json:"sharedHit"`
	SharedRead    int64 `json:"sharedRead"`
	SharedDirtied int64 `json:"sharedDirtied"`
	SharedWritten int64 `json:"sharedWritten"`
	LocalHit      int64 `json:"localHit"`
	LocalRead     int64 `json:"localRead"`
	LocalDirtied  int64 `json:"localDirtied"`
	LocalWritten  int64 `json:"localWritten"`
	TempRead      int64 `json:"tempRead"`
	TempWritten   int64 `json:"tempWritten"`
}

// Total returns the sum of all buffer counters.
func (b Buffers) Total() int64 {
	return b.SharedHit + b.SharedRead + b.SharedDirtied + b.SharedWritten +
		b.LocalHit + b.LocalRead + b.LocalDirtied + b.LocalWritten + b.TempRead + b.TempWritten
}

// IOTiming holds time spent in block I/O, in milliseconds.
type IOTiming struct {
	ReadTimeMs  float64 `json:"readTimeMs"`
	WriteTimeMs float64 `json:"writeTimeMs"`
}

// WAL holds write-ahead log usage for a node.
type WAL struct {
	Records int64 `json:"records"`
	FPI     int64 `json:"fpi"`
	Bytes   int64 `json:"bytes"`
}

// WorkerDetail is the per-worker breakdown of a parallel node.
type WorkerDetail struct {
	WorkerNumber      int64    `json:"workerNumber"`
	ActualStartupTime *float64 `json:"actualStartupTime,omitempty"`
	ActualTotalTime   *float64 `json:"actualTotalTime,omitempty"`
	ActualRows        *float64 `json:"actualRows,omitempty"`
	ActualLoops       *float64 `json:"actualLoops,omitempty"`
	Buffers           *Buffers `json:"buffers,omitempty"`
}

// TimelineInterval places one node on the timeline view.
type TimelineInterval struct {
	NodeID       string  `json:"nodeId"`
	StartPercent float64 `json:"startPercent"`
	WidthPercent float64 `json:"widthPercent"`
	Row          int     `json:"row"`
}
