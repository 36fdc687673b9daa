// Package planscope analyses PostgreSQL execution plans.
//
// Given the raw output of EXPLAIN and the options that produced it, Analyze
// builds an annotated plan tree: per-node share of total time, exclusive
// time, the slowest node, and heuristic warnings. Timeline lays the nodes out
// as non-overlapping bars for display.
//
//	analysis, err := planscope.Analyze(raw, planscope.Options{MeasureExecution: true, Format: planscope.FormatJSON})
//	if errors.Is(err, planscope.ErrMalformed) { ... }
//	for _, iv := range planscope.Timeline(analysis) { ... }
//
// Analysis is a pure function of its input; analyzers hold no mutable state
// and may be shared between goroutines.
package planscope

import (
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/mickamy/planscope/internal/analyzer"
	"github.com/mickamy/planscope/internal/config"
	"github.com/mickamy/planscope/internal/insight"
	"github.com/mickamy/planscope/internal/model"
	"github.com/mickamy/planscope/internal/parser"
	"github.com/mickamy/planscope/internal/timeline"
)

type (
	QueryPlanAnalysis = model.QueryPlanAnalysis
	PlanNode          = model.PlanNode
	Options           = model.Options
	Format            = model.Format
	Warning           = model.Warning
	WarningKind       = model.WarningKind
	Severity          = model.Severity
	TimelineInterval  = model.TimelineInterval
	Config            = config.Config
	MalformedError    = parser.MalformedError
)

const (
	FormatJSON = model.FormatJSON
	FormatText = model.FormatText
	FormatXML  = model.FormatXML
	FormatYAML = model.FormatYAML
)

var (
	// ErrMalformed is returned when JSON input is not a valid EXPLAIN document.
	ErrMalformed = parser.ErrMalformed
	// ErrUnknownFormat is returned when Options.Format is not a known format.
	ErrUnknownFormat = parser.ErrUnknownFormat
)

// Analyzer runs the analysis pipeline with a fixed configuration.
type Analyzer struct {
	cfg    config.Config
	logger *zap.Logger
}

// New creates an Analyzer. Without options it uses the default thresholds
// and discards log output.
func New(opts ...Option) *Analyzer {
	o := resolvedOptions{
		cfg:    config.Default(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Analyzer{cfg: o.cfg, logger: o.logger}
}

// Analyze analyses raw EXPLAIN output with the default configuration.
func Analyze(raw string, opts Options) (*QueryPlanAnalysis, error) {
	return New().Analyze(raw, opts)
}

// Analyze parses raw, computes metrics and attaches warnings. Plans in
// formats other than JSON are returned with a placeholder root and their
// text preserved in RawText.
func (a *Analyzer) Analyze(raw string, opts Options) (*QueryPlanAnalysis, error) {
	analysis, err := parser.Parse([]byte(raw), opts)
	if err != nil {
		a.logger.Debug("explain plan rejected", zap.Error(err))
		return nil, err
	}
	if !analysis.Format.Structured() {
		a.logger.Debug("explain plan kept as text", zap.String("format", string(analysis.Format)), zap.Int("bytes", len(raw)))
		return analysis, nil
	}

	total, basis := analyzer.Propagate(analysis.Root)
	insight.Detect(analysis.Root, a.cfg.Insights)
	analysis.TotalTimeMs = totalTime(analysis, total, basis)

	if opts.MeasureExecution && basis != analyzer.BasisActual {
		a.logger.Debug("plan lacks actual timing on some nodes; percentages use cost estimates")
	}
	a.logger.Debug("explain plan analysed",
		zap.Int("nodes", analysis.Root.Count()),
		zap.Int("warnings", countWarnings(analysis.Root)),
		zap.String("basis", basis.String()),
		zap.Float64("total", total),
	)
	return analysis, nil
}

// Timeline lays out the analysed tree using the analyzer's logger.
func (a *Analyzer) Timeline(analysis *QueryPlanAnalysis) []TimelineInterval {
	out := Timeline(analysis)
	a.logger.Debug("timeline laid out", zap.Int("intervals", len(out)), zap.Int("rows", timeline.Rows(out)))
	return out
}

// Timeline computes the row layout for an analysis. It returns nil for
// plans that were not parsed into a tree.
func Timeline(analysis *QueryPlanAnalysis) []TimelineInterval {
	if analysis == nil || analysis.Root == nil || !analysis.Format.Structured() {
		return nil
	}
	basis := analyzer.ChooseBasis(analysis.Root)
	total := analyzer.NodeTime(analysis.Root, basis)
	return timeline.Layout(analysis.Root, total, basis)
}

// Encode writes the analysis as JSON.
func Encode(w io.Writer, analysis *QueryPlanAnalysis) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(analysis); err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	return nil
}

// Decode reads an analysis previously written by Encode.
func Decode(r io.Reader) (*QueryPlanAnalysis, error) {
	var analysis QueryPlanAnalysis
	if err := json.NewDecoder(r).Decode(&analysis); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return &analysis, nil
}

// totalTime reports planning plus execution time when the server provided
// them, and the measured root time otherwise.
func totalTime(analysis *QueryPlanAnalysis, total float64, basis analyzer.Basis) float64 {
	if analysis.PlanningTimeMs != nil || analysis.ExecutionTimeMs != nil {
		var sum float64
		if analysis.PlanningTimeMs != nil {
			sum += *analysis.PlanningTimeMs
		}
		if analysis.ExecutionTimeMs != nil {
			sum += *analysis.ExecutionTimeMs
		}
		return sum
	}
	if basis == analyzer.BasisActual {
		return total
	}
	return 0
}

func countWarnings(root *PlanNode) int {
	n := 0
	root.Walk(func(node *PlanNode) { n += len(node.Warnings) })
	return n
}
