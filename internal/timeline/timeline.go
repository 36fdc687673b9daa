// Package timeline lays plan nodes out as horizontal bars so that bars that
// share a row never overlap.
package timeline

import (
	"github.com/mickamy/planscope/internal/analyzer"
	"github.com/mickamy/planscope/internal/model"
)

// MinWidthPercent keeps near-instant nodes visible.
const MinWidthPercent = 1.0

// Span is a node's extent as percentages of the grand total.
type Span struct {
	NodeID string
	Start  float64
	End    float64
}

// Layout collects one span per node in pre-order and packs them into rows.
// The tree's timing basis and grand total come from analyzer.Propagate.
func Layout(root *model.PlanNode, total float64, basis analyzer.Basis) []model.TimelineInterval {
	return Pack(Spans(root, total, basis))
}

// Spans lists node extents in pre-order.
func Spans(root *model.PlanNode, total float64, basis analyzer.Basis) []Span {
	var out []Span
	root.Walk(func(n *model.PlanNode) {
		out = append(out, Span{
			NodeID: n.ID,
			Start:  analyzer.Percent(analyzer.NodeStart(n, basis), total),
			End:    analyzer.Percent(analyzer.NodeTime(n, basis), total),
		})
	})
	return out
}

// Pack assigns each span, in the given order, to the first row whose last
// bar ends at or before the span starts, opening a new row otherwise. The
// input order is kept so parents and children stay visually grouped.
func Pack(spans []Span) []model.TimelineInterval {
	out := make([]model.TimelineInterval, 0, len(spans))
	var rowEnds []float64
	for _, span := range spans {
		width := span.End - span.Start
		if width < MinWidthPercent {
			width = MinWidthPercent
		}
		end := span.Start + width

		row := -1
		for i, rowEnd := range rowEnds {
			if rowEnd <= span.Start {
				row = i
				break
			}
		}
		if row < 0 {
			row = len(rowEnds)
			rowEnds = append(rowEnds, end)
		} else {
			rowEnds[row] = end
		}

		out = append(out, model.TimelineInterval{
			NodeID:       span.NodeID,
			StartPercent: span.Start,
			WidthPercent: width,
			Row:          row,
		})
	}
	return out
}

// Rows returns the number of rows used by a layout.
func Rows(intervals []model.TimelineInterval) int {
	rows := 0
	for _, iv := range intervals {
		if iv.Row+1 > rows {
			rows = iv.Row + 1
		}
	}
	return rows
}
