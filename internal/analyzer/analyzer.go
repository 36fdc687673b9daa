package analyzer

import (
	"github.com/mickamy/planscope/internal/model"
)

// Basis is the measure percentages are computed from.
type Basis int

const (
	// BasisCost uses the planner's estimated total cost.
	BasisCost Basis = iota
	// BasisActual uses measured total time.
	BasisActual
)

func (b Basis) String() string {
	if b == BasisActual {
		return "actual"
	}
	return "cost"
}

// Propagate fills PercentOfTotal, ExclusiveTimeMs and IsSlowest on every node
// and returns the grand total the percentages were computed against.
func Propagate(root *model.PlanNode) (float64, Basis) {
	if root == nil {
		return 0, BasisCost
	}
	basis := ChooseBasis(root)
	total := NodeTime(root, basis)

	annotatePercent(root, total, basis)
	annotateExclusive(root)
	markSlowest(root)

	return total, basis
}

// ChooseBasis picks actual timing only when every node in the tree was
// measured; a partially measured tree falls back to cost for all nodes.
func ChooseBasis(root *model.PlanNode) Basis {
	if root == nil {
		return BasisCost
	}
	basis := BasisActual
	root.Walk(func(n *model.PlanNode) {
		if !n.HasActualTiming() {
			basis = BasisCost
		}
	})
	return basis
}

// NodeTime returns the node's inclusive time under the given basis.
func NodeTime(node *model.PlanNode, basis Basis) float64 {
	if basis == BasisActual && node.ActualTotalTime != nil {
		return *node.ActualTotalTime
	}
	return node.TotalCost
}

// NodeStart returns the node's start offset under the given basis.
func NodeStart(node *model.PlanNode, basis Basis) float64 {
	if basis == BasisActual {
		if node.ActualStartupTime != nil {
			return *node.ActualStartupTime
		}
		return 0
	}
	return node.StartupCost
}

// Percent returns 100*part/total, or 0 when there is no positive total.
func Percent(part, total float64) float64 {
	if total <= 0 || part <= 0 {
		return 0
	}
	return 100 * part / total
}

func annotatePercent(node *model.PlanNode, total float64, basis Basis) {
	node.PercentOfTotal = Percent(NodeTime(node, basis), total)
	for _, child := range node.Children {
		annotatePercent(child, total, basis)
	}
}

func annotateExclusive(node *model.PlanNode) {
	var childTime float64
	for _, child := range node.Children {
		annotateExclusive(child)
		if child.ActualTotalTime != nil {
			childTime += *child.ActualTotalTime
		}
	}

	if node.ActualTotalTime == nil {
		node.ExclusiveTimeMs = 0
		return
	}
	node.ExclusiveTimeMs = *node.ActualTotalTime - childTime
	if node.ExclusiveTimeMs < 0 {
		node.ExclusiveTimeMs = 0
	}
}

func markSlowest(root *model.PlanNode) {
	var slowest *model.PlanNode
	for _, n := range Flatten(root) {
		n.IsSlowest = false
		if !n.HasActualTiming() {
			continue
		}
		if slowest == nil || n.ExclusiveTimeMs > slowest.ExclusiveTimeMs {
			slowest = n
		}
	}
	if slowest != nil {
		slowest.IsSlowest = true
	}
}

// Flatten lists the tree in pre-order.
func Flatten(root *model.PlanNode) []*model.PlanNode {
	var out []*model.PlanNode
	root.Walk(func(n *model.PlanNode) {
		out = append(out, n)
	})
	return out
}

// Slowest returns the node marked IsSlowest, if any.
func Slowest(root *model.PlanNode) *model.PlanNode {
	for _, n := range Flatten(root) {
		if n.IsSlowest {
			return n
		}
	}
	return nil
}
