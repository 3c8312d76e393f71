package nestedset

import (
	"fmt"
	"sort"
)

// Node is the structural view of one stored comment.
type Node struct {
	ID       string
	ParentID *string
	Interval
}

// Rule names reported in a Violation.
const (
	RuleBounds  = "bounds"
	RuleShared  = "shared_bound"
	RuleOverlap = "overlap"
	RuleParent  = "parent"
)

// Violation is one broken invariant found by Check.
type Violation struct {
	NodeID string `json:"node_id"`
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s (%s)", v.NodeID, v.Rule, v.Detail)
}

// Check verifies the forest formed by nodes of a single post:
// every range is ordered, no two nodes share a bound, ranges are disjoint or
// strictly nested, and each ParentID names the nearest enclosing node (nil
// exactly for nodes nothing encloses). An empty result means the forest is
// consistent.
func Check(nodes []Node) []Violation {
	var out []Violation

	bounds := make(map[int]string, len(nodes)*2)
	claim := func(n Node, v int) {
		if other, ok := bounds[v]; ok {
			out = append(out, Violation{NodeID: n.ID, Rule: RuleShared,
				Detail: fmt.Sprintf("bound %d also used by %s", v, other)})
			return
		}
		bounds[v] = n.ID
	}

	sorted := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if !n.Valid() {
			out = append(out, Violation{NodeID: n.ID, Rule: RuleBounds,
				Detail: fmt.Sprintf("left %d is not below right %d", n.Left, n.Right)})
			continue
		}
		claim(n, n.Left)
		claim(n, n.Right)
		sorted = append(sorted, n)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Left < sorted[j].Left })

	var open []Node
	for _, n := range sorted {
		for len(open) > 0 && open[len(open)-1].Right < n.Left {
			open = open[:len(open)-1]
		}

		var enclosing *Node
		if len(open) > 0 {
			top := open[len(open)-1]
			if n.Right >= top.Right {
				out = append(out, Violation{NodeID: n.ID, Rule: RuleOverlap,
					Detail: fmt.Sprintf("%s partially overlaps %s %s", n.Interval, top.ID, top.Interval)})
				continue
			}
			enclosing = &top
		}

		switch {
		case enclosing == nil && n.ParentID != nil:
			out = append(out, Violation{NodeID: n.ID, Rule: RuleParent,
				Detail: fmt.Sprintf("has parent %s but no enclosing node", *n.ParentID)})
		case enclosing != nil && n.ParentID == nil:
			out = append(out, Violation{NodeID: n.ID, Rule: RuleParent,
				Detail: fmt.Sprintf("root node enclosed by %s", enclosing.ID)})
		case enclosing != nil && *n.ParentID != enclosing.ID:
			out = append(out, Violation{NodeID: n.ID, Rule: RuleParent,
				Detail: fmt.Sprintf("parent %s is not the nearest enclosing node %s", *n.ParentID, enclosing.ID)})
		}

		open = append(open, n)
	}

	return out
}

// Depths returns the nesting depth of each interval relative to the
// shallowest one. intervals must be ordered by Left and form a valid forest.
func Depths(intervals []Interval) []int {
	depths := make([]int, len(intervals))
	var open []int
	for i, iv := range intervals {
		for len(open) > 0 && open[len(open)-1] < iv.Left {
			open = open[:len(open)-1]
		}
		depths[i] = len(open)
		open = append(open, iv.Right)
	}
	return depths
}
