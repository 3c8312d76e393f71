package nestedset

import "fmt"

// Op identifies the structural mutation a Plan performs.
type Op string

const (
	OpInsertRoot  Op = "insert_root"
	OpInsertReply Op = "insert_reply"
	OpDelete      Op = "delete"
)

// gap is the number of slots a leaf node occupies.
const gap = 2

// Shift adds Delta to every bound past Threshold. For right bounds "past"
// means >= Threshold, for left bounds it means > Threshold.
type Shift struct {
	Threshold int
	Delta     int
}

// Plan is the complete renumbering for one insert or delete. Node is the new
// node's interval for inserts and the removed range for deletes. A nil shift
// means that column is left untouched.
type Plan struct {
	Op     Op
	Node   Interval
	Rights *Shift
	Lefts  *Shift
}

// PlanRootInsert appends a root-level node after every existing node.
// maxRight is the greatest right bound in the post, 0 when it is empty.
func PlanRootInsert(maxRight int) Plan {
	return Plan{
		Op:   OpInsertRoot,
		Node: Interval{Left: maxRight + 1, Right: maxRight + gap},
	}
}

// PlanReplyInsert makes room for a new last child of parent. The parent's
// right bound becomes the new node's left bound, and every bound at or after
// it moves two slots right, which widens the parent and all of its ancestors.
func PlanReplyInsert(parent Interval) Plan {
	pivot := parent.Right
	return Plan{
		Op:     OpInsertReply,
		Node:   Interval{Left: pivot, Right: pivot + 1},
		Rights: &Shift{Threshold: pivot, Delta: gap},
		Lefts:  &Shift{Threshold: pivot, Delta: gap},
	}
}

// PlanDelete removes target and its subtree and closes the gap it leaves.
func PlanDelete(target Interval) Plan {
	width := target.Width()
	return Plan{
		Op:     OpDelete,
		Node:   target,
		Rights: &Shift{Threshold: target.Right, Delta: -width},
		Lefts:  &Shift{Threshold: target.Right, Delta: -width},
	}
}

// Removes reports whether the plan deletes the nodes inside Node.
func (p Plan) Removes() bool {
	return p.Op == OpDelete
}

// Move returns where a surviving node with bounds i ends up after the plan.
func (p Plan) Move(i Interval) Interval {
	if p.Rights != nil && i.Right >= p.Rights.Threshold {
		i.Right += p.Rights.Delta
	}
	if p.Lefts != nil && i.Left > p.Lefts.Threshold {
		i.Left += p.Lefts.Delta
	}
	return i
}

func (p Plan) String() string {
	s := fmt.Sprintf("%s node=%s", p.Op, p.Node)
	if p.Rights != nil {
		s += fmt.Sprintf(" right>=%d%+d", p.Rights.Threshold, p.Rights.Delta)
	}
	if p.Lefts != nil {
		s += fmt.Sprintf(" left>%d%+d", p.Lefts.Threshold, p.Lefts.Delta)
	}
	return s
}
