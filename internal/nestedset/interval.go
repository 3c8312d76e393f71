// Package nestedset maintains per-post comment forests encoded as nested
// intervals. Every node owns a closed range [Left, Right]; a node descends
// from another exactly when its range lies inside the other's. Inserts and
// deletes renumber the bounds of the surrounding nodes so that ranges stay
// disjoint or strictly nested.
package nestedset

import "fmt"

// Interval is a node's closed range of slots.
type Interval struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// Valid reports whether the bounds are ordered.
func (i Interval) Valid() bool {
	return i.Left < i.Right
}

// Width is the number of slots the node and its descendants occupy.
func (i Interval) Width() int {
	return i.Right - i.Left + 1
}

// Encloses reports whether o describes a descendant of i.
func (i Interval) Encloses(o Interval) bool {
	return i.Left < o.Left && o.Right <= i.Right
}

// Disjoint reports whether the two ranges share no slot.
func (i Interval) Disjoint(o Interval) bool {
	return i.Right < o.Left || o.Right < i.Left
}

func (i Interval) String() string {
	return fmt.Sprintf("[%d,%d]", i.Left, i.Right)
}
