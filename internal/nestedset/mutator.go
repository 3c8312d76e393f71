package nestedset

import (
	"context"
	"fmt"
)

// Store is the range-update surface the mutator needs. Implementations do
// not check invariants; every call is scoped to one post.
type Store interface {
	FindMaxRight(ctx context.Context, postID uint) (int, error)
	ShiftRight(ctx context.Context, postID uint, threshold, delta int) (int64, error)
	ShiftLeft(ctx context.Context, postID uint, threshold, delta int) (int64, error)
	DeleteRange(ctx context.Context, postID uint, left, right int) (int64, error)
}

// Result reports what applying a plan changed.
type Result struct {
	Plan    Plan
	Shifted int64
	Removed int64
}

// Mutator applies plans to a Store. Callers must hold the post's structural
// lock and run every call of one mutation inside a single transaction; the
// mutator itself does no locking.
type Mutator struct {
	store Store
}

// NewMutator returns a Mutator bound to store.
func NewMutator(store Store) *Mutator {
	return &Mutator{store: store}
}

// InsertRoot computes the interval for a new root-level node of postID.
// Root inserts never move existing nodes.
func (m *Mutator) InsertRoot(ctx context.Context, postID uint) (Result, error) {
	maxRight, err := m.store.FindMaxRight(ctx, postID)
	if err != nil {
		return Result{}, fmt.Errorf("find max right: %w", err)
	}
	return Result{Plan: PlanRootInsert(maxRight)}, nil
}

// InsertReply opens a two-slot gap at the end of parent and returns the
// interval the new child must be stored with. parent must be the bounds read
// inside the current critical section.
func (m *Mutator) InsertReply(ctx context.Context, postID uint, parent Interval) (Result, error) {
	if !parent.Valid() {
		return Result{}, fmt.Errorf("invalid parent interval %s", parent)
	}
	plan := PlanReplyInsert(parent)
	shifted, err := m.shift(ctx, postID, plan)
	if err != nil {
		return Result{}, err
	}
	return Result{Plan: plan, Shifted: shifted}, nil
}

// Remove deletes target with its whole subtree and renumbers the remainder.
// Removed is the number of deleted nodes.
func (m *Mutator) Remove(ctx context.Context, postID uint, target Interval) (Result, error) {
	if !target.Valid() {
		return Result{}, fmt.Errorf("invalid target interval %s", target)
	}
	plan := PlanDelete(target)

	removed, err := m.store.DeleteRange(ctx, postID, target.Left, target.Right)
	if err != nil {
		return Result{}, fmt.Errorf("delete range %s: %w", target, err)
	}
	shifted, err := m.shift(ctx, postID, plan)
	if err != nil {
		return Result{}, err
	}
	return Result{Plan: plan, Shifted: shifted, Removed: removed}, nil
}

func (m *Mutator) shift(ctx context.Context, postID uint, plan Plan) (int64, error) {
	var total int64
	if s := plan.Rights; s != nil {
		n, err := m.store.ShiftRight(ctx, postID, s.Threshold, s.Delta)
		if err != nil {
			return 0, fmt.Errorf("shift right bounds: %w", err)
		}
		total += n
	}
	if s := plan.Lefts; s != nil {
		n, err := m.store.ShiftLeft(ctx, postID, s.Threshold, s.Delta)
		if err != nil {
			return 0, fmt.Errorf("shift left bounds: %w", err)
		}
		total += n
	}
	return total, nil
}
