package nestedset

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPost uint = 1

func strPtr(s string) *string { return &s }

func insertRoot(t *testing.T, m *Mutator, s *memStore, id string) Interval {
	t.Helper()
	res, err := m.InsertRoot(context.Background(), testPost)
	require.NoError(t, err)
	s.insert(testPost, id, nil, res.Plan.Node)
	return res.Plan.Node
}

func insertReply(t *testing.T, m *Mutator, s *memStore, id, parentID string) Interval {
	t.Helper()
	parent := s.get(testPost, parentID)
	res, err := m.InsertReply(context.Background(), testPost, parent.Interval)
	require.NoError(t, err)
	s.insert(testPost, id, strPtr(parentID), res.Plan.Node)
	return res.Plan.Node
}

func TestMutator_Scenario(t *testing.T) {
	s := newMemStore()
	m := NewMutator(s)
	ctx := context.Background()

	assert.Equal(t, Interval{Left: 1, Right: 2}, insertRoot(t, m, s, "A"))
	assert.Equal(t, Interval{Left: 3, Right: 4}, insertRoot(t, m, s, "B"))

	c := insertReply(t, m, s, "C", "A")
	assert.Equal(t, Interval{Left: 2, Right: 3}, c)
	assert.Equal(t, Interval{Left: 1, Right: 4}, s.get(testPost, "A").Interval)
	assert.Equal(t, Interval{Left: 5, Right: 6}, s.get(testPost, "B").Interval)
	assert.Empty(t, Check(s.snapshot(testPost)))

	res, err := m.Remove(ctx, testPost, c)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Removed)
	assert.Equal(t, Interval{Left: 1, Right: 2}, s.get(testPost, "A").Interval)
	assert.Equal(t, Interval{Left: 3, Right: 4}, s.get(testPost, "B").Interval)
	assert.Empty(t, Check(s.snapshot(testPost)))
}

func TestMutator_RootsAreOrdered(t *testing.T) {
	s := newMemStore()
	m := NewMutator(s)

	c1 := insertRoot(t, m, s, "C1")
	c2 := insertRoot(t, m, s, "C2")
	assert.Less(t, c1.Right, c2.Left)
}

func TestMutator_ReplyWidensEveryAncestor(t *testing.T) {
	s := newMemStore()
	m := NewMutator(s)

	insertRoot(t, m, s, "A")
	insertReply(t, m, s, "A1", "A")
	insertReply(t, m, s, "A11", "A1")
	insertRoot(t, m, s, "B")

	before := map[string]Interval{}
	for _, id := range []string{"A", "A1", "A11"} {
		before[id] = s.get(testPost, id).Interval
	}

	r := insertReply(t, m, s, "R", "A11")
	p := s.get(testPost, "A11").Interval
	assert.True(t, p.Left < r.Left && r.Left < r.Right && r.Right <= p.Right)

	for _, id := range []string{"A", "A1", "A11"} {
		assert.Equal(t, before[id].Right+2, s.get(testPost, id).Right, id)
		assert.Equal(t, before[id].Left, s.get(testPost, id).Left, id)
	}
	assert.Empty(t, Check(s.snapshot(testPost)))
}

func TestMutator_RemoveSubtreeCountsEveryNode(t *testing.T) {
	s := newMemStore()
	m := NewMutator(s)
	ctx := context.Background()

	insertRoot(t, m, s, "A")
	insertReply(t, m, s, "A1", "A")
	insertReply(t, m, s, "A11", "A1")
	insertReply(t, m, s, "A12", "A1")
	insertReply(t, m, s, "A2", "A")
	insertRoot(t, m, s, "B")

	target := s.get(testPost, "A1").Interval
	res, err := m.Remove(ctx, testPost, target)
	require.NoError(t, err)

	assert.Equal(t, int64(3), res.Removed)
	nodes := s.snapshot(testPost)
	assert.Len(t, nodes, 3)
	assert.Empty(t, Check(nodes))
	assert.Equal(t, Interval{Left: 1, Right: 4}, s.get(testPost, "A").Interval)
	assert.Equal(t, Interval{Left: 2, Right: 3}, s.get(testPost, "A2").Interval)
	assert.Equal(t, Interval{Left: 5, Right: 6}, s.get(testPost, "B").Interval)
}

func TestMutator_PostsAreIndependent(t *testing.T) {
	s := newMemStore()
	m := NewMutator(s)
	ctx := context.Background()

	res, err := m.InsertRoot(ctx, 1)
	require.NoError(t, err)
	s.insert(1, "p1", nil, res.Plan.Node)

	res, err = m.InsertRoot(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, Interval{Left: 1, Right: 2}, res.Plan.Node)
}

func TestMutator_StoreErrors(t *testing.T) {
	ctx := context.Background()

	for _, failOn := range []string{"max", "right", "left", "delete"} {
		t.Run(failOn, func(t *testing.T) {
			s := newMemStore()
			s.insert(testPost, "A", nil, Interval{Left: 1, Right: 2})
			s.failOn = failOn
			m := NewMutator(s)

			var err error
			switch failOn {
			case "max":
				_, err = m.InsertRoot(ctx, testPost)
			case "delete":
				_, err = m.Remove(ctx, testPost, Interval{Left: 1, Right: 2})
			default:
				_, err = m.InsertReply(ctx, testPost, Interval{Left: 1, Right: 2})
			}
			assert.ErrorIs(t, err, errInjected)
		})
	}

	_, err := NewMutator(newMemStore()).InsertReply(ctx, testPost, Interval{Left: 4, Right: 4})
	assert.Error(t, err)
	_, err = NewMutator(newMemStore()).Remove(ctx, testPost, Interval{Left: 5, Right: 1})
	assert.Error(t, err)
}

// TestMutator_RandomSequences drives long random create/delete sequences and
// checks the forest after every step.
func TestMutator_RandomSequences(t *testing.T) {
	ctx := context.Background()

	for seed := int64(1); seed <= 5; seed++ {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			s := newMemStore()
			m := NewMutator(s)
			next := 0

			for step := 0; step < 400; step++ {
				nodes := s.snapshot(testPost)
				roll := rng.Intn(10)

				switch {
				case len(nodes) == 0 || roll < 2:
					next++
					insertRoot(t, m, s, fmt.Sprintf("n%d", next))
				case roll < 8:
					parent := nodes[rng.Intn(len(nodes))]
					next++
					insertReply(t, m, s, fmt.Sprintf("n%d", next), parent.ID)
				default:
					target := nodes[rng.Intn(len(nodes))]
					inside := 0
					for _, n := range nodes {
						if target.Left <= n.Left && n.Right <= target.Right {
							inside++
						}
					}
					res, err := m.Remove(ctx, testPost, target.Interval)
					require.NoError(t, err)
					require.Equal(t, int64(inside), res.Removed)
				}

				after := s.snapshot(testPost)
				require.Empty(t, Check(after), "step %d", step)

				// Bounds stay packed: n nodes use exactly the slots 1..2n.
				used := make(map[int]bool, len(after)*2)
				for _, n := range after {
					used[n.Left] = true
					used[n.Right] = true
				}
				for slot := 1; slot <= 2*len(after); slot++ {
					require.True(t, used[slot], "step %d: slot %d unused", step, slot)
				}
			}
		})
	}
}
