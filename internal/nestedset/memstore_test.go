package nestedset

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// memStore is an in-memory Store used to exercise the mutator without SQL.
type memStore struct {
	mu     sync.Mutex
	posts  map[uint][]*Node
	failOn string
}

var errInjected = errors.New("injected store failure")

func newMemStore() *memStore {
	return &memStore{posts: make(map[uint][]*Node)}
}

func (s *memStore) FindMaxRight(_ context.Context, postID uint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == "max" {
		return 0, errInjected
	}
	maxRight := 0
	for _, n := range s.posts[postID] {
		if n.Right > maxRight {
			maxRight = n.Right
		}
	}
	return maxRight, nil
}

func (s *memStore) ShiftRight(_ context.Context, postID uint, threshold, delta int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == "right" {
		return 0, errInjected
	}
	var n int64
	for _, node := range s.posts[postID] {
		if node.Right >= threshold {
			node.Right += delta
			n++
		}
	}
	return n, nil
}

func (s *memStore) ShiftLeft(_ context.Context, postID uint, threshold, delta int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == "left" {
		return 0, errInjected
	}
	var n int64
	for _, node := range s.posts[postID] {
		if node.Left > threshold {
			node.Left += delta
			n++
		}
	}
	return n, nil
}

func (s *memStore) DeleteRange(_ context.Context, postID uint, left, right int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == "delete" {
		return 0, errInjected
	}
	kept := s.posts[postID][:0]
	var removed int64
	for _, node := range s.posts[postID] {
		if left <= node.Left && node.Right <= right {
			removed++
			continue
		}
		kept = append(kept, node)
	}
	s.posts[postID] = kept
	return removed, nil
}

func (s *memStore) insert(postID uint, id string, parentID *string, iv Interval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[postID] = append(s.posts[postID], &Node{ID: id, ParentID: parentID, Interval: iv})
}

func (s *memStore) get(postID uint, id string) Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.posts[postID] {
		if n.ID == id {
			return *n
		}
	}
	return Node{}
}

func (s *memStore) snapshot(postID uint) []Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Node, 0, len(s.posts[postID]))
	for _, n := range s.posts[postID] {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Left < out[j].Left })
	return out
}
