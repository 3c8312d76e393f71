package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chatapp/internal/observability"
)

const localBackend = "local"

type slot struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process keyed lock. It only serializes callers inside one
// process; multi-instance deployments use Redis.
type Local struct {
	mu      sync.Mutex
	slots   map[string]*slot
	timeout time.Duration
}

// NewLocal returns a Local lock whose Acquire gives up after timeout.
func NewLocal(timeout time.Duration) *Local {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Local{
		slots:   make(map[string]*slot),
		timeout: timeout,
	}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	start := time.Now()
	s := l.ref(key)

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
	case <-timer.C:
		l.unref(key, s)
		observability.LockTimeouts.WithLabelValues(localBackend).Inc()
		return nil, fmt.Errorf("%w: %s", ErrTimeout, key)
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ctx.Err()
	}
	observability.LockWait.WithLabelValues(localBackend).Observe(time.Since(start).Seconds())

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(key, s)
		})
	}, nil
}

// held reports the number of keys with an owner or waiter.
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func (l *Local) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
