package lock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_SerializesSameKey(t *testing.T) {
	l := NewLocal(time.Second)
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg conc.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Go(func() {
			release, err := l.Acquire(ctx, PostKey(1))
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Zero(t, l.held(), "slots are dropped once nobody holds or waits")
}

func TestLocal_Timeout(t *testing.T) {
	l := NewLocal(20 * time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx, PostKey(1))
	require.NoError(t, err)

	_, err = l.Acquire(ctx, PostKey(1))
	assert.True(t, errors.Is(err, ErrTimeout))

	other, err := l.Acquire(ctx, PostKey(2))
	require.NoError(t, err, "different keys do not contend")
	other()

	release()
	release()

	again, err := l.Acquire(ctx, PostKey(1))
	require.NoError(t, err)
	again()
	assert.Zero(t, l.held())
}

func TestLocal_ContextCancel(t *testing.T) {
	l := NewLocal(time.Minute)

	release, err := l.Acquire(context.Background(), LikeKey("c1"))
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, LikeKey("c1"))
	assert.ErrorIs(t, err, context.Canceled)
}
