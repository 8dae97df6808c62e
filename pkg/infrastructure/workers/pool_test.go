package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{Namespace: "permanent", Filename: fmt.Sprintf("file-%d", i)}
	}
	return items
}

func TestParallelCheckAllPass(t *testing.T) {
	pool := NewPool(4)

	var checked int32
	failures := pool.ParallelCheck(context.Background(), makeItems(50), func(ctx context.Context, ns, filename string) error {
		atomic.AddInt32(&checked, 1)
		return nil
	})

	assert.Empty(t, failures)
	assert.Equal(t, int32(50), atomic.LoadInt32(&checked))
}

func TestParallelCheckCollectsFailuresInOrder(t *testing.T) {
	pool := NewPool(4)
	bad := errors.New("mismatch")

	failures := pool.ParallelCheck(context.Background(), makeItems(10), func(ctx context.Context, ns, filename string) error {
		if filename == "file-2" || filename == "file-7" {
			return bad
		}
		return nil
	})

	require.Len(t, failures, 2)
	assert.Equal(t, "file-2", failures[0].Filename)
	assert.Equal(t, "file-7", failures[1].Filename)
	assert.ErrorIs(t, failures[0].Err, bad)
}

func TestParallelCheckBoundsConcurrency(t *testing.T) {
	pool := NewPool(3)

	var mu sync.Mutex
	var active, peak int

	pool.ParallelCheck(context.Background(), makeItems(30), func(ctx context.Context, ns, filename string) error {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()

		mu.Lock()
		active--
		mu.Unlock()
		return nil
	})

	assert.LessOrEqual(t, peak, 3)
	assert.Greater(t, peak, 0)
}

func TestParallelCheckCancelledContext(t *testing.T) {
	pool := NewPool(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	failures := pool.ParallelCheck(ctx, makeItems(5), func(ctx context.Context, ns, filename string) error {
		return nil
	})

	require.Len(t, failures, 5)
	for _, f := range failures {
		assert.ErrorIs(t, f.Err, context.Canceled)
	}
}

func TestNewPoolDefaultsWorkerCount(t *testing.T) {
	assert.NotNil(t, NewPool(0))
	assert.NotNil(t, NewPool(-5))
}
