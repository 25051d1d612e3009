package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRunsInOrder(t *testing.T) {
	loop := NewLoop(16)
	loop.Start()
	defer loop.Stop()

	var mu sync.Mutex
	var got []int
	for i := range 10 {
		require.True(t, loop.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}

	require.NoError(t, loop.Call(context.Background(), func() {}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestCallWaitsForResult(t *testing.T) {
	loop := NewLoop(1)
	loop.Start()
	defer loop.Stop()

	result := 0
	err := loop.Call(context.Background(), func() { result = 42 })

	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestCallHonoursContext(t *testing.T) {
	loop := NewLoop(1)
	loop.Start()
	defer loop.Stop()

	release := make(chan struct{})
	loop.Post(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := loop.Call(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPostAfterStop(t *testing.T) {
	loop := NewLoop(1)
	loop.Start()
	loop.Stop()
	loop.Stop()

	assert.False(t, loop.Post(func() {}))
	assert.ErrorIs(t, loop.Call(context.Background(), func() {}), ErrStopped)
}

func TestStopWithoutStart(t *testing.T) {
	loop := NewLoop(1)
	loop.Stop()
	assert.False(t, loop.Post(func() {}))
}
