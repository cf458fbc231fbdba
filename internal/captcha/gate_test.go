package captcha

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_OpenByDefault(t *testing.T) {
	t.Parallel()

	g := NewGate()
	assert.True(t, g.IsOpen())
	require.NoError(t, g.Wait(context.Background()))
}

func TestGate_ClosedParksWaiters(t *testing.T) {
	t.Parallel()

	g := NewGate()
	g.Close()
	require.False(t, g.IsOpen())

	var passed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Wait(context.Background()) == nil {
				passed.Add(1)
			}
		}()
	}

	// No waiter may pass while the gate is closed.
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, passed.Load())

	g.Open()
	wg.Wait()
	assert.Equal(t, int64(5), passed.Load())
}

func TestGate_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	g := NewGate()
	g.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := g.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGate_ReentrantCloseOpen(t *testing.T) {
	t.Parallel()

	g := NewGate()
	g.Close()
	g.Close()
	g.Open()
	g.Open()
	assert.True(t, g.IsOpen())
	require.NoError(t, g.Wait(context.Background()))
}
