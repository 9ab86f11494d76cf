package txn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLock_SerializesSameKey(t *testing.T) {
	l := NewKeyedLock()
	ctx := context.Background()

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(ctx, "k")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			maxInside = max(maxInside, inside)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Equal(t, 0, l.Len())
}

func TestKeyedLock_IndependentKeys(t *testing.T) {
	l := NewKeyedLock()
	ctx := context.Background()

	a, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	b, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())
	a()
	b()
	assert.Equal(t, 0, l.Len())
}

func TestKeyedLock_ReleaseIsIdempotent(t *testing.T) {
	l := NewKeyedLock()
	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	release()
	release()

	again, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}

func TestKeyedLock_CancelDropsWaiter(t *testing.T) {
	l := NewKeyedLock()
	held, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)

	held()
	assert.Equal(t, 0, l.Len())
}
