package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock_DefaultsToEpoch(t *testing.T) {
	c := NewFixedClock(time.Time{})
	assert.Equal(t, Epoch, c.Now())
}

func TestFixedClock_DoesNotMoveOnItsOwn(t *testing.T) {
	c := NewFixedClock(time.Time{})
	first := c.Now()
	time.Sleep(time.Millisecond)
	assert.Equal(t, first, c.Now())
}

func TestFixedClock_Advance(t *testing.T) {
	c := NewFixedClock(time.Time{})
	got := c.Advance(10 * time.Minute)
	assert.Equal(t, Epoch.Add(10*time.Minute), got)
	assert.Equal(t, got, c.Now())
}

func TestFixedClock_Set(t *testing.T) {
	c := NewFixedClock(time.Time{})
	target := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
	c.Set(target)
	assert.Equal(t, target, c.Now())
}

func TestFixedClock_ConcurrentAdvance(t *testing.T) {
	c := NewFixedClock(time.Time{})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, Epoch.Add(100*time.Second), c.Now())
}

func TestSeededRand_Reproducible(t *testing.T) {
	a, b := SeededRand(7), SeededRand(7)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.IntN(1000), b.IntN(1000))
	}
}
