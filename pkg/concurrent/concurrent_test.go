package concurrent

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLooper_RunsInOrder(t *testing.T) {
	l := NewLooper(nil)
	defer l.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		assert.True(t, l.Post(func() { got = append(got, i) }))
	}
	assert.True(t, l.Drain())

	assert.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLooper_NeverRunsOnCallerStack(t *testing.T) {
	l := NewLooper(nil)
	defer l.Close()

	var ran atomic.Bool
	returned := make(chan struct{})
	l.Post(func() {
		// posted from inside the looper: must wait for this func to return
		l.Post(func() { ran.Store(true) })
		assert.False(t, ran.Load())
		close(returned)
	})
	<-returned
	l.Drain()
	assert.True(t, ran.Load())
}

func TestLooper_PostAfterClose(t *testing.T) {
	l := NewLooper(nil)

	var ran atomic.Int32
	l.Post(func() { ran.Add(1) })
	l.Close()

	assert.Equal(t, int32(1), ran.Load(), "queued work runs before close returns")
	assert.False(t, l.Post(func() { ran.Add(1) }))
	assert.False(t, l.Drain())
	assert.True(t, l.Closed())
	l.Close()
}

func TestLooper_RecoversPanics(t *testing.T) {
	var recovered atomic.Value
	l := NewLooper(func(r any) { recovered.Store(r) })
	defer l.Close()

	l.Post(func() { panic("bad callback") })
	var after atomic.Bool
	l.Post(func() { after.Store(true) })
	l.Drain()

	assert.Equal(t, "bad callback", recovered.Load())
	assert.True(t, after.Load())
}

func TestConcurrencyController_BoundsInFlight(t *testing.T) {
	c := NewConcurrencyController(2)

	var current, peak atomic.Int32
	var mu sync.Mutex
	for i := 0; i < 10; i++ {
		c.Go(context.Background(), func(ctx context.Context) {
			n := current.Add(1)
			mu.Lock()
			if n > peak.Load() {
				peak.Store(n)
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
		})
	}
	c.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 0, c.InFlight())
}

func TestConcurrencyController_SkipsWhenContextDone(t *testing.T) {
	c := NewConcurrencyController(1)

	started := make(chan struct{})
	block := make(chan struct{})
	c.Go(context.Background(), func(ctx context.Context) {
		close(started)
		<-block
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Bool
	c.Go(ctx, func(ctx context.Context) { ran.Store(true) })

	close(block)
	c.Wait()

	assert.False(t, ran.Load())
	assert.Equal(t, 0, c.InFlight())
}
