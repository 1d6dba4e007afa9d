package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitConcurrency_SharedAcrossHandlers(t *testing.T) {
	var running, peak atomic.Int32
	work := func(ctx context.Context, _ *Event) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return nil
	}

	limit := LimitConcurrency(2)
	handlers := []Handler{limit(work), limit(work), limit(work)}

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			assert.NoError(t, h(context.Background(), &Event{}))
		}(handlers[i%len(handlers)])
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Positive(t, peak.Load())
}

func TestLimitConcurrency_CancelledWhileWaiting(t *testing.T) {
	block := make(chan struct{})
	limit := LimitConcurrency(1)
	busy := limit(func(context.Context, *Event) error {
		<-block
		return nil
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = busy(context.Background(), &Event{})
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := limit(func(context.Context, *Event) error {
		called = true
		return nil
	})(ctx, &Event{})

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)

	close(block)
	<-done
}
