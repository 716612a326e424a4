package workpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubmitReturnsValue(t *testing.T) {
	p := New(2)
	v, err := Submit(context.Background(), p, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestSubmitPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Submit(context.Background(), New(1), func(context.Context) (string, error) {
		return "", boom
	})
	require.ErrorIs(t, err, boom)
}

func TestSubmitRecoversPanic(t *testing.T) {
	_, err := Submit(context.Background(), New(1), func(context.Context) (int, error) {
		panic("bad input")
	})
	require.ErrorContains(t, err, "bad input")
}

func TestSubmitBoundsConcurrency(t *testing.T) {
	p := New(3)
	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Submit(context.Background(), p, func(context.Context) (struct{}, error) {
				n := atomic.AddInt32(&running, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return struct{}{}, nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	require.Equal(t, 3, p.Size())
}

func TestSubmitHonoursCancellationWhileFull(t *testing.T) {
	p := New(1)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = Submit(context.Background(), p, func(context.Context) (int, error) {
			close(started)
			<-release
			return 0, nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Submit(ctx, p, func(context.Context) (int, error) { return 1, nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestNewClampsSize(t *testing.T) {
	require.Equal(t, 1, New(0).Size())
}
