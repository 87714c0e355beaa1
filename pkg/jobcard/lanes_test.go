package jobcard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testLogger struct{}

func (testLogger) Infof(format string, args ...interface{})  {}
func (testLogger) Warnf(format string, args ...interface{})  {}
func (testLogger) Errorf(format string, args ...interface{}) {}

func TestLanes(t *testing.T) {
	t.Run("runs one job per id at a time", func(t *testing.T) {
		l := newLanes(0, testLogger{})
		defer l.Close()

		var inflight, maxInflight atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = l.Do(context.Background(), "JC-1", func(ctx context.Context) {
					n := inflight.Add(1)
					if n > maxInflight.Load() {
						maxInflight.Store(n)
					}
					time.Sleep(2 * time.Millisecond)
					inflight.Add(-1)
				})
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), maxInflight.Load())
	})

	t.Run("different ids run concurrently", func(t *testing.T) {
		l := newLanes(0, testLogger{})
		defer l.Close()

		release := make(chan struct{})
		started := make(chan struct{}, 2)
		var wg sync.WaitGroup
		for _, id := range []string{"JC-1", "JC-2"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_ = l.Do(context.Background(), id, func(ctx context.Context) {
					started <- struct{}{}
					<-release
				})
			}(id)
		}
		for i := 0; i < 2; i++ {
			select {
			case <-started:
			case <-time.After(2 * time.Second):
				t.Fatal("lanes did not run concurrently")
			}
		}
		close(release)
		wg.Wait()
	})

	t.Run("cancelled before start is skipped", func(t *testing.T) {
		l := newLanes(0, testLogger{})
		defer l.Close()

		release := make(chan struct{})
		started := make(chan struct{})
		go func() {
			_ = l.Do(context.Background(), "JC-1", func(ctx context.Context) {
				close(started)
				<-release
			})
		}()
		<-started

		ctx, cancel := context.WithCancel(context.Background())
		var ran atomic.Bool
		done := make(chan error, 1)
		go func() {
			done <- l.Do(ctx, "JC-1", func(ctx context.Context) { ran.Store(true) })
		}()
		cancel()
		err := <-done
		close(release)

		// a second job proves the lane drained past the cancelled one
		assert.NoError(t, l.Do(context.Background(), "JC-1", func(ctx context.Context) {}))
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, ran.Load())
	})

	t.Run("closed lanes reject work", func(t *testing.T) {
		l := newLanes(0, testLogger{})
		l.Close()
		l.Close()
		assert.ErrorIs(t, l.Do(context.Background(), "JC-1", func(ctx context.Context) {}), ErrClosed)
	})
}
