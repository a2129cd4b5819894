package binding_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dataplane/orm/binding"
	"github.com/dataplane/orm/dberrors"
	"github.com/stretchr/testify/require"
)

func TestDoRunsFnAndReacquires(t *testing.T) {
	a := binding.New(1)
	var ran bool
	err := a.Do(context.Background(), func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)

	// the slot must have been reacquired: a second Do must not block.
	done := make(chan struct{})
	go func() {
		_ = a.Do(context.Background(), func() error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("slot was not released after Do returned")
	}
}

func TestDoBoundsConcurrency(t *testing.T) {
	a := binding.New(2)
	var inFlight int32
	var maxSeen int32
	release := make(chan struct{})

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			errs <- a.Do(context.Background(), func() error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					old := atomic.LoadInt32(&maxSeen)
					if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
						break
					}
				}
				<-release
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}()
	}

	// give the first two goroutines a chance to acquire their slots
	// before release so the bound is actually exercised.
	time.Sleep(50 * time.Millisecond)
	require.LessOrEqual(t, atomic.LoadInt32(&inFlight), int32(2))
	close(release)

	for i := 0; i < 3; i++ {
		require.NoError(t, <-errs)
	}
	require.LessOrEqual(t, atomic.LoadInt32(&maxSeen), int32(2))
}

func TestDoReacquiresOnPanic(t *testing.T) {
	a := binding.New(1)

	func() {
		defer func() { _ = recover() }()
		_ = a.Do(context.Background(), func() error {
			panic("boom")
		})
	}()

	done := make(chan struct{})
	go func() {
		_ = a.Do(context.Background(), func() error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("slot was not reacquired after a panic in fn")
	}
}

func TestReleaseSurfacesPoolExhaustedOnCancel(t *testing.T) {
	a := binding.New(1)
	release, err := a.Release(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Release(ctx)
	require.Error(t, err)
	require.True(t, dberrors.KindIs(err, dberrors.KindPoolExhausted))
}

func TestUnboundedAdapterNeverBlocks(t *testing.T) {
	a := binding.New(0)
	for i := 0; i < 5; i++ {
		release, err := a.Release(context.Background())
		require.NoError(t, err)
		defer release()
	}
}

func TestReacquireIsIdempotent(t *testing.T) {
	a := binding.New(1)
	reacquire, err := a.Release(context.Background())
	require.NoError(t, err)
	reacquire()
	reacquire()

	done := make(chan struct{})
	go func() {
		_ = a.Do(context.Background(), func() error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("double reacquire left the slot permanently held")
	}
}
