// Package binding implements the Host Binding Adapter (spec §4.11): the
// narrow boundary around CPU-heavy engine work (C1 batch encode/decode,
// C4 compilation for large plans) that brackets it with a
// release-do-reacquire pair, so that work never runs while holding
// whatever serializes host-visible mutation.
//
// Go has no interpreter lock to release, but the same discipline
// matters for a different reason here: bounding how much CPU-heavy
// codec/compile work runs concurrently process-wide, so a burst of
// large batches doesn't starve the goroutines servicing driver I/O.
// Adapter is that bound, expressed as the release/reacquire pairing
// spec §4.11's Rule names, backed by a semaphore instead of a lock.
package binding

import (
	"context"

	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/logger"
)

// Adapter bounds concurrent CPU-heavy sections to at most maxConcurrent
// at a time.
type Adapter struct {
	sem chan struct{}
}

// New builds an Adapter permitting at most maxConcurrent concurrently
// released sections. maxConcurrent <= 0 means unbounded.
func New(maxConcurrent int) *Adapter {
	var sem chan struct{}
	if maxConcurrent > 0 {
		sem = make(chan struct{}, maxConcurrent)
	}
	return &Adapter{sem: sem}
}

// Default is the process-wide Adapter used by the relational and
// document backends' bulk Create/InsertMany paths. It is unbounded
// (New(0)); the backends offer no per-call Adapter option.
var Default = New(0)

// Release blocks until a slot is free (or ctx is done), then returns a
// reacquire function that must be called exactly once — typically via
// defer — to pair-balance the release (spec §4.11 Rule: "every release
// -> do work -> reacquire must be pair-balanced and exception-safe").
func (a *Adapter) Release(ctx context.Context) (reacquire func(), err error) {
	if a == nil || a.sem == nil {
		return func() {}, nil
	}
	select {
	case a.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, dberrors.NewPoolExhausted()
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		<-a.sem
	}, nil
}

// Do runs fn with the section released, reacquiring on every exit path
// including panic, so a caller never needs to remember the reacquire
// call itself (spec §4.11 "exception-safe").
func (a *Adapter) Do(ctx context.Context, fn func() error) error {
	reacquire, err := a.Release(ctx)
	if err != nil {
		logger.Binding.Warn("release timed out waiting for a free slot")
		return err
	}
	defer reacquire()
	return fn()
}
