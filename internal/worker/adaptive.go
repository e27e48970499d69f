// Package worker provides the adaptive-concurrency controller and job
// handler dispatch used by the worker runtime.
package worker

import (
	"context"
	"sync"
	"time"
)

// AdaptiveConcurrency bounds the number of jobs a worker processes at once,
// backing off when downstream pressure is reported and creeping back up
// once pressure has cleared for two consecutive scaling ticks.
//
// Permits are acquired before a job's payload is deserialized; the
// consumer's fetch loop waits for a free permit before it dispatches the
// next fetched record.
type AdaptiveConcurrency struct {
	mu             sync.Mutex
	maxLimit       int
	effectiveLimit int
	heldPermits    int
	available      int
	pressure       bool
	cleanTicks     int

	scalingInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// NewAdaptiveConcurrency constructs a controller starting at maxLimit
// permits, scaling down/up on a background ticker that fires every
// scalingInterval (defaults to 5s when zero).
func NewAdaptiveConcurrency(maxLimit int, scalingInterval time.Duration) *AdaptiveConcurrency {
	if maxLimit < 1 {
		maxLimit = 1
	}
	if scalingInterval <= 0 {
		scalingInterval = 5 * time.Second
	}
	ac := &AdaptiveConcurrency{
		maxLimit:        maxLimit,
		effectiveLimit:  maxLimit,
		available:       maxLimit,
		scalingInterval: scalingInterval,
		stopCh:          make(chan struct{}),
	}
	go ac.scaleLoop()
	return ac
}

// AcquirePermit blocks until a permit is available or ctx is done. Returns a
// release function the caller must invoke exactly once when the job finishes.
func (ac *AdaptiveConcurrency) AcquirePermit(ctx context.Context) (func(), error) {
	for {
		ac.mu.Lock()
		if ac.available > 0 {
			ac.available--
			ac.mu.Unlock()
			var once sync.Once
			return func() {
				once.Do(func() {
					ac.mu.Lock()
					ac.available++
					ac.mu.Unlock()
				})
			}, nil
		}
		ac.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// TryAcquirePermit attempts a non-blocking acquire, reporting false when no
// permit is free.
func (ac *AdaptiveConcurrency) TryAcquirePermit() (func(), bool) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if ac.available <= 0 {
		return nil, false
	}
	ac.available--
	var once sync.Once
	return func() {
		once.Do(func() {
			ac.mu.Lock()
			ac.available++
			ac.mu.Unlock()
		})
	}, true
}

// RecordPressure flags that a downstream dependency is under load. The next
// scaling tick will halve the effective limit (floor 1) if pressure is
// still set when it fires.
func (ac *AdaptiveConcurrency) RecordPressure() {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.pressure = true
}

// RecordSuccess clears the pressure flag after a clean downstream response.
// It does not itself grow the limit; growth only happens on the scaling
// tick after two consecutive ticks see no pressure.
func (ac *AdaptiveConcurrency) RecordSuccess() {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.pressure = false
}

// EffectiveLimit returns the current effective permit ceiling.
func (ac *AdaptiveConcurrency) EffectiveLimit() int {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.effectiveLimit
}

// MaxLimit returns the configured ceiling the controller never exceeds.
func (ac *AdaptiveConcurrency) MaxLimit() int {
	return ac.maxLimit
}

// AvailablePermits returns the number of permits free to acquire right now.
func (ac *AdaptiveConcurrency) AvailablePermits() int {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if ac.available < 0 {
		return 0
	}
	return ac.available
}

// Stop terminates the background scaling goroutine.
func (ac *AdaptiveConcurrency) Stop() {
	ac.stopOnce.Do(func() { close(ac.stopCh) })
}

func (ac *AdaptiveConcurrency) scaleLoop() {
	ticker := time.NewTicker(ac.scalingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ac.stopCh:
			return
		case <-ticker.C:
			ac.tick()
		}
	}
}

func (ac *AdaptiveConcurrency) tick() {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	if ac.pressure {
		ac.cleanTicks = 0
		newLimit := ac.effectiveLimit / 2
		if newLimit < 1 {
			newLimit = 1
		}
		delta := ac.effectiveLimit - newLimit
		if delta > 0 {
			// When fewer than delta permits are free, available goes
			// negative so in-flight releases pay back the rest before any
			// new acquire succeeds.
			ac.available -= delta
			ac.heldPermits += delta
		}
		ac.effectiveLimit = newLimit
		ac.pressure = false
		return
	}

	ac.cleanTicks++
	if ac.cleanTicks >= 2 && ac.heldPermits > 0 && ac.effectiveLimit < ac.maxLimit {
		ac.heldPermits--
		ac.available++
		ac.effectiveLimit++
		ac.cleanTicks = 0
	}
}
