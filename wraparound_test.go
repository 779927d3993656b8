package atomsnap

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestWrapAroundCounterCorrection is spec.md §8's white-box wrap-around
// scenario: poke innerState directly to simulate a version that has already
// accumulated outerCounterBits worth of releases while still attached (so
// release() must still be a no-op toward finalization, DETACHED being
// unset), then detach it with a debit of 0 — the value a writer would
// observe if the 24-bit outer refcount it captured at displacement had
// itself wrapped all the way back around to zero. detach must apply
// exactly one wrap correction and finalize.
func TestWrapAroundCounterCorrection(t *testing.T) {
	var frees int32
	gate, err := NewGate(Config{
		OnFree: func(object, freeContext any) { atomic.AddInt32(&frees, 1) },
	})
	require.NoError(t, err)

	lane := checkoutLane()
	defer checkinLane(lane)

	v, err := lane.alloc(gate)
	require.NoError(t, err)

	const maxOuter = uint64(1) << outerCounterBits // 2^24
	v.innerState.Store((maxOuter - 1) << innerCounterShift)

	require.False(t, v.release(), "release must not finalize while DETACHED is unset, regardless of counter value")

	require.True(t, v.detach(0), "detach must apply exactly one wrap correction once the true count balances")
	require.Equal(t, int32(1), frees)
}

// TestDetachWithPreexistingCount is the non-wrapping counterpart: several
// readers release before the writer's displacement observes them, and the
// writer's captured debit matches exactly, balancing to zero with no wrap
// correction needed.
func TestDetachWithPreexistingCount(t *testing.T) {
	var frees int32
	gate, err := NewGate(Config{
		OnFree: func(object, freeContext any) { atomic.AddInt32(&frees, 1) },
	})
	require.NoError(t, err)

	lane := checkoutLane()
	defer checkinLane(lane)

	v, err := lane.alloc(gate)
	require.NoError(t, err)

	require.False(t, v.release())
	require.False(t, v.release())
	require.False(t, v.release())

	require.True(t, v.detach(3))
	require.Equal(t, int32(1), frees)
}

// TestFinalizeRunsExactlyOnce drives tryFinalize's CAS tie-break (spec.md
// §4.3: "a releasing reader and a detaching writer can both observe balance
// at the same instant, exactly one of them must win") with real concurrent
// racers instead of a sequential call sequence.
func TestFinalizeRunsExactlyOnce(t *testing.T) {
	var frees int32
	gate, err := NewGate(Config{
		OnFree: func(object, freeContext any) { atomic.AddInt32(&frees, 1) },
	})
	require.NoError(t, err)

	lane := checkoutLane()
	defer checkinLane(lane)

	v, err := lane.alloc(gate)
	require.NoError(t, err)

	const racers = 8
	var wg sync.WaitGroup
	var wins int32
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v.tryFinalize() {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins)
	require.Equal(t, int32(1), frees)
}
