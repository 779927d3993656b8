package atomsnap

import (
	"sync/atomic"

	"github.com/minseok127/atomsnap/internal/spinwait"
)

// slotsPerArena is the fixed slot count of one arena, including index 0,
// which is reserved and never handed out (the free-stacks end at handleNull
// rather than at slot 0). 256 comfortably fits slotIdxBits (14
// bits, max 16384) and is the constant spec.md §8's arena-reclamation
// hysteresis scenario refers to as SLOTS_PER_ARENA.
const slotsPerArena = 256

// maxArenasPerLane is the fixed cap on arenas a single lane may own,
// matching arenaIdxBits' addressable range (spec.md §3 "owned arena
// pointers (up to a fixed maximum)").
const maxArenasPerLane = 1 << arenaIdxBits

// arena is a fixed array of version slots owned by exactly one lane
// (spec.md §3 "Arena"). Its free-stack is multi-producer/single-consumer:
// any goroutine may push a freed slot onto topHandle; only the owning lane,
// while it holds exclusive access to its laneContext, pops (in bulk, via
// batch steal).
type arena struct {
	slots []Version

	// topHandle packs [depthTag(24) | handle(40)]; the depth tag defeats
	// ABA on the producer side the same way a free-stack tagged top always
	// does (spec.md §4.2, §9).
	topHandle atomic.Uint64

	// liveCount tracks slots currently allocated out of this arena. It is
	// the Go-idiomatic stand-in for spec.md §9's "fully-free arena (depth =
	// SLOTS_PER_ARENA - 1)" test: zero live slots means the arena's entire
	// usable range sits on some free-stack (local or remote) and reclaiming
	// it is safe (see DESIGN.md OQ discussion of arena hysteresis).
	liveCount atomic.Int32

	laneIdx  int
	arenaIdx int
}

// newArena provisions a fresh, page-aligned-in-spirit arena (spec.md §4.2
// step 5) and links its usable slots (1..slotsPerArena-1) into a LIFO chain
// via each slot's handleWord union field, used as next_handle while free.
func newArena(laneIdx, arenaIdx int) *arena {
	a := &arena{
		slots:    make([]Version, slotsPerArena),
		laneIdx:  laneIdx,
		arenaIdx: arenaIdx,
	}
	a.topHandle.Store(packTagged(0, handleNull))

	for i := 1; i < slotsPerArena; i++ {
		next := handleNull
		if i > 1 {
			next = makeHandle(laneIdx, arenaIdx, i-1)
		}
		a.slots[i].handleWord.Store(uint64(next))
	}
	return a
}

// topOfFreshChain is the handle of the slot at the head of newArena's
// freshly linked LIFO: the lane splices this in as its new local top.
func (a *arena) topOfFreshChain() handle {
	return makeHandle(a.laneIdx, a.arenaIdx, slotsPerArena-1)
}

func (a *arena) isFullyFree() bool {
	return a.liveCount.Load() == 0
}

// push is the MPSC free-stack producer side (spec.md §4.2 "Free path"): a
// CAS loop where the new head carries an incremented depth tag and the
// pushed node's next_handle is set to the prior head's handle; the depth
// tag lives only in topHandle, not in the links.
func (a *arena) push(self handle) {
	slot := self.resolve()
	var backoff spinwait.Wait
	for {
		old := a.topHandle.Load()
		depth, oldTop := unpackTagged(old)
		slot.handleWord.Store(uint64(oldTop))
		newTop := packTagged(depth+1, self)
		if a.topHandle.CompareAndSwap(old, newTop) {
			return
		}
		backoff.Once()
	}
}

// stealAll atomically detaches the entire remote free-stack as a batch
// (spec.md §4.2 step 4, "batch steal"), returning its head handle (possibly
// null) for the caller to splice onto its own local stack. Only the owning
// lane calls this.
func (a *arena) stealAll() handle {
	old := a.topHandle.Swap(packTagged(0, handleNull))
	_, head := unpackTagged(old)
	return head
}

func arenaOf(h handle) *arena {
	lane := globalLanes.at(h.laneIdx())
	return lane.arenas[h.arenaIdx()]
}

// freeVersionSlot returns a finalized slot to its owning arena's
// free-stack (spec.md §4.4 "pushed onto owning arena's free-stack"). This
// runs from whichever goroutine's release/detach balanced the version, not
// necessarily the arena's current lane holder, which is exactly why the
// free-stack must be MPSC rather than single-producer.
func freeVersionSlot(self handle) {
	a := arenaOf(self)
	a.push(self)
	a.liveCount.Add(-1)
}
