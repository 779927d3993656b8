package atomsnap

import (
	"sync"
	"sync/atomic"
)

// laneContext is the Go analogue of spec.md §3's "thread context": per-lane
// assigned id, owned arenas, a local free-stack top, an active-arena
// counter, and an allocation counter driving periodic reclamation checks.
//
// Go has no portable per-goroutine identity or thread-exit hook (unlike the
// OS-thread-keyed source this spec distills), so DESIGN.md OQ-1 adapts
// "thread" to "lane": a laneContext is checked out by exactly one
// goroutine at a time, via lanePool (a sync.Pool, mirroring
// refcounter.go's own use of sync.Pool to recycle distributed-counter
// blocks). Pool.Get()/Put() gives exactly the single-consumer exclusivity
// the local free-stack and batch-steal logic assume, and naturally
// "adopts" a retired lane's context and owned arenas into whichever
// goroutine next calls Get() (spec.md §4.2 "Thread-exit").
type laneContext struct {
	laneIdx      int
	arenas       [maxArenasPerLane]*arena
	totalArenas  int // arenas[0:totalArenas] are provisioned and never reused at a different index
	activeArenas int // arenas[0:activeArenas] are consulted by batchSteal; always <= totalArenas
	localTop     handle
	allocCount   uint64
}

var (
	nextLaneID atomic.Int64
	lanePool   sync.Pool
	globalLanes = newLaneDirectory()
)

// laneDirectory is the global arena/thread-context table of spec.md §3:
// "write-once-per-slot... read-many... persist for process lifetime... the
// table is never compacted." Reads (handle resolution, on every acquire)
// must be lock-free, so the published table is an atomic snapshot pointer;
// growth (assigning a new lane id) takes a mutex and republishes a bigger
// copy, the same copy-on-grow shape spec.md §9 describes for bit-packed
// state built once at program start with "interior mutability confined to
// atomics."
type laneDirectory struct {
	mu    sync.Mutex
	table atomic.Pointer[[]*laneContext]
}

func newLaneDirectory() *laneDirectory {
	d := &laneDirectory{}
	empty := make([]*laneContext, 0)
	d.table.Store(&empty)
	return d
}

func (d *laneDirectory) at(idx int) *laneContext {
	t := *d.table.Load()
	return t[idx]
}

func (d *laneDirectory) set(idx int, lane *laneContext) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur := *d.table.Load()
	if idx < len(cur) {
		cur[idx] = lane
		return
	}
	grown := make([]*laneContext, roundUpPow2(idx+1))
	copy(grown, cur)
	grown[idx] = lane
	d.table.Store(&grown)
}

// newLaneContext assigns the next lane id and publishes the new lane into
// the global directory before it is used, satisfying the "resolvable to a
// valid slot" invariant for any handle this lane ever hands out.
func newLaneContext() *laneContext {
	id := int(nextLaneID.Add(1) - 1)
	lane := &laneContext{laneIdx: id, localTop: handleNull}
	globalLanes.set(id, lane)
	return lane
}

func checkoutLane() *laneContext {
	if lane, ok := lanePool.Get().(*laneContext); ok && lane != nil {
		return lane
	}
	return newLaneContext()
}

func checkinLane(lane *laneContext) {
	lanePool.Put(lane)
}

// localPop pops the calling lane's thread-local free-stack (spec.md §4.2
// step 3); it is only ever called while the lane is exclusively checked
// out, so it touches localTop without synchronization.
func (lane *laneContext) localPop() (handle, bool) {
	if lane.localTop.isNull() {
		return handleNull, false
	}
	h := lane.localTop
	slot := h.resolve()
	lane.localTop = handle(slot.handleWord.Load())
	return h, true
}

// batchSteal detaches every owned arena's remote free-stack as a batch and
// splices the stolen chains onto the local stack (spec.md §4.2 step 4).
// Returns true if anything was stolen.
func (lane *laneContext) batchSteal() bool {
	stole := false
	for i := 0; i < lane.activeArenas; i++ {
		a := lane.arenas[i]
		head := a.stealAll()
		if head.isNull() {
			continue
		}
		stole = true
		tail := head
		for {
			next := handle(tail.resolve().handleWord.Load())
			if next.isNull() {
				break
			}
			tail = next
		}
		tail.resolve().handleWord.Store(uint64(lane.localTop))
		lane.localTop = head
	}
	return stole
}

// maybeReclaim implements spec.md §4.2 step 2: every slotsPerArena
// allocations, check whether the last arena of the active set is fully
// returned, and if so drop it from the active set.
func (lane *laneContext) maybeReclaim(gate *Gate) {
	if lane.allocCount%slotsPerArena != 0 || lane.activeArenas == 0 {
		return
	}
	last := lane.arenas[lane.activeArenas-1]
	if !last.isFullyFree() {
		return
	}
	lane.activeArenas--
	gate.logArenaReclaimed(lane.laneIdx, last.arenaIdx)
	if gate.onArenaReclaimed != nil {
		gate.onArenaReclaimed(lane.laneIdx, last.arenaIdx)
	}
	// The arena pointer stays in lane.arenas at its original index (never
	// nil'd, never reassigned to a different slot): spec.md §4.2 "keeping
	// the virtual address so the directory entry stays stable for any
	// reader still holding a handle into it." alloc reactivates it, at the
	// same index, before ever provisioning a brand new one.
}

// alloc is spec.md §4.2's make_version, minus the lane checkout/checkin
// that Gate.MakeVersion wraps around it.
func (lane *laneContext) alloc(gate *Gate) (*Version, error) {
	lane.allocCount++
	lane.maybeReclaim(gate)

	h, ok := lane.localPop()
	if !ok && lane.batchSteal() {
		h, ok = lane.localPop()
	}
	if !ok && lane.activeArenas < lane.totalArenas {
		// A parked (hysteresis-retired) arena sits right past the active
		// boundary, at the same index it has always had. Reactivating it
		// is cheaper than growing, and correct even under the
		// MADV_DONTNEED-equivalent story: re-touching decommitted-but-
		// still-mapped pages just faults them back in.
		reactivated := lane.arenas[lane.activeArenas]
		lane.activeArenas++
		if head := reactivated.stealAll(); !head.isNull() {
			lane.localTop = head
		}
		h, ok = lane.localPop()
	}
	if !ok {
		if lane.laneIdx > int(laneIdxMask) {
			gate.logAllocFailure("lane id space exhausted")
			return nil, ErrAllocExhausted
		}
		if lane.totalArenas >= maxArenasPerLane {
			gate.logAllocFailure("lane arena limit exhausted")
			return nil, ErrAllocExhausted
		}
		idx := lane.totalArenas
		a := newArena(lane.laneIdx, idx)
		lane.arenas[idx] = a
		lane.totalArenas++
		lane.activeArenas = lane.totalArenas
		gate.logArenaProvisioned(lane.laneIdx, idx, slotsPerArena)

		lane.localTop = a.topOfFreshChain()
		h, ok = lane.localPop()
		if !ok {
			return nil, ErrAllocExhausted
		}
	}

	arenaOf(h).liveCount.Add(1)
	slot := h.resolve()
	slot.reset(gate, h)
	return slot, nil
}
