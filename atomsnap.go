// Package atomsnap implements a reader-safe, lock-free atomic snapshot
// gate: a primitive that lets many readers observe an immutable "current
// version" of a shared object while writers install new versions and
// reclaim old ones without blocking readers. It fills the same role as
// user-space RCU or an atomic shared pointer, but with bounded,
// predictable reclamation and no per-access grace-period scan.
//
// The three layers are the slot arena allocator (arena.go, context.go), the
// version/reclamation bookkeeping (version.go), and the gate itself
// (controlblock.go, this file). See DESIGN.md for how each maps onto the
// balasanjay/lrlock left-right lock this package generalizes.
package atomsnap

import "github.com/rs/zerolog"

// OnFreeFunc is the user callback contract (spec.md §4.4, §6): invoked
// exactly once per version that was ever published or explicitly freed via
// Version.Free. It must not reference the gate, and it must be total (its
// failures are not observable to the core, spec.md §7).
type OnFreeFunc func(object, freeContext any)

// Config configures a Gate (spec.md §4.4 "init_gate(context)").
type Config struct {
	// OnFree is required; NewGate returns ErrInvalidArgument without it.
	OnFree OnFreeFunc

	// NumExtraControlBlocks requests additional independent control block
	// slots beyond the primary one at index 0 (spec.md §3 "Gate... an
	// array of additional control blocks"). Each is an entirely
	// independent instance of the same protocol (spec.md §1 "a gate has N
	// independent control-block slots").
	NumExtraControlBlocks int

	// Logger receives allocation-time diagnostics only (arena growth/
	// shrink, lane assignment, allocation failure). A nil Logger defaults
	// to zerolog.Nop(). Never touched on the acquire/release/exchange hot
	// path (spec.md §7).
	Logger *zerolog.Logger

	// OnArenaReclaimed is an optional hook fired when an arena's pages
	// would be advised away (spec.md §4.2 step 2, §9). The portable core
	// only drops the arena from its lane's active set; a caller that wants
	// the OS-level MADV_DONTNEED-equivalent behavior described in spec.md
	// can wire this to platform code (see cmd/atomsnap-bench for a
	// golang.org/x/sys/unix.Madvise illustration). DESIGN.md OQ-2.
	OnArenaReclaimed func(laneIdx, arenaIdx int)
}

// Gate holds one or more control blocks and the user free callback
// (spec.md §3 "Gate", §4.4 "init_gate"/"destroy_gate").
type Gate struct {
	primary controlBlock
	extra   []controlBlock

	onFree           OnFreeFunc
	onArenaReclaimed func(laneIdx, arenaIdx int)
	logger           zerolog.Logger
}

// NewGate allocates control blocks and captures the free callback. It
// fails with ErrInvalidArgument if OnFree is nil (spec.md §4.4, §7).
func NewGate(cfg Config) (*Gate, error) {
	if cfg.OnFree == nil {
		return nil, ErrInvalidArgument
	}
	if cfg.NumExtraControlBlocks < 0 {
		return nil, ErrInvalidArgument
	}

	logger := defaultLogger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	g := &Gate{
		onFree:           cfg.OnFree,
		onArenaReclaimed: cfg.OnArenaReclaimed,
		logger:           logger,
	}

	g.primary.init(handleNull)
	if cfg.NumExtraControlBlocks > 0 {
		g.extra = make([]controlBlock, cfg.NumExtraControlBlocks)
		for i := range g.extra {
			g.extra[i].init(handleNull)
		}
	}
	return g, nil
}

// Destroy releases the gate. The caller must ensure no readers or writers
// still reference it (spec.md §4.4).
func (g *Gate) Destroy() {
	*g = Gate{}
}

func (g *Gate) controlBlockAt(slotIdx int) *controlBlock {
	if slotIdx == 0 {
		return &g.primary
	}
	return &g.extra[slotIdx-1]
}

// MakeVersion allocates a slot and initializes it with gate=g,
// object=nil, freeContext=nil, innerState=0 (spec.md §4.2, §4.4).
func (g *Gate) MakeVersion() (*Version, error) {
	lane := checkoutLane()
	g.logLaneAssigned(lane.laneIdx)
	v, err := lane.alloc(g)
	checkinLane(lane)
	return v, err
}

// Acquire is spec.md §4.1's acquire(slot_idx): a single fetch-and-add that
// bumps the outer refcount and resolves the currently published version in
// one atomic step. Returns nil if the control block currently names NULL.
func (g *Gate) Acquire(slotIdx int) *Version {
	return g.controlBlockAt(slotIdx).acquire()
}

// AcquireVersion is the slotIdx=0 convenience wrapper (spec.md §6).
func (g *Gate) AcquireVersion() *Version {
	return g.Acquire(0)
}

// Release credits one reader release against v (spec.md §4.3). It is a
// no-op with respect to finalization if v has not yet been detached by a
// later exchange.
func (v *Version) Release() {
	v.release()
}

// Exchange installs newVersion at slotIdx and returns the displaced version
// (nil if none was published), debiting it by the outer refcount captured
// atomically with the swap (spec.md §4.1, §4.3). Wait-free.
func (g *Gate) Exchange(slotIdx int, newVersion *Version) *Version {
	newHandle := handleNull
	if newVersion != nil {
		newHandle = newVersion.selfHandle()
	}
	return g.controlBlockAt(slotIdx).exchange(newHandle)
}

// ExchangeVersion is the slotIdx=0 convenience wrapper.
func (g *Gate) ExchangeVersion(newVersion *Version) *Version {
	return g.Exchange(0, newVersion)
}

// CompareAndExchange installs newVersion at slotIdx only if the control
// block currently names expected (spec.md §4.1). A false return is a
// normal outcome, not an error (spec.md §7). Lock-free: the CAS loop exits
// as soon as the observed handle no longer matches expected.
func (g *Gate) CompareAndExchange(slotIdx int, expected, newVersion *Version) bool {
	expectedHandle := handleNull
	if expected != nil {
		expectedHandle = expected.selfHandle()
	}
	newHandle := handleNull
	if newVersion != nil {
		newHandle = newVersion.selfHandle()
	}
	_, ok := g.controlBlockAt(slotIdx).compareAndExchange(expectedHandle, newHandle)
	return ok
}

// CompareAndExchangeVersion is the slotIdx=0 convenience wrapper.
func (g *Gate) CompareAndExchangeVersion(expected, newVersion *Version) bool {
	return g.CompareAndExchange(0, expected, newVersion)
}
