package atomsnap

import "sync/atomic"

// innerState packs a wide, signed release counter together with two
// lifecycle flags into one atomic word, per spec.md §4.3:
//
//	bit 0   DETACHED
//	bit 1   FINALIZED
//	bits 2+ counter, two's complement, in units of 1 (stored pre-shifted by
//	        innerCounterShift so a plain atomic Add can update the counter
//	        and, on the single detaching writer's turn, set DETACHED in the
//	        same operation).
//
// spec.md §4.3 allows either an equal-width or a wider-than-outer counter;
// DESIGN.md OQ-3 picks the wide variant. The counter itself never wraps in
// practice, but the 24-bit outer refcount it is debited by does once a
// version has been acquired 2^24 times, so detach corrects for every lap
// of that modulus (wraparound_test.go exercises this per spec.md §8
// scenario 4 by poking the raw word directly).
const (
	innerFlagDetached = uint64(1) << 0
	innerFlagFinalized = uint64(1) << 1
	innerCounterShift  = 2

	// outerCounterBits mirrors the control block's outer refcount width
	// (spec.md §4.1). The detach path subtracts a debit expressed in this
	// domain; wrapAroundFactor is that domain's modulus, expressed in
	// innerState's shifted units (spec.md §4.3 step 3).
	outerCounterBits = 24
	wrapAroundFactor = uint64(1) << (outerCounterBits + innerCounterShift)
)

// Version is the user-facing record returned by MakeVersion: spec.md §2's
// "version", backed directly by one arena slot (spec.md §3 "version slot").
// Its object/free_context/gate fields are set once by the producing writer
// before publication and are immutable thereafter (spec.md §5).
type Version struct {
	object      any
	freeContext any
	gate        *Gate

	innerState atomic.Uint64

	// handleWord is the union described in spec.md §3: selfHandle while the
	// slot is live (set at allocation, used to resolve acquirers back to
	// this slot), or nextHandle while the slot sits on a free-stack.
	handleWord atomic.Uint64
}

func (v *Version) selfHandle() handle {
	return handle(v.handleWord.Load())
}

func (v *Version) setSelfHandle(h handle) {
	v.handleWord.Store(uint64(h))
}

// SetObject sets the user payload before publication (spec.md §4.4).
func (v *Version) SetObject(object, freeContext any) {
	v.object = object
	v.freeContext = freeContext
}

// Object returns the user payload (spec.md §4.4).
func (v *Version) Object() any {
	return v.object
}

// reset clears a slot's bookkeeping fields when it is popped for reuse by
// MakeVersion (spec.md §4.4 "initializes gate, object=NULL, free_context=NULL,
// inner_state=0").
func (v *Version) reset(gate *Gate, self handle) {
	v.object = nil
	v.freeContext = nil
	v.gate = gate
	v.innerState.Store(0)
	v.setSelfHandle(self)
}

// release credits one reader release against this (now-possibly-detached)
// version, per spec.md §4.3. Returns true if this call was the one that
// balanced the counter and finalized the version.
func (v *Version) release() bool {
	raw := v.innerState.Add(uint64(1) << innerCounterShift)
	if raw&innerFlagDetached == 0 {
		// Not yet detached: the writer hasn't swapped this version out, so
		// there is nothing to balance against yet.
		return false
	}
	if int64(raw)>>innerCounterShift != 0 {
		return false
	}
	return v.tryFinalize()
}

// detach is called by the writer that displaced this version via exchange
// or compareAndExchange, debiting the outer refcount it captured atomically
// with the handle swap (spec.md §4.1, §4.3). Only ever called once per
// version, by construction: at most one exchange can ever displace a given
// live handle (spec.md §3 invariant).
func (v *Version) detach(debit uint32) bool {
	delta := uint64(int64(-int64(debit))<<innerCounterShift) | innerFlagDetached
	raw := v.innerState.Add(delta)
	counter := int64(raw) >> innerCounterShift

	for counter > 0 {
		// Readers had lapped the outer counter's modulus while this version
		// was published (spec.md §4.3 step 3): correct once per lap.
		raw = v.innerState.Add(^(wrapAroundFactor - 1))
		counter = int64(raw) >> innerCounterShift
		// Once the loop ends the result is <= 0; it reaches exactly 0 only
		// if fewer than 2^24 acquires are outstanding at once (the
		// outer-refcount bound the caller must respect).
	}

	if counter != 0 {
		return false
	}
	return v.tryFinalize()
}

// tryFinalize performs the FINALIZED CAS tie-break described in spec.md
// §4.3: a releasing reader and a detaching writer can both observe balance
// at the same instant, so exactly one of them must win the transition to
// FINALIZED and invoke the user free callback.
func (v *Version) tryFinalize() bool {
	for {
		raw := v.innerState.Load()
		if raw&innerFlagFinalized != 0 {
			return false
		}
		if v.innerState.CompareAndSwap(raw, raw|innerFlagFinalized) {
			v.finalize()
			return true
		}
	}
}

// finalize invokes the user free callback exactly once and returns the slot
// to its owning arena's free-stack (spec.md §4.4 "Finalized").
func (v *Version) finalize() {
	gate := v.gate
	object, freeContext := v.object, v.freeContext
	self := v.selfHandle()

	if gate.onFree != nil {
		gate.onFree(object, freeContext)
	}

	v.object = nil
	v.freeContext = nil
	freeVersionSlot(self)
}

// Free releases a version that was never published (spec.md §4.4
// "free_version"). Calling it on a published or detached version is a
// caller error; the core does not defend against misuse here, matching
// spec.md §7 ("Violating... is undefined behavior from the core's
// viewpoint").
func (v *Version) Free() {
	gate := v.gate
	if gate.onFree != nil {
		gate.onFree(v.object, v.freeContext)
	}
	self := v.selfHandle()
	v.object = nil
	v.freeContext = nil
	freeVersionSlot(self)
}
