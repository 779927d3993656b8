package atomsnap

import (
	"sync/atomic"

	"github.com/minseok127/atomsnap/internal/spinwait"
)

// controlBlock is the 64-bit atomic word described in spec.md §4.1:
//
//	bits 63-40  outer refcount
//	bits 39-0   handle (or the NULL sentinel)
//
// It generalizes the 1-bit-each "versionIndex"/"leftRight" packing that
// lrlock.go mutates with atomic.Load/atomic.Store/CAS on a single int32
// (LRMutex.state) to a 24-bit count alongside a 40-bit handle.
type controlBlock struct {
	word atomic.Uint64
}

func (cb *controlBlock) init(h handle) {
	cb.word.Store(packTagged(0, h))
}

// acquire bumps the outer refcount and reads the handle in one atomic op,
// so a reader can never be observed mid-acquire by a concurrent exchange
// as having acquired a handle that was already displaced (spec.md §4.1).
// Returns the resolved version (nil if the control block names NULL); the
// caller must eventually call release on a non-nil result.
func (cb *controlBlock) acquire() *Version {
	raw := cb.word.Add(uint64(1) << tagShift)
	_, h := unpackTagged(raw)
	return h.resolve()
}

// exchange installs newHandle with a fresh outer refcount of zero, debits
// the displaced version by the outer count that had accumulated against it,
// and returns the displaced version (nil if the control block named NULL).
func (cb *controlBlock) exchange(newHandle handle) *Version {
	old := cb.word.Swap(packTagged(0, newHandle))
	oldOuter, oldHandle := unpackTagged(old)
	if oldHandle.isNull() {
		return nil
	}
	displaced := oldHandle.resolve()
	displaced.detach(oldOuter)
	return displaced
}

// compareAndExchange installs newHandle only if the control block currently
// names expectedHandle. The CAS loop refreshes its expected value on every
// failure (spec.md §4.1 "a writer whose expected handle has changed exits
// immediately"), which is what makes it lock-free rather than livelock-prone.
func (cb *controlBlock) compareAndExchange(expectedHandle, newHandle handle) (displaced *Version, ok bool) {
	var backoff spinwait.Wait
	for {
		old := cb.word.Load()
		_, curHandle := unpackTagged(old)
		if curHandle != expectedHandle {
			return nil, false
		}
		next := packTagged(0, newHandle)
		if cb.word.CompareAndSwap(old, next) {
			oldOuter, oldHandle := unpackTagged(old)
			if oldHandle.isNull() {
				return nil, true
			}
			displaced = oldHandle.resolve()
			displaced.detach(oldOuter)
			return displaced, true
		}
		// Weak-CAS-style spurious failure or genuine concurrent change:
		// either way, re-read and re-check the expected handle.
		backoff.Once()
	}
}

func (cb *controlBlock) currentHandle() handle {
	_, h := unpackTagged(cb.word.Load())
	return h
}
