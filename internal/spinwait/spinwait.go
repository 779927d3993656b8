// Package spinwait provides a small bounded backoff helper for the CAS
// retry loops in the gate's control block and arena free-stack.
//
// Grounded on the spin.Wait{} shape used by
// other_examples/hayabusa-cloud-lfq's MPSC queue (a struct threaded
// through a retry loop, called once per failed attempt). That package's
// own spin helper lives at a private module path
// (code.hybscloud.com/spin) and is not a fetchable public dependency, so
// the backoff itself is reimplemented here against the standard library
// rather than imported — see DESIGN.md "Unavailable / not wired".
package spinwait

import "runtime"

// Wait escalates from pure spinning to yielding the P as contention
// persists. None of this affects correctness: every loop it is used in
// (spec.md §4.1's compareAndExchange, §4.2's free-stack push) is already
// lock-free on its own; Wait only trims wasted CPU under contention.
type Wait struct {
	n int
}

// Once backs off once and should be called on every failed CAS attempt.
func (w *Wait) Once() {
	w.n++
	switch {
	case w.n < 4:
		// Tight spin: the common case is a single retry under light
		// contention, where yielding the P is pure overhead.
	case w.n < 16:
		runtime.Gosched()
	default:
		// Sustained contention: give the scheduler more room than a bare
		// Gosched by yielding several times in a row.
		for i := 0; i < 4; i++ {
			runtime.Gosched()
		}
	}
}

// Reset clears the backoff state for reuse across independent retry loops.
func (w *Wait) Reset() {
	w.n = 0
}
