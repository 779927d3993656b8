package atomsnap

import "errors"

// Error kinds per spec.md §7. Allocation failure and invalid-argument are
// surfaced as a nil return plus one of these sentinels; a failed
// compare-and-exchange is a normal outcome (a plain bool), not an error.
var (
	// ErrAllocExhausted is returned by MakeVersion when arena, slot, or
	// lane allocation is exhausted.
	ErrAllocExhausted = errors.New("atomsnap: allocation exhausted")

	// ErrInvalidArgument is returned by NewGate when required configuration
	// (notably OnFree) is missing.
	ErrInvalidArgument = errors.New("atomsnap: invalid argument")

	// ErrNotFound reports a compare-and-exchange mismatch. Callers that
	// treat this as a normal outcome should prefer the bool return of
	// CompareAndExchange directly; this sentinel exists for API symmetry
	// with the other two kinds and is not returned by this package today.
	ErrNotFound = errors.New("atomsnap: not found")
)
