//go:build !unix

package main

import "fmt"

// adviseArenaReclaimed has no portable page-advice primitive off unix;
// see madvise_unix.go for the illustration. DESIGN.md OQ-2.
func adviseArenaReclaimed(laneIdx, arenaIdx int) {
	fmt.Printf("atomsnap-bench: lane %d arena %d reclaimed (no page-advice on this platform)\n", laneIdx, arenaIdx)
}
