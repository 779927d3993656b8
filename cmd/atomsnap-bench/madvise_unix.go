//go:build unix

package main

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// adviseArenaReclaimed illustrates spec.md §9's arena-reclamation story —
// "advises pages away (MADV_DONTNEED-equivalent) while leaving the arena
// pointer and directory entry live" — using a real mmap'd page instead of
// the core's plain (garbage-collected) Go-slice-backed arenas, which have
// no raw pages to advise away. This keeps the illustration honest: main
// wires it as the OnArenaReclaimed hook, but it only ever advises away its
// own scratch page, never the arena's memory (DESIGN.md OQ-2), to show what
// a page-backed arena implementation would call here.
func adviseArenaReclaimed(laneIdx, arenaIdx int) {
	page, err := unix.Mmap(-1, 0, unix.Getpagesize(), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		fmt.Printf("atomsnap-bench: lane %d arena %d reclaimed (mmap illustration unavailable: %v)\n", laneIdx, arenaIdx, err)
		return
	}
	defer unix.Munmap(page)

	if err := unix.Madvise(page, unix.MADV_DONTNEED); err != nil {
		fmt.Printf("atomsnap-bench: lane %d arena %d reclaimed (madvise failed: %v)\n", laneIdx, arenaIdx, err)
		return
	}
	fmt.Printf("atomsnap-bench: lane %d arena %d reclaimed (madvise illustration ok)\n", laneIdx, arenaIdx)
}
