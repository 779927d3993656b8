package atomsnap

import "github.com/rs/zerolog"

// Allocation-time diagnostics only: spec.md §7 is explicit that "no error
// is logged from the hot path," so none of acquire/release/exchange/
// compareAndExchange ever touches a logger. NewGate defaults to
// zerolog.Nop() so embedding this library costs nothing unless a caller
// opts in, matching joeycumines-go-utilpkg/logiface-zerolog's pattern of
// wiring a concrete zerolog.Logger behind a narrow interface.
func (g *Gate) logArenaProvisioned(laneIdx, arenaIdx, slots int) {
	g.logger.Debug().
		Int("lane", laneIdx).
		Int("arena", arenaIdx).
		Int("slots", slots).
		Msg("atomsnap: arena provisioned")
}

func (g *Gate) logArenaReclaimed(laneIdx, arenaIdx int) {
	g.logger.Debug().
		Int("lane", laneIdx).
		Int("arena", arenaIdx).
		Msg("atomsnap: arena reclaimed")
}

func (g *Gate) logLaneAssigned(laneIdx int) {
	g.logger.Debug().
		Int("lane", laneIdx).
		Msg("atomsnap: lane assigned")
}

func (g *Gate) logAllocFailure(reason string) {
	g.logger.Warn().
		Str("reason", reason).
		Msg("atomsnap: allocation failure")
}

func defaultLogger() zerolog.Logger {
	return zerolog.Nop()
}
