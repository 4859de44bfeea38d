package main

import "github.com/scalfmm-go/fmm/internal/engine"

type engineStats = engine.Stats

// statsOf extracts the Stats an engine accumulated during Run. The
// Engine interface itself only promises Prepare/Run; every concrete
// strategy additionally exposes its counters as a public field, so this
// is a type switch rather than an interface method.
func statsOf(e engine.Engine) engineStats {
	switch v := e.(type) {
	case *engine.Sequential:
		return v.Stats
	case *engine.Thread:
		return v.Stats
	case *engine.Task:
		return v.Stats
	case *engine.Distributed:
		return v.Stats
	case *engine.Tsm:
		return v.Stats
	default:
		return engineStats{}
	}
}
