package torn

import "time"

// ClassifyWar derives the lifecycle status of a war from its timestamps.
//
// Boundaries are deterministic: the start is inclusive (start == now is
// Active) and the end is exclusive (end == now is Ended). A missing end
// means the war is ongoing with an unknown end, not zero-length.
//
// A war with fewer than two known factions classifies as WarInsufficient:
// the engagement exists upstream but cannot be rendered as a matchup, which
// must stay distinguishable from WarNotFound.
func ClassifyWar(w *War, now time.Time) WarStatus {
	if w == nil || w.ID == 0 || w.Start <= 0 {
		return WarNotFound
	}
	if len(w.Factions) < 2 {
		return WarInsufficient
	}
	ts := now.Unix()
	switch {
	case w.Start > ts:
		return WarScheduled
	case w.End > 0 && w.End <= ts:
		return WarEnded
	default:
		return WarActive
	}
}
