package torn

import (
	"testing"
	"time"
)

func twoFactions() []Faction {
	return []Faction{{ID: 100, Name: "Us"}, {ID: 200, Name: "Them"}}
}

func TestClassifyWarLifecycle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	cases := []struct {
		name  string
		war   *War
		want  WarStatus
	}{
		{"nil war", nil, WarNotFound},
		{"zero id", &War{Start: now.Unix() - 10, Factions: twoFactions()}, WarNotFound},
		{"no start", &War{ID: 1, Factions: twoFactions()}, WarNotFound},
		{"scheduled", &War{ID: 1, Start: now.Unix() + 3600, Factions: twoFactions()}, WarScheduled},
		{"active no end", &War{ID: 1, Start: now.Unix() - 10, Factions: twoFactions()}, WarActive},
		{"active before end", &War{ID: 1, Start: now.Unix() - 10, End: now.Unix() + 10, Factions: twoFactions()}, WarActive},
		{"ended", &War{ID: 1, Start: now.Unix() - 100, End: now.Unix() - 10, Factions: twoFactions()}, WarEnded},
		{"one faction", &War{ID: 1, Start: now.Unix() - 10, Factions: twoFactions()[:1]}, WarInsufficient},
		{"no factions", &War{ID: 1, Start: now.Unix() - 10}, WarInsufficient},
	}
	for _, tc := range cases {
		if got := ClassifyWar(tc.war, now); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestClassifyWarBoundaries(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	// Start is inclusive: a war starting exactly now is already active.
	w := &War{ID: 1, Start: now.Unix(), Factions: twoFactions()}
	if got := ClassifyWar(w, now); got != WarActive {
		t.Fatalf("start == now: got %q, want %q", got, WarActive)
	}

	// End is exclusive: a war ending exactly now is over.
	w = &War{ID: 1, Start: now.Unix() - 100, End: now.Unix(), Factions: twoFactions()}
	if got := ClassifyWar(w, now); got != WarEnded {
		t.Fatalf("end == now: got %q, want %q", got, WarEnded)
	}
}

func TestClassifyWarIsDeterministic(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	w := &War{ID: 7, Start: now.Unix() - 5, End: now.Unix() + 5, Factions: twoFactions()}
	first := ClassifyWar(w, now)
	for i := 0; i < 100; i++ {
		if got := ClassifyWar(w, now); got != first {
			t.Fatalf("classification flapped: %q then %q", first, got)
		}
	}
}
