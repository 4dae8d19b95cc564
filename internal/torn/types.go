// Package torn holds the domain model for the Torn faction API: wars,
// bounties, members, chains, attacks, and the pure classification logic
// that turns raw payloads into lifecycle states.
package torn

import "time"

// WarStatus is the classified phase of a ranked war.
type WarStatus string

const (
	WarNotFound     WarStatus = "not_found"
	WarScheduled    WarStatus = "scheduled"
	WarActive       WarStatus = "active"
	WarEnded        WarStatus = "ended"
	WarInsufficient WarStatus = "insufficient_data"
)

// Faction is one side of a ranked war.
type Faction struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Tag      string `json:"tag"`
	Members  int    `json:"members"`
	Capacity int    `json:"capacity"`
	Rank     int    `json:"rank"`
	RankName string `json:"rank_name"`
	Respect  int64  `json:"respect"`
	Wins     int    `json:"wins"`
	Score    int64  `json:"score"`
}

// War is one faction-vs-faction ranked engagement.
//
// Start and End are unix seconds; End == 0 means the end is unknown
// (ongoing), never a zero-duration war.
type War struct {
	ID       int64     `json:"war_id"`
	Factions []Faction `json:"factions"`
	Target   int64     `json:"target"`
	Start    int64     `json:"start"`
	End      int64     `json:"end"`
	Status   WarStatus `json:"status"`
}

// Us returns our faction's entry, if present.
func (w *War) Us(factionID int64) (Faction, bool) {
	for _, f := range w.Factions {
		if f.ID == factionID {
			return f, true
		}
	}
	return Faction{}, false
}

// Opponent returns the first faction that is not ours.
func (w *War) Opponent(factionID int64) (Faction, bool) {
	for _, f := range w.Factions {
		if f.ID != factionID {
			return f, true
		}
	}
	return Faction{}, false
}

// Bounty is a reward listed on a target player.
type Bounty struct {
	TargetID   int64     `json:"target_id"`
	TargetName string    `json:"target_name"`
	Reward     int64     `json:"reward"`
	Quantity   int       `json:"quantity"`
	ListerID   int64     `json:"lister_id"` // 0 when unknown or anonymous
	ListerName string    `json:"lister_name"`
	Anonymous  bool      `json:"anonymous"`
	Reason     string    `json:"reason"`
	Posted     time.Time `json:"posted"`
}

// Member is a faction member as returned by the members endpoint.
type Member struct {
	ID         int64
	Name       string
	Level      int
	Status     string
	LastAction time.Time
}

// Chain is one completed hit chain.
type Chain struct {
	ID      int64
	Length  int
	Respect float64
	Start   int64
	End     int64
}

// Attack is one combat event from the faction attack log.
type Attack struct {
	ID                string
	AttackerID        int64
	AttackerFactionID int64
	DefenderID        int64
	DefenderFactionID int64
	Result            string
	RespectGain       float64
	RespectLoss       float64
	Started           int64
	Ended             int64
}

// StockItem is one armory item with its current quantity.
type StockItem struct {
	Name     string
	Quantity int
}

// ProfileURL returns the public profile page for a player id.
func ProfileURL(id int64) string {
	return "https://www.torn.com/profiles.php?XID=" + itoa(id)
}

// FactionURL returns the public profile page for a faction id.
func FactionURL(id int64) string {
	return "https://www.torn.com/factions.php?step=profile&ID=" + itoa(id)
}
