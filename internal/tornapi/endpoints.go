package tornapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"factionwatch/internal/torn"
	"factionwatch/pkg/logx"
)

// RankedWar fetches the faction's current ranked war, enriched with basic
// info for both factions, and classifies its lifecycle status.
// Returns ErrNotFound when no ranked war exists.
func (c *Client) RankedWar(ctx context.Context, now time.Time) (*torn.War, error) {
	body, err := c.Get(ctx, "/v2/faction/wars", nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Wars struct {
			Ranked *struct {
				WarID    flexInt64 `json:"war_id"`
				Target   flexInt64 `json:"target"`
				Start    flexInt64 `json:"start"`
				End      flexInt64 `json:"end"`
				Factions []struct {
					ID    flexInt64 `json:"id"`
					Score flexInt64 `json:"score"`
				} `json:"factions"`
			} `json:"ranked"`
		} `json:"wars"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("tornapi: decode wars: %w", err)
	}
	rw := payload.Wars.Ranked
	if rw == nil || rw.WarID == 0 {
		return nil, ErrNotFound
	}

	war := &torn.War{
		ID:     int64(rw.WarID),
		Target: int64(rw.Target),
		Start:  int64(rw.Start),
		End:    int64(rw.End),
	}
	for _, fd := range rw.Factions {
		if fd.ID == 0 {
			continue
		}
		fi, err := c.FactionBasic(ctx, int64(fd.ID))
		if err != nil {
			// One side's detail fetch failing must not lose the war itself;
			// fall back to a placeholder so classification still proceeds.
			c.log.Warn("faction detail fetch failed", logx.Int64("faction_id", int64(fd.ID)), logx.Err(err))
			fi = &torn.Faction{ID: int64(fd.ID), Name: "Unknown"}
		}
		fi.Score = int64(fd.Score)
		war.Factions = append(war.Factions, *fi)
	}
	war.Status = torn.ClassifyWar(war, now)
	return war, nil
}

// FactionBasic fetches display info for one faction.
func (c *Client) FactionBasic(ctx context.Context, factionID int64) (*torn.Faction, error) {
	body, err := c.Get(ctx, fmt.Sprintf("/v2/faction/%d/basic", factionID), nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Basic struct {
			Name     string    `json:"name"`
			Tag      string    `json:"tag"`
			Members  flexInt64 `json:"members"`
			Capacity flexInt64 `json:"capacity"`
			Respect  flexInt64 `json:"respect"`
			Rank     struct {
				Level flexInt64 `json:"level"`
				Name  string    `json:"name"`
				Wins  flexInt64 `json:"wins"`
			} `json:"rank"`
		} `json:"basic"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("tornapi: decode faction basic: %w", err)
	}

	b := payload.Basic
	name := b.Name
	if name == "" {
		name = "Unknown"
	}
	rankName := b.Rank.Name
	if rankName == "" {
		rankName = "Unranked"
	}
	return &torn.Faction{
		ID:       factionID,
		Name:     name,
		Tag:      b.Tag,
		Members:  int(b.Members),
		Capacity: int(b.Capacity),
		Respect:  int64(b.Respect),
		Rank:     int(b.Rank.Level),
		RankName: rankName,
		Wins:     int(b.Rank.Wins),
	}, nil
}

// Members fetches the faction roster as an ordered slice (by member id),
// regardless of whether the upstream returns a map or a list.
func (c *Client) Members(ctx context.Context) ([]torn.Member, error) {
	body, err := c.Get(ctx, "/v2/faction/members", nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Members json.RawMessage `json:"members"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("tornapi: decode members: %w", err)
	}

	var out []torn.Member
	for _, raw := range itemList(payload.Members) {
		var md struct {
			ID         flexInt64       `json:"id"`
			Name       string          `json:"name"`
			Level      flexInt64       `json:"level"`
			Status     json.RawMessage `json:"status"`
			LastAction *struct {
				Timestamp flexInt64 `json:"timestamp"`
			} `json:"last_action"`
		}
		if err := json.Unmarshal(raw, &md); err != nil || md.ID == 0 {
			c.log.Debug("skipping malformed member record")
			continue
		}
		m := torn.Member{
			ID:     int64(md.ID),
			Name:   md.Name,
			Level:  int(md.Level),
			Status: memberStatus(md.Status),
		}
		if m.Name == "" {
			m.Name = "Unknown"
		}
		if md.LastAction != nil && md.LastAction.Timestamp > 0 {
			m.LastAction = time.Unix(int64(md.LastAction.Timestamp), 0).UTC()
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func memberStatus(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "unknown"
	}
	var obj struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Description != "" {
		return obj.Description
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}
	return "unknown"
}

// UserBounties fetches the postings currently listed on one player.
// An empty list (or upstream 404) yields a nil slice and no error.
func (c *Client) UserBounties(ctx context.Context, userID int64) ([]torn.Bounty, error) {
	body, err := c.Get(ctx, fmt.Sprintf("/v2/user/%d/bounties", userID), nil)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var payload struct {
		Bounties json.RawMessage `json:"bounties"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("tornapi: decode bounties: %w", err)
	}

	var out []torn.Bounty
	for _, raw := range itemList(payload.Bounties) {
		var bd struct {
			TargetID   flexInt64 `json:"target_id"`
			TargetName string    `json:"target_name"`
			Reward     flexInt64 `json:"reward"`
			Quantity   flexInt64 `json:"quantity"`
			ListerID   flexInt64 `json:"lister_id"`
			ListerName string    `json:"lister_name"`
			Anonymous  bool      `json:"is_anonymous"`
			Reason     string    `json:"reason"`
			Posted     flexInt64 `json:"posted"`
		}
		if err := json.Unmarshal(raw, &bd); err != nil {
			c.log.Debug("skipping malformed bounty record", logx.Int64("user_id", userID))
			continue
		}
		b := torn.Bounty{
			TargetID:   int64(bd.TargetID),
			TargetName: bd.TargetName,
			Reward:     int64(bd.Reward),
			Quantity:   int(bd.Quantity),
			ListerID:   int64(bd.ListerID),
			ListerName: bd.ListerName,
			Anonymous:  bd.Anonymous,
			Reason:     bd.Reason,
		}
		if b.TargetID == 0 {
			b.TargetID = userID
		}
		if b.Quantity <= 0 {
			b.Quantity = 1
		}
		if bd.Posted > 0 {
			b.Posted = time.Unix(int64(bd.Posted), 0).UTC()
		}
		out = append(out, b)
	}
	return out, nil
}

// Chains fetches the most recent completed chains, newest first.
func (c *Client) Chains(ctx context.Context, limit int) ([]torn.Chain, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	q.Set("sort", "DESC")
	body, err := c.Get(ctx, "/v2/faction/chains", q)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Chains []struct {
			ID      flexInt64 `json:"id"`
			Chain   flexInt64 `json:"chain"`
			Respect float64   `json:"respect"`
			Start   flexInt64 `json:"start"`
			End     flexInt64 `json:"end"`
		} `json:"chains"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("tornapi: decode chains: %w", err)
	}

	out := make([]torn.Chain, 0, len(payload.Chains))
	for _, cd := range payload.Chains {
		out = append(out, torn.Chain{
			ID:      int64(cd.ID),
			Length:  int(cd.Chain),
			Respect: cd.Respect,
			Start:   int64(cd.Start),
			End:     int64(cd.End),
		})
	}
	return out, nil
}

// LastAttack fetches the most recent entry from the faction attack log.
// Returns ErrNotFound when the log is empty.
func (c *Client) LastAttack(ctx context.Context) (*torn.Attack, error) {
	q := url.Values{}
	q.Set("limit", "1")
	q.Set("sort", "DESC")
	body, err := c.Get(ctx, "/v2/faction/attacksfull", q)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Attacks []struct {
			ID       json.Number `json:"id"`
			Attacker *struct {
				ID        flexInt64 `json:"id"`
				FactionID flexInt64 `json:"faction_id"`
			} `json:"attacker"`
			Defender *struct {
				ID        flexInt64 `json:"id"`
				FactionID flexInt64 `json:"faction_id"`
			} `json:"defender"`
			Result      string    `json:"result"`
			RespectGain float64   `json:"respect_gain"`
			RespectLoss float64   `json:"respect_loss"`
			Started     flexInt64 `json:"started"`
			Ended       flexInt64 `json:"ended"`
		} `json:"attacks"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("tornapi: decode attacks: %w", err)
	}
	if len(payload.Attacks) == 0 {
		return nil, ErrNotFound
	}

	ad := payload.Attacks[0]
	if ad.Attacker == nil || ad.Defender == nil {
		return nil, fmt.Errorf("tornapi: attack %s missing attacker or defender", ad.ID.String())
	}
	result := ad.Result
	if result == "" {
		result = "Unknown"
	}
	return &torn.Attack{
		ID:                ad.ID.String(),
		AttackerID:        int64(ad.Attacker.ID),
		AttackerFactionID: int64(ad.Attacker.FactionID),
		DefenderID:        int64(ad.Defender.ID),
		DefenderFactionID: int64(ad.Defender.FactionID),
		Result:            result,
		RespectGain:       ad.RespectGain,
		RespectLoss:       ad.RespectLoss,
		Started:           int64(ad.Started),
		Ended:             int64(ad.Ended),
	}, nil
}

// PlayerName resolves a player's display name.
func (c *Client) PlayerName(ctx context.Context, userID int64) (string, error) {
	q := url.Values{}
	q.Set("selections", "basic")
	body, err := c.Get(ctx, fmt.Sprintf("/v2/user/%d", userID), q)
	if err != nil {
		return "", err
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("tornapi: decode user basic: %w", err)
	}
	if payload.Name == "" {
		return "Unknown", nil
	}
	return payload.Name, nil
}

// Armory fetches the faction armory for the given categories (v1 API; the
// categories arrive as top-level keys, each a map or list of items).
func (c *Client) Armory(ctx context.Context, categories []string) (map[string][]torn.StockItem, error) {
	q := url.Values{}
	q.Set("selections", strings.Join(categories, ","))
	body, err := c.Get(ctx, "/faction/", q)
	if err != nil {
		return nil, err
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("tornapi: decode armory: %w", err)
	}

	out := make(map[string][]torn.StockItem, len(categories))
	for _, cat := range categories {
		var items []torn.StockItem
		for _, raw := range itemList(payload[cat]) {
			var it struct {
				Name     string    `json:"name"`
				Quantity flexInt64 `json:"quantity"`
			}
			if err := json.Unmarshal(raw, &it); err != nil {
				continue
			}
			if it.Name == "" {
				it.Name = "Unknown"
			}
			items = append(items, torn.StockItem{Name: it.Name, Quantity: int(it.Quantity)})
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
		out[cat] = items
	}
	return out, nil
}
