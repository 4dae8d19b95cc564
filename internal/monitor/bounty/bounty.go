// Package bounty sweeps every faction member for bounty postings and
// surfaces the ones not seen before.
package bounty

import (
	"context"
	"fmt"
	"strings"
	"time"

	"factionwatch/internal/monitor"
	"factionwatch/internal/notify"
	"factionwatch/internal/store"
	"factionwatch/internal/torn"
	"factionwatch/internal/tornapi"
	"factionwatch/pkg/logx"
	"factionwatch/pkg/tgui"
)

const (
	defaultInterval  = 300 * time.Second
	maxKnownKeys     = 10000
	trimKnownKeysTo  = 5000
	heartbeatEvery   = 12
	progressEvery    = 10
	maxListedPerCard = 10
)

// API is the slice of the Torn client this monitor uses.
type API interface {
	Members(ctx context.Context) ([]torn.Member, error)
	UserBounties(ctx context.Context, userID int64) ([]torn.Bounty, error)
}

// KeyGauge reports the tracked dedup key count. Optional.
type KeyGauge interface {
	SetKnownKeys(n int)
}

type Config struct {
	ChatID   int64
	Interval time.Duration

	// Synthetic > 0 fabricates that many deterministic postings instead of
	// calling the API, to exercise the notification path end to end.
	Synthetic int
}

// cache is the persisted dedup state. KnownKeys keeps insertion order so
// the trim drops the oldest-inserted entries rather than arbitrary ones.
type cache struct {
	KnownKeys   []string  `json:"known_keys"`
	TotalFound  int64     `json:"total_found"`
	TotalChecks int64     `json:"total_checks"`
	LastCheck   time.Time `json:"last_check"`
}

type Monitor struct {
	cfg   Config
	api   API
	pub   *notify.Publisher
	file  *store.File
	log   logx.Logger
	gauge KeyGauge
	now   func() time.Time

	st        cache
	seen      map[string]struct{}
	loaded    bool
	authNoted bool
	cycleN    int64
	lastFound []torn.Bounty
}

func New(cfg Config, api API, pub *notify.Publisher, file *store.File, log logx.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Monitor{cfg: cfg, api: api, pub: pub, file: file, log: log, now: time.Now}
}

// SetKeyGauge attaches a gauge for the tracked key count.
func (m *Monitor) SetKeyGauge(g KeyGauge) { m.gauge = g }

func (m *Monitor) Name() string            { return "bounty" }
func (m *Monitor) Interval() time.Duration { return m.cfg.Interval }

func (m *Monitor) Cycle(ctx context.Context) error {
	if err := m.ensureLoaded(); err != nil {
		return err
	}
	m.cycleN++

	found, err := m.collect(ctx)
	if err != nil {
		return err
	}

	// Collapse within-cycle duplicates too: the same posting can surface
	// twice in one sweep, and keys only enter the persisted set after the
	// publish succeeded.
	fresh := make([]torn.Bounty, 0, len(found))
	cycleSeen := make(map[string]struct{}, len(found))
	for i := range found {
		k := found[i].DedupKey()
		if _, ok := m.seen[k]; ok {
			continue
		}
		if _, ok := cycleSeen[k]; ok {
			continue
		}
		cycleSeen[k] = struct{}{}
		fresh = append(fresh, found[i])
	}

	if len(fresh) > 0 {
		html := renderCard(fresh)
		if _, err := m.pub.Publish(ctx, m.Name(), fmt.Sprintf("batch-%d", m.cycleN), m.cfg.ChatID, html); err != nil {
			return fmt.Errorf("publish bounty card: %w", err)
		}
		m.lastFound = fresh
	} else if m.cycleN%heartbeatEvery == 0 {
		// Coarse heartbeat so a quiet feed is distinguishable from a broken one.
		hb := fmt.Sprintf("🕵️ Bounty sweep: no new postings (%s checks total).",
			torn.FormatNumber(m.st.TotalChecks+1))
		if _, err := m.pub.Publish(ctx, m.Name(), "heartbeat", m.cfg.ChatID, hb); err != nil {
			m.log.Warn("heartbeat publish failed", logx.Err(err))
		}
	}

	// Keys are recorded only after the publish succeeded, so a crash in
	// between re-notifies rather than silently dropping.
	for i := range fresh {
		m.remember(fresh[i].DedupKey())
	}
	m.trim()
	if m.gauge != nil {
		m.gauge.SetKnownKeys(len(m.st.KnownKeys))
	}

	m.st.TotalFound += int64(len(fresh))
	m.st.TotalChecks++
	m.st.LastCheck = m.now()
	if err := m.file.Save(m.st); err != nil {
		return fmt.Errorf("save bounty cache: %w", err)
	}
	return nil
}

func (m *Monitor) Close(ctx context.Context) error {
	if !m.loaded {
		return nil
	}
	return m.file.Save(m.st)
}

// LastFound returns the most recent batch of fresh postings, newest cycle
// first, for the /bounties command.
func (m *Monitor) LastFound(limit int) []torn.Bounty {
	if limit <= 0 || limit > len(m.lastFound) {
		limit = len(m.lastFound)
	}
	return m.lastFound[:limit]
}

func (m *Monitor) collect(ctx context.Context) ([]torn.Bounty, error) {
	if m.cfg.Synthetic > 0 {
		return syntheticBounties(m.cfg.Synthetic), nil
	}

	members, err := m.api.Members(ctx)
	if tornapi.IsAuthError(err) {
		m.noteAuthFailure(ctx, err)
		return nil, monitor.Halt(err)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch members: %w", err)
	}

	var found []torn.Bounty
	for i, mem := range members {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bs, err := m.api.UserBounties(ctx, mem.ID)
		if err != nil {
			// One member's failure never aborts the sweep.
			m.log.Warn("bounty fetch failed",
				logx.Int64("member_id", mem.ID),
				logx.String("member", mem.Name),
				logx.Err(err))
			continue
		}
		found = append(found, bs...)
		if (i+1)%progressEvery == 0 {
			m.log.Debug("bounty sweep progress",
				logx.Int("checked", i+1),
				logx.Int("of", len(members)),
				logx.Int("found", len(found)))
		}
	}
	return found, nil
}

func (m *Monitor) ensureLoaded() error {
	if m.loaded {
		return nil
	}
	if _, err := m.file.Load(&m.st); err != nil {
		return fmt.Errorf("load bounty cache: %w", err)
	}
	m.seen = make(map[string]struct{}, len(m.st.KnownKeys))
	for _, k := range m.st.KnownKeys {
		m.seen[k] = struct{}{}
	}
	m.loaded = true
	return nil
}

func (m *Monitor) remember(key string) {
	if _, ok := m.seen[key]; ok {
		return
	}
	m.seen[key] = struct{}{}
	m.st.KnownKeys = append(m.st.KnownKeys, key)
}

// trim bounds the key set. Oldest-inserted keys go first; evicted entries
// may re-notify once if the same posting resurfaces, which is accepted.
func (m *Monitor) trim() {
	if len(m.st.KnownKeys) <= maxKnownKeys {
		return
	}
	drop := m.st.KnownKeys[:len(m.st.KnownKeys)-trimKnownKeysTo]
	for _, k := range drop {
		delete(m.seen, k)
	}
	kept := m.st.KnownKeys[len(m.st.KnownKeys)-trimKnownKeysTo:]
	m.st.KnownKeys = append([]string(nil), kept...)
	m.log.Info("trimmed bounty key set",
		logx.Int("dropped", len(drop)),
		logx.Int("kept", len(kept)))
}

func (m *Monitor) noteAuthFailure(ctx context.Context, err error) {
	if m.authNoted {
		return
	}
	m.authNoted = true
	msg := "<b>Bounty monitor stopped:</b> the API rejected our key. Check the configuration."
	if _, perr := m.pub.Publish(ctx, m.Name(), "auth", m.cfg.ChatID, msg); perr != nil {
		m.log.Error("failed to report auth failure", logx.Err(perr))
	}
}

func renderCard(fresh []torn.Bounty) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💰 <b>%d new bounty posting(s)</b>\n", len(fresh))
	for i := range fresh {
		if i >= maxListedPerCard {
			fmt.Fprintf(&b, "… and %d more\n", len(fresh)-maxListedPerCard)
			break
		}
		b.WriteString(RenderLine(&fresh[i]))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderLine formats one posting as a single HTML line. Target names and
// reasons come from upstream and are escaped.
func RenderLine(bn *torn.Bounty) string {
	line := fmt.Sprintf("%s: $%s",
		tgui.Link(nameOr(bn.TargetName), torn.ProfileURL(bn.TargetID)),
		torn.FormatNumber(bn.Reward))
	if bn.Quantity > 1 {
		line += fmt.Sprintf(" x%d", bn.Quantity)
	}
	line += " by " + tgui.Esc(bn.ListerDisplay()).String()
	if r := torn.NormalizeReason(bn.Reason); r != "" {
		line += " (" + tgui.Esc(tgui.TruncRunes(r, 80)).String() + ")"
	}
	return line
}

func nameOr(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// syntheticBounties fabricates deterministic postings so the notification
// path can be exercised without the upstream API.
func syntheticBounties(n int) []torn.Bounty {
	out := make([]torn.Bounty, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, torn.Bounty{
			TargetID:   int64(1000 + i),
			TargetName: fmt.Sprintf("Synthetic%d", i),
			Reward:     int64(100000 * (i + 1)),
			Quantity:   1,
			Anonymous:  i%2 == 0,
			ListerID:   int64(2000 + i),
			ListerName: fmt.Sprintf("Lister%d", i),
			Reason:     "synthetic test posting",
		})
	}
	return out
}
