// Package war watches the faction's ranked war and keeps one chat card per
// war id up to date.
package war

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"factionwatch/internal/monitor"
	"factionwatch/internal/notify"
	"factionwatch/internal/store"
	"factionwatch/internal/torn"
	"factionwatch/internal/tornapi"
	"factionwatch/internal/transport/telegram"
	"factionwatch/pkg/logx"
	"factionwatch/pkg/tgui"
)

const barLength = 10

// API is the slice of the Torn client this monitor uses.
type API interface {
	RankedWar(ctx context.Context, now time.Time) (*torn.War, error)
}

type Config struct {
	FactionID int64
	ChatID    int64
	Interval  time.Duration
}

// state is the persisted per-war bookkeeping. One war id owns one card.
type state struct {
	CurrentWarID int64     `json:"current_war_id"`
	MessageID    int       `json:"message_id"`
	ChatID       int64     `json:"chat_id"`
	FinalPosted  bool      `json:"final_posted"`
	LastUpdate   time.Time `json:"last_update"`
	TotalCycles  int64     `json:"total_cycles"`
}

type Monitor struct {
	cfg  Config
	api  API
	pub  *notify.Publisher
	file *store.File
	log  logx.Logger
	now  func() time.Time

	st         state
	loaded     bool
	authNoted  bool
	lastWar    *torn.War
	lastStatus torn.WarStatus
}

func New(cfg Config, api API, pub *notify.Publisher, file *store.File, log logx.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 120 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Monitor{cfg: cfg, api: api, pub: pub, file: file, log: log, now: time.Now}
}

func (m *Monitor) Name() string            { return "war" }
func (m *Monitor) Interval() time.Duration { return m.cfg.Interval }

func (m *Monitor) Cycle(ctx context.Context) error {
	if err := m.ensureLoaded(); err != nil {
		return err
	}
	now := m.now()

	war, err := m.api.RankedWar(ctx, now)
	switch {
	case errors.Is(err, tornapi.ErrNotFound):
		// No ranked war is a valid quiet state, not a failure.
		m.lastWar, m.lastStatus = nil, torn.WarNotFound
		return m.finishCycle(ctx, now)
	case tornapi.IsAuthError(err):
		m.noteAuthFailure(ctx, err)
		return monitor.Halt(err)
	case err != nil:
		return fmt.Errorf("fetch ranked war: %w", err)
	}

	m.lastWar, m.lastStatus = war, war.Status
	if war.Status == torn.WarInsufficient {
		m.log.Warn("war payload has fewer than two factions", logx.Int64("war_id", war.ID))
		return m.finishCycle(ctx, now)
	}

	subject := strconv.FormatInt(war.ID, 10)
	html := m.render(war, now)

	if war.ID != m.st.CurrentWarID {
		// Brand-new war: drop the old card association and post fresh.
		ref, err := m.pub.Publish(ctx, m.Name(), subject, m.cfg.ChatID, html)
		if err != nil {
			return fmt.Errorf("publish war card: %w", err)
		}
		m.st = state{
			CurrentWarID: war.ID,
			MessageID:    ref.MessageID,
			ChatID:       ref.ChatID,
			TotalCycles:  m.st.TotalCycles,
		}
		return m.finishCycle(ctx, now)
	}

	if m.st.FinalPosted && war.Status == torn.WarEnded {
		// Final card already written; leave it alone until the id changes.
		return m.finishCycle(ctx, now)
	}

	ref := telegram.MessageRef{ChatID: m.st.ChatID, MessageID: m.st.MessageID}
	newRef, _, err := m.pub.Update(ctx, m.Name(), subject, ref, html)
	if err != nil {
		return fmt.Errorf("update war card: %w", err)
	}
	m.st.MessageID = newRef.MessageID
	m.st.ChatID = newRef.ChatID
	if war.Status == torn.WarEnded {
		m.st.FinalPosted = true
	}
	return m.finishCycle(ctx, now)
}

func (m *Monitor) Close(ctx context.Context) error {
	if !m.loaded {
		return nil
	}
	return m.file.Save(m.st)
}

// Snapshot returns the current war for on-demand rendering (/war command).
func (m *Monitor) Snapshot() (*torn.War, torn.WarStatus) {
	return m.lastWar, m.lastStatus
}

// RenderCurrent formats the last fetched war for an on-demand reply.
func (m *Monitor) RenderCurrent() string {
	if m.lastWar == nil {
		return "No ranked war right now."
	}
	return m.render(m.lastWar, m.now())
}

func (m *Monitor) ensureLoaded() error {
	if m.loaded {
		return nil
	}
	if _, err := m.file.Load(&m.st); err != nil {
		return fmt.Errorf("load war state: %w", err)
	}
	m.loaded = true
	return nil
}

func (m *Monitor) finishCycle(ctx context.Context, now time.Time) error {
	m.st.LastUpdate = now
	m.st.TotalCycles++
	if err := m.file.Save(m.st); err != nil {
		return fmt.Errorf("save war state: %w", err)
	}
	return nil
}

func (m *Monitor) noteAuthFailure(ctx context.Context, err error) {
	if m.authNoted {
		return
	}
	m.authNoted = true
	msg := "<b>War monitor stopped:</b> the API rejected our key. Check the configuration."
	if _, perr := m.pub.Publish(ctx, m.Name(), "auth", m.cfg.ChatID, msg); perr != nil {
		m.log.Error("failed to report auth failure", logx.Err(perr))
	}
}

func (m *Monitor) render(w *torn.War, now time.Time) string {
	us, _ := w.Us(m.cfg.FactionID)
	them, _ := w.Opponent(m.cfg.FactionID)

	var b strings.Builder
	switch w.Status {
	case torn.WarScheduled:
		b.WriteString("⏳ <b>WAR SCHEDULED</b>\n")
	case torn.WarActive:
		b.WriteString("⚔️ <b>WAR STARTED</b>\n")
	case torn.WarEnded:
		b.WriteString("🏁 <b>WAR ENDED</b>\n")
	default:
		b.WriteString("<b>RANKED WAR</b>\n")
	}

	fmt.Fprintf(&b, "%s [%s] vs %s [%s]\n",
		tgui.B(nameOr(us.Name)), tgui.Esc(tagOr(us.Tag)),
		tgui.B(nameOr(them.Name)), tgui.Esc(tagOr(them.Tag)))
	fmt.Fprintf(&b, "Score: <b>%s</b> : <b>%s</b> (target %s)\n",
		torn.FormatNumber(us.Score), torn.FormatNumber(them.Score), torn.FormatNumber(w.Target))
	fmt.Fprintf(&b, "%s\n", torn.ProgressBar(us.Score, w.Target, barLength))

	switch w.Status {
	case torn.WarScheduled:
		fmt.Fprintf(&b, "Starts in %s\n", torn.FormatDelta(time.Unix(w.Start, 0).Sub(now)))
	case torn.WarActive:
		if w.End > 0 {
			fmt.Fprintf(&b, "Ends in %s\n", torn.FormatDelta(time.Unix(w.End, 0).Sub(now)))
		} else {
			b.WriteString("Active, no known end\n")
		}
	case torn.WarEnded:
		b.WriteString("Ended\n")
	}

	fmt.Fprintf(&b, "%s · war #%d · %s",
		tgui.Link("opponent profile", torn.FactionURL(them.ID)), w.ID, now.UTC().Format("15:04 MST"))
	return b.String()
}

func nameOr(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func tagOr(s string) string {
	if s == "" {
		return "?"
	}
	return s
}
