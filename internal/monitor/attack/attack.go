// Package attack posts the faction's latest combat event when it changes.
package attack

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"factionwatch/internal/monitor"
	"factionwatch/internal/notify"
	"factionwatch/internal/store"
	"factionwatch/internal/torn"
	"factionwatch/internal/tornapi"
	"factionwatch/pkg/logx"
	"factionwatch/pkg/tgui"
)

type API interface {
	LastAttack(ctx context.Context) (*torn.Attack, error)
	PlayerName(ctx context.Context, userID int64) (string, error)
}

type Config struct {
	FactionID int64
	ChatID    int64
	Interval  time.Duration
}

type state struct {
	LastAttackID string            `json:"last_attack_id"`
	Names        map[string]string `json:"names"` // player id -> display name
	LastUpdate   time.Time         `json:"last_update"`
}

type Monitor struct {
	cfg  Config
	api  API
	pub  *notify.Publisher
	file *store.File
	log  logx.Logger

	st     state
	loaded bool
}

func New(cfg Config, api API, pub *notify.Publisher, file *store.File, log logx.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Monitor{cfg: cfg, api: api, pub: pub, file: file, log: log}
}

func (m *Monitor) Name() string            { return "attack" }
func (m *Monitor) Interval() time.Duration { return m.cfg.Interval }

func (m *Monitor) Cycle(ctx context.Context) error {
	if !m.loaded {
		if _, err := m.file.Load(&m.st); err != nil {
			return fmt.Errorf("load attack state: %w", err)
		}
		if m.st.Names == nil {
			m.st.Names = make(map[string]string)
		}
		m.loaded = true
	}

	atk, err := m.api.LastAttack(ctx)
	switch {
	case err == nil:
	case errors.Is(err, tornapi.ErrNotFound):
		return nil
	case tornapi.IsAuthError(err):
		return monitor.Halt(err)
	default:
		return fmt.Errorf("fetch last attack: %w", err)
	}

	if atk.ID == m.st.LastAttackID {
		return nil
	}
	if m.st.LastAttackID != "" {
		html := m.render(ctx, atk)
		if _, err := m.pub.Publish(ctx, m.Name(), atk.ID, m.cfg.ChatID, html); err != nil {
			return fmt.Errorf("publish attack card: %w", err)
		}
	}
	// First ever cycle just seeds the id so startup doesn't replay history.
	m.st.LastAttackID = atk.ID
	m.st.LastUpdate = time.Now()
	if err := m.file.Save(m.st); err != nil {
		return fmt.Errorf("save attack state: %w", err)
	}
	return nil
}

func (m *Monitor) Close(ctx context.Context) error {
	if !m.loaded {
		return nil
	}
	return m.file.Save(m.st)
}

func (m *Monitor) render(ctx context.Context, atk *torn.Attack) string {
	attacker := m.displayName(ctx, atk.AttackerID)
	defender := m.displayName(ctx, atk.DefenderID)

	verb := "attacked"
	if atk.DefenderFactionID == m.cfg.FactionID {
		verb = "was attacked by"
		attacker, defender = defender, attacker
	}
	line := fmt.Sprintf("🥊 %s %s %s: %s",
		tgui.B(attacker), verb, tgui.B(defender), tgui.Esc(atk.Result))
	if atk.RespectGain > 0 {
		line += fmt.Sprintf(" (+%.2f respect)", atk.RespectGain)
	}
	return line
}

// displayName resolves a player id through the API, memoizing results in
// the persisted name cache.
func (m *Monitor) displayName(ctx context.Context, id int64) string {
	if id == 0 {
		return "someone"
	}
	key := strconv.FormatInt(id, 10)
	if name, ok := m.st.Names[key]; ok {
		return name
	}
	name, err := m.api.PlayerName(ctx, id)
	if err != nil || name == "" {
		m.log.Debug("name lookup failed", logx.Int64("player_id", id), logx.Err(err))
		return "player " + key
	}
	m.st.Names[key] = name
	return name
}
