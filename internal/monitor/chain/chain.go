// Package chain posts completed hit chains above a length floor.
package chain

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"factionwatch/internal/monitor"
	"factionwatch/internal/notify"
	"factionwatch/internal/store"
	"factionwatch/internal/torn"
	"factionwatch/internal/tornapi"
	"factionwatch/pkg/logx"
)

const fetchLimit = 10

type API interface {
	Chains(ctx context.Context, limit int) ([]torn.Chain, error)
}

type Config struct {
	ChatID    int64
	Interval  time.Duration
	MinLength int
}

type state struct {
	LastChainID int64     `json:"last_chain_id"`
	LastUpdate  time.Time `json:"last_update"`
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
		cfg.Interval = 300 * time.Second
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = 25
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Monitor{cfg: cfg, api: api, pub: pub, file: file, log: log}
}

func (m *Monitor) Name() string            { return "chain" }
func (m *Monitor) Interval() time.Duration { return m.cfg.Interval }

func (m *Monitor) Cycle(ctx context.Context) error {
	if !m.loaded {
		if _, err := m.file.Load(&m.st); err != nil {
			return fmt.Errorf("load chain state: %w", err)
		}
		m.loaded = true
	}

	chains, err := m.api.Chains(ctx, fetchLimit)
	switch {
	case err == nil:
	case tornapi.IsAuthError(err):
		return monitor.Halt(err)
	default:
		return fmt.Errorf("fetch chains: %w", err)
	}

	maxID := m.st.LastChainID
	seeding := m.st.LastChainID == 0
	for _, c := range chains {
		if c.ID > maxID {
			maxID = c.ID
		}
		if seeding || c.ID <= m.st.LastChainID || c.Length < m.cfg.MinLength {
			continue
		}
		html := fmt.Sprintf("🔗 <b>Chain of %d</b> completed, %.2f respect",
			c.Length, c.Respect)
		if _, err := m.pub.Publish(ctx, m.Name(), strconv.FormatInt(c.ID, 10), m.cfg.ChatID, html); err != nil {
			return fmt.Errorf("publish chain card: %w", err)
		}
	}

	if maxID != m.st.LastChainID {
		m.st.LastChainID = maxID
		m.st.LastUpdate = time.Now()
		if err := m.file.Save(m.st); err != nil {
			return fmt.Errorf("save chain state: %w", err)
		}
	}
	return nil
}

func (m *Monitor) Close(ctx context.Context) error {
	if !m.loaded {
		return nil
	}
	return m.file.Save(m.st)
}
