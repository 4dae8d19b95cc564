// Package stock watches armory quantities and alerts when categories run
// low.
package stock

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
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

type API interface {
	Armory(ctx context.Context, categories []string) (map[string][]torn.StockItem, error)
}

type Config struct {
	ChatID     int64
	Interval   time.Duration
	Categories []string
	Floor      int
}

type state struct {
	LastAlertSig string    `json:"last_alert_sig"`
	LastUpdate   time.Time `json:"last_update"`
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
		cfg.Interval = 3600 * time.Second
	}
	if cfg.Floor <= 0 {
		cfg.Floor = 50
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = []string{"medical", "drugs", "boosters"}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Monitor{cfg: cfg, api: api, pub: pub, file: file, log: log}
}

func (m *Monitor) Name() string            { return "stock" }
func (m *Monitor) Interval() time.Duration { return m.cfg.Interval }

func (m *Monitor) Cycle(ctx context.Context) error {
	if !m.loaded {
		if _, err := m.file.Load(&m.st); err != nil {
			return fmt.Errorf("load stock state: %w", err)
		}
		m.loaded = true
	}

	stock, err := m.api.Armory(ctx, m.cfg.Categories)
	switch {
	case err == nil:
	case tornapi.IsAuthError(err):
		return monitor.Halt(err)
	default:
		return fmt.Errorf("fetch armory: %w", err)
	}

	low := m.lowItems(stock)
	sig := signature(low)
	if sig == m.st.LastAlertSig {
		// Same picture as last alert, nothing worth repeating.
		return nil
	}
	if len(low) == 0 && m.st.LastAlertSig == "" {
		// First cycle with a healthy armory: seed silently, do not post an
		// all-clear for an alert that never happened.
		m.st.LastAlertSig = sig
		return m.file.Save(m.st)
	}

	var html string
	if len(low) == 0 {
		html = "💊 Armory back above floor in all watched categories."
	} else {
		var b strings.Builder
		fmt.Fprintf(&b, "⚠️ <b>Armory running low</b> (floor %d)\n", m.cfg.Floor)
		for _, l := range low {
			fmt.Fprintf(&b, "%s: %s at %d\n", l.category, tgui.B(l.item.Name), l.item.Quantity)
		}
		html = strings.TrimRight(b.String(), "\n")
	}
	if _, err := m.pub.Publish(ctx, m.Name(), sig, m.cfg.ChatID, html); err != nil {
		return fmt.Errorf("publish stock card: %w", err)
	}

	m.st.LastAlertSig = sig
	m.st.LastUpdate = time.Now()
	if err := m.file.Save(m.st); err != nil {
		return fmt.Errorf("save stock state: %w", err)
	}
	return nil
}

func (m *Monitor) Close(ctx context.Context) error {
	if !m.loaded {
		return nil
	}
	return m.file.Save(m.st)
}

type lowItem struct {
	category string
	item     torn.StockItem
}

func (m *Monitor) lowItems(stock map[string][]torn.StockItem) []lowItem {
	var out []lowItem
	cats := make([]string, 0, len(stock))
	for c := range stock {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		for _, it := range stock[c] {
			if it.Quantity < m.cfg.Floor {
				out = append(out, lowItem{category: c, item: it})
			}
		}
	}
	return out
}

// signature fingerprints the low set so an unchanged situation is not
// re-alerted every cycle.
func signature(low []lowItem) string {
	h := fnv.New64a()
	for _, l := range low {
		fmt.Fprintf(h, "%s|%s|%d;", l.category, l.item.Name, l.item.Quantity)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
