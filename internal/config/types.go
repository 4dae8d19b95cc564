package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the whole bot configuration, loaded from YAML or JSON.
// Durations are Go duration strings ("90s", "2m"). Secrets may be left
// empty in the file and supplied via environment variables instead.
type Config struct {
	Log      LogConfig      `json:"log"`
	Torn     TornConfig     `json:"torn"`
	Telegram TelegramConfig `json:"telegram"`
	Chats    ChatsConfig    `json:"chats"`
	Monitors MonitorsConfig `json:"monitors"`
	Digest   DigestConfig   `json:"digest"`
	Metrics  MetricsConfig  `json:"metrics"`

	StateDir    string `json:"state_dir"`
	JournalPath string `json:"journal_path"`
}

type LogConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
	File    string `json:"file"`
}

type TornConfig struct {
	APIKey         string `json:"api_key" env:"TORN_API_KEY"`
	FactionID      int64  `json:"faction_id"`
	RequestSpacing string `json:"request_spacing"`
	CacheTTL       string `json:"cache_ttl"`
	FetchTimeout   string `json:"fetch_timeout"`
}

type TelegramConfig struct {
	Token       string `json:"token" env:"TELEGRAM_BOT_TOKEN"`
	PollTimeout string `json:"poll_timeout"`
}

// ChatsConfig maps each monitor to its output chat. Zero values fall back
// to Default.
type ChatsConfig struct {
	Default int64 `json:"default"`
	War     int64 `json:"war"`
	Bounty  int64 `json:"bounty"`
	Attack  int64 `json:"attack"`
	Chain   int64 `json:"chain"`
	Stock   int64 `json:"stock"`
	Log     int64 `json:"log"`
}

// For returns the chat for a monitor name, falling back to Default.
func (c ChatsConfig) For(name string) int64 {
	var id int64
	switch name {
	case "war":
		id = c.War
	case "bounty":
		id = c.Bounty
	case "attack":
		id = c.Attack
	case "chain":
		id = c.Chain
	case "stock":
		id = c.Stock
	case "log":
		id = c.Log
	}
	if id == 0 {
		return c.Default
	}
	return id
}

type MonitorsConfig struct {
	War    WarMonitorConfig    `json:"war"`
	Bounty BountyMonitorConfig `json:"bounty"`
	Attack AttackMonitorConfig `json:"attack"`
	Chain  ChainMonitorConfig  `json:"chain"`
	Stock  StockMonitorConfig  `json:"stock"`
}

type WarMonitorConfig struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval"`
}

type BountyMonitorConfig struct {
	Enabled   bool   `json:"enabled"`
	Interval  string `json:"interval"`
	Synthetic int    `json:"synthetic"`
}

type AttackMonitorConfig struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval"`
}

type ChainMonitorConfig struct {
	Enabled   bool   `json:"enabled"`
	Interval  string `json:"interval"`
	MinLength int    `json:"min_length"`
}

type StockMonitorConfig struct {
	Enabled    bool     `json:"enabled"`
	Interval   string   `json:"interval"`
	Floor      int      `json:"floor"`
	Categories []string `json:"categories"`
}

type DigestConfig struct {
	Enabled bool   `json:"enabled"`
	Cron    string `json:"cron"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// Validate checks the parts the process cannot run without and fills
// defaults.
func (c *Config) Validate() error {
	var errs []string
	if strings.TrimSpace(c.Torn.APIKey) == "" {
		errs = append(errs, "torn.api_key is required (file or TORN_API_KEY)")
	}
	if c.Torn.FactionID <= 0 {
		errs = append(errs, "torn.faction_id is required")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, "telegram.token is required (file or TELEGRAM_BOT_TOKEN)")
	}
	if c.Chats.Default == 0 {
		errs = append(errs, "chats.default is required")
	}
	for _, f := range []struct {
		path string
		raw  string
	}{
		{"torn.request_spacing", c.Torn.RequestSpacing},
		{"torn.cache_ttl", c.Torn.CacheTTL},
		{"torn.fetch_timeout", c.Torn.FetchTimeout},
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"monitors.war.interval", c.Monitors.War.Interval},
		{"monitors.bounty.interval", c.Monitors.Bounty.Interval},
		{"monitors.attack.interval", c.Monitors.Attack.Interval},
		{"monitors.chain.interval", c.Monitors.Chain.Interval},
		{"monitors.stock.interval", c.Monitors.Stock.Interval},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Addr) == "" {
		errs = append(errs, "metrics.addr is required when metrics.enabled")
	}
	if c.StateDir == "" {
		c.StateDir = "data"
	}
	if c.Digest.Enabled && strings.TrimSpace(c.Digest.Cron) == "" {
		c.Digest.Cron = "0 8 * * *"
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.New("invalid config: " + strings.Join(errs, "; "))
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
