// Package app wires the bot together: config, logging, the Torn client,
// the monitor registry, chat commands, and the daily digest.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"factionwatch/internal/config"
	"factionwatch/internal/metrics"
	"factionwatch/internal/monitor"
	"factionwatch/internal/monitor/attack"
	"factionwatch/internal/monitor/bounty"
	"factionwatch/internal/monitor/chain"
	"factionwatch/internal/monitor/stock"
	"factionwatch/internal/monitor/war"
	"factionwatch/internal/notify"
	"factionwatch/internal/store"
	"factionwatch/internal/tornapi"
	"factionwatch/internal/transport/telegram"
	"factionwatch/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	cfg    *config.Config

	logs *logx.Service
	log  logx.Logger

	adapter *telegram.Adapter
	client  *tornapi.Client
	journal *store.Journal
	pub     *notify.Publisher
	reg     *monitor.Registry
	prov    *metrics.Provider
	msrv    *metrics.Server
	cron    *cron.Cron

	warMon    *war.Monitor
	bountyMon *bounty.Monitor

	cancel context.CancelFunc
}

func logCfg(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
		File:    logx.FileConfig{Enabled: cfg.Log.File != "", Path: cfg.Log.File},
	}
}

func New(cfgPath string) (*App, error) {
	cfgMgr := config.NewManager(cfgPath)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logCfg(cfg))
	cfgMgr.SetLogger(log.With(logx.String("svc", "config")))

	a := &App{cfgMgr: cfgMgr, cfg: cfg, logs: logs, log: log}
	if err := a.build(); err != nil {
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.cfg

	var obs tornapi.Observer
	if cfg.Metrics.Enabled {
		a.prov = metrics.New(prometheus.DefaultRegisterer)
		a.msrv = metrics.NewServer(cfg.Metrics.Addr, prometheus.DefaultGatherer,
			a.log.With(logx.String("svc", "metrics")))
		obs = a.prov
	}

	spacing, _ := config.ParseDurationOrDefault("torn.request_spacing", cfg.Torn.RequestSpacing, 0)
	cacheTTL, _ := config.ParseDurationOrDefault("torn.cache_ttl", cfg.Torn.CacheTTL, 0)
	fetchTimeout, _ := config.ParseDurationOrDefault("torn.fetch_timeout", cfg.Torn.FetchTimeout, 0)
	client, err := tornapi.New(tornapi.Config{
		APIKey:       cfg.Torn.APIKey,
		Spacing:      spacing,
		CacheTTL:     cacheTTL,
		FetchTimeout: fetchTimeout,
	}, a.log.With(logx.String("svc", "tornapi")), obs)
	if err != nil {
		return err
	}
	a.client = client

	pollTimeout, _ := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 0)
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, a.log.With(logx.String("svc", "telegram")))
	if err != nil {
		return err
	}
	a.adapter = adapter

	if cfg.JournalPath != "" {
		j, err := store.OpenJournal(cfg.JournalPath, a.log.With(logx.String("svc", "journal")))
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		a.journal = j
	}

	a.pub = notify.New(adapter, a.journal, a.log.With(logx.String("svc", "notify")))
	if a.prov != nil {
		a.pub.SetRecorder(a.prov)
	}

	var cycleObs monitor.CycleObserver
	if a.prov != nil {
		cycleObs = a.prov
	}
	a.reg = monitor.NewRegistry(a.log.With(logx.String("svc", "monitor")), cycleObs)

	stateFile := func(name string) *store.File {
		return store.NewFile(filepath.Join(cfg.StateDir, name+".json"))
	}
	mlog := func(name string) logx.Logger {
		return a.log.With(logx.String("svc", name))
	}

	if cfg.Monitors.War.Enabled {
		iv, _ := config.ParseDurationOrDefault("monitors.war.interval", cfg.Monitors.War.Interval, 0)
		a.warMon = war.New(war.Config{
			FactionID: cfg.Torn.FactionID,
			ChatID:    cfg.Chats.For("war"),
			Interval:  iv,
		}, client, a.pub, stateFile("war"), mlog("war"))
		if err := a.reg.Add(a.warMon); err != nil {
			return err
		}
	}
	if cfg.Monitors.Bounty.Enabled {
		iv, _ := config.ParseDurationOrDefault("monitors.bounty.interval", cfg.Monitors.Bounty.Interval, 0)
		a.bountyMon = bounty.New(bounty.Config{
			ChatID:    cfg.Chats.For("bounty"),
			Interval:  iv,
			Synthetic: cfg.Monitors.Bounty.Synthetic,
		}, client, a.pub, stateFile("bounty"), mlog("bounty"))
		if a.prov != nil {
			a.bountyMon.SetKeyGauge(a.prov)
		}
		if err := a.reg.Add(a.bountyMon); err != nil {
			return err
		}
	}
	if cfg.Monitors.Attack.Enabled {
		iv, _ := config.ParseDurationOrDefault("monitors.attack.interval", cfg.Monitors.Attack.Interval, 0)
		m := attack.New(attack.Config{
			FactionID: cfg.Torn.FactionID,
			ChatID:    cfg.Chats.For("attack"),
			Interval:  iv,
		}, client, a.pub, stateFile("attack"), mlog("attack"))
		if err := a.reg.Add(m); err != nil {
			return err
		}
	}
	if cfg.Monitors.Chain.Enabled {
		iv, _ := config.ParseDurationOrDefault("monitors.chain.interval", cfg.Monitors.Chain.Interval, 0)
		m := chain.New(chain.Config{
			ChatID:    cfg.Chats.For("chain"),
			Interval:  iv,
			MinLength: cfg.Monitors.Chain.MinLength,
		}, client, a.pub, stateFile("chain"), mlog("chain"))
		if err := a.reg.Add(m); err != nil {
			return err
		}
	}
	if cfg.Monitors.Stock.Enabled {
		iv, _ := config.ParseDurationOrDefault("monitors.stock.interval", cfg.Monitors.Stock.Interval, 0)
		m := stock.New(stock.Config{
			ChatID:     cfg.Chats.For("stock"),
			Interval:   iv,
			Categories: cfg.Monitors.Stock.Categories,
			Floor:      cfg.Monitors.Stock.Floor,
		}, client, a.pub, stateFile("stock"), mlog("stock"))
		if err := a.reg.Add(m); err != nil {
			return err
		}
	}

	a.registerCommands()

	if cfg.Digest.Enabled {
		a.cron = cron.New()
		if _, err := a.cron.AddFunc(cfg.Digest.Cron, a.postDigest); err != nil {
			return fmt.Errorf("digest cron %q: %w", cfg.Digest.Cron, err)
		}
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	rctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.msrv != nil {
		a.msrv.Start()
	}
	if err := a.adapter.Start(rctx); err != nil {
		return err
	}
	if err := a.reg.StartAll(rctx); err != nil {
		return err
	}
	if a.cron != nil {
		a.cron.Start()
	}

	go func() {
		if err := a.cfgMgr.Watch(rctx); err != nil {
			a.log.Warn("config watch exited", logx.Err(err))
		}
	}()
	go a.applyLogReloads(rctx)

	sctx, scancel := context.WithTimeout(rctx, 10*time.Second)
	defer scancel()
	if err := a.adapter.SetCommands(sctx, []telegram.Command{
		{Name: "war", Description: "Current ranked war"},
		{Name: "bounties", Description: "Recently found bounties"},
		{Name: "monitors", Description: "Monitor status"},
	}); err != nil {
		a.log.Warn("set commands failed", logx.Err(err))
	}

	a.log.Info("started", logx.Int("monitors", len(a.reg.Names())))
	return nil
}

// applyLogReloads picks up log-section changes from config hot reloads.
// Everything else requires a restart.
func (a *App) applyLogReloads(ctx context.Context) {
	sub := a.cfgMgr.Subscribe(1)
	defer a.cfgMgr.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.logs.Apply(logCfg(cfg))
			a.log.Info("log config applied", logx.String("level", cfg.Log.Level))
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	if err := a.reg.StopAll(ctx); err != nil {
		a.log.Warn("monitor stop failed", logx.Err(err))
	}
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("telegram stop failed", logx.Err(err))
	}
	if a.msrv != nil {
		if err := a.msrv.Stop(ctx); err != nil {
			a.log.Warn("metrics stop failed", logx.Err(err))
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.Warn("journal close failed", logx.Err(err))
		}
	}
	a.log.Info("stopped")
	return a.logs.Close()
}
