package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"factionwatch/internal/monitor/bounty"
	"factionwatch/pkg/logx"
)

// registerCommands wires the thin on-demand handlers. All heavy lifting
// lives in the monitors; these only render snapshots.
func (a *App) registerCommands() {
	a.adapter.OnCommand("/war", func(ctx context.Context, chatID int64, args string) (string, error) {
		if a.warMon == nil {
			return "War monitor is disabled.", nil
		}
		return a.warMon.RenderCurrent(), nil
	})

	a.adapter.OnCommand("/bounties", func(ctx context.Context, chatID int64, args string) (string, error) {
		if a.bountyMon == nil {
			return "Bounty monitor is disabled.", nil
		}
		limit := 10
		if args != "" {
			n, err := strconv.Atoi(args)
			if err != nil || n <= 0 {
				return "Usage: /bounties [count]", nil
			}
			limit = n
		}
		found := a.bountyMon.LastFound(limit)
		if len(found) == 0 {
			return "No bounties found recently.", nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "💰 <b>Last found bounties</b>\n")
		for i := range found {
			b.WriteString(bounty.RenderLine(&found[i]))
			b.WriteByte('\n')
		}
		return strings.TrimRight(b.String(), "\n"), nil
	})

	a.adapter.OnCommand("/monitors", func(ctx context.Context, chatID int64, args string) (string, error) {
		var b strings.Builder
		b.WriteString("<b>Monitors</b>\n")
		for _, st := range a.reg.Status() {
			b.WriteString(renderStatus(st.Name, st.Running, st.Halted, st.Cycles, st.Failures, st.LastCycle, st.LastError))
		}
		return strings.TrimRight(b.String(), "\n"), nil
	})
}

func renderStatus(name string, running, halted bool, cycles, failures int64, last time.Time, lastErr string) string {
	mark := "🟢"
	switch {
	case halted:
		mark = "🔴"
	case !running:
		mark = "⚪"
	}
	line := fmt.Sprintf("%s <b>%s</b>: %d cycles, %d failures", mark, name, cycles, failures)
	if !last.IsZero() {
		line += ", last " + last.UTC().Format("15:04:05")
	}
	if lastErr != "" {
		line += "\n    " + lastErr
	}
	return line + "\n"
}

// postDigest publishes the once-a-day summary to the log chat.
func (a *App) postDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var b strings.Builder
	fmt.Fprintf(&b, "📋 <b>Daily digest</b> (%s)\n", time.Now().UTC().Format("2006-01-02"))
	for _, st := range a.reg.Status() {
		b.WriteString(renderStatus(st.Name, st.Running, st.Halted, st.Cycles, st.Failures, st.LastCycle, st.LastError))
	}
	msg := strings.TrimRight(b.String(), "\n")

	if _, err := a.pub.Publish(ctx, "digest", time.Now().UTC().Format("2006-01-02"), a.cfg.Chats.For("log"), msg); err != nil {
		a.log.Warn("digest publish failed", logx.Err(err))
	}
}
