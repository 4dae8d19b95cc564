// Package notify turns monitor findings into chat messages, preferring an
// in-place edit over a fresh post whenever a previous card still exists.
package notify

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"factionwatch/internal/store"
	"factionwatch/internal/transport/telegram"
	"factionwatch/pkg/logx"
)

// Chat is the transport surface the publisher needs. Satisfied by
// *telegram.Adapter.
type Chat interface {
	Send(ctx context.Context, chatID int64, html string) (telegram.MessageRef, error)
	Edit(ctx context.Context, ref telegram.MessageRef, html string) error
}

// Recorder counts surfaced notifications. Optional.
type Recorder interface {
	Published(monitor, kind string)
}

type Publisher struct {
	chat    Chat
	lim     *rate.Limiter
	journal *store.Journal
	log     logx.Logger
	rec     Recorder
}

// New builds a publisher. journal may be nil. Outgoing messages are spaced
// to stay under Telegram's per-chat flood limit.
func New(chat Chat, journal *store.Journal, log logx.Logger) *Publisher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Publisher{
		chat:    chat,
		lim:     rate.NewLimiter(rate.Every(time.Second), 1),
		journal: journal,
		log:     log,
	}
}

// Publish posts a new card.
func (p *Publisher) Publish(ctx context.Context, monitor, subject string, chatID int64, html string) (telegram.MessageRef, error) {
	if err := p.lim.Wait(ctx); err != nil {
		return telegram.MessageRef{}, err
	}
	ref, err := p.chat.Send(ctx, chatID, html)
	if err != nil {
		return telegram.MessageRef{}, err
	}
	p.record(ctx, monitor, "published", subject, "")
	return ref, nil
}

// Update rewrites an existing card in place. When the old message is gone it
// falls back to a fresh post; the returned ref is whichever message now holds
// the card, and republished reports whether the fallback fired.
//
// ref.ChatID names the destination even when no message exists yet: a ref
// with a zero MessageID means "no card yet, post one to ref.ChatID", so
// callers must always fill ChatID in.
func (p *Publisher) Update(ctx context.Context, monitor, subject string, ref telegram.MessageRef, html string) (newRef telegram.MessageRef, republished bool, err error) {
	if ref.IsZero() {
		r, err := p.Publish(ctx, monitor, subject, ref.ChatID, html)
		return r, true, err
	}
	if err := p.lim.Wait(ctx); err != nil {
		return ref, false, err
	}
	err = p.chat.Edit(ctx, ref, html)
	if errors.Is(err, telegram.ErrMessageGone) {
		p.log.Warn("card gone, republishing",
			logx.String("monitor", monitor),
			logx.String("subject", subject))
		r, err := p.Publish(ctx, monitor, subject, ref.ChatID, html)
		if err != nil {
			return ref, false, err
		}
		p.record(ctx, monitor, "republished", subject, "")
		return r, true, nil
	}
	if err != nil {
		return ref, false, err
	}
	p.record(ctx, monitor, "updated", subject, "")
	return ref, false, nil
}

// SetRecorder attaches a notification counter. Call before the monitors
// start.
func (p *Publisher) SetRecorder(r Recorder) { p.rec = r }

func (p *Publisher) record(ctx context.Context, monitor, kind, subject, detail string) {
	if p.rec != nil {
		p.rec.Published(monitor, kind)
	}
	if err := p.journal.Append(ctx, store.Event{
		Monitor: monitor,
		Kind:    kind,
		Subject: subject,
		Detail:  detail,
	}); err != nil {
		p.log.Warn("journal append failed", logx.String("monitor", monitor), logx.Err(err))
	}
}
