package chain

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"factionwatch/internal/notify"
	"factionwatch/internal/store"
	"factionwatch/internal/torn"
	"factionwatch/internal/transport/telegram"
	"factionwatch/pkg/logx"
)

type fakeAPI struct {
	chains []torn.Chain
}

func (f *fakeAPI) Chains(ctx context.Context, limit int) ([]torn.Chain, error) {
	return f.chains, nil
}

type fakeChat struct {
	nextID int
	sends  []string
}

func (f *fakeChat) Send(ctx context.Context, chatID int64, html string) (telegram.MessageRef, error) {
	f.nextID++
	f.sends = append(f.sends, html)
	return telegram.MessageRef{ChatID: chatID, MessageID: f.nextID}, nil
}

func (f *fakeChat) Edit(ctx context.Context, ref telegram.MessageRef, html string) error {
	return nil
}

func newTestMonitor(t *testing.T, api API, chat *fakeChat) *Monitor {
	t.Helper()
	file := store.NewFile(filepath.Join(t.TempDir(), "chain.json"))
	pub := notify.New(chat, nil, logx.Nop())
	return New(Config{ChatID: -500, MinLength: 25}, api, pub, file, logx.Nop())
}

// The first cycle seeds the last-seen id without replaying history.
func TestFirstCycleSeedsSilently(t *testing.T) {
	api := &fakeAPI{chains: []torn.Chain{{ID: 5, Length: 100, Respect: 250}}}
	chat := &fakeChat{}
	m := newTestMonitor(t, api, chat)

	if err := m.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(chat.sends) != 0 {
		t.Fatalf("seeding cycle should not post, got %d sends", len(chat.sends))
	}
	if m.st.LastChainID != 5 {
		t.Fatalf("seed id wrong: %+v", m.st)
	}
}

func TestNewLongChainPostsOnce(t *testing.T) {
	api := &fakeAPI{chains: []torn.Chain{{ID: 5, Length: 100}}}
	chat := &fakeChat{}
	m := newTestMonitor(t, api, chat)

	ctx := context.Background()
	if err := m.Cycle(ctx); err != nil {
		t.Fatalf("seed cycle: %v", err)
	}
	api.chains = []torn.Chain{
		{ID: 7, Length: 50, Respect: 120},
		{ID: 6, Length: 10}, // below floor, skipped
		{ID: 5, Length: 100},
	}
	if err := m.Cycle(ctx); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	if err := m.Cycle(ctx); err != nil {
		t.Fatalf("cycle 3: %v", err)
	}

	if len(chat.sends) != 1 {
		t.Fatalf("expected exactly 1 post, got %d", len(chat.sends))
	}
	if !strings.Contains(chat.sends[0], "Chain of 50") {
		t.Fatalf("unexpected card:\n%s", chat.sends[0])
	}
}
