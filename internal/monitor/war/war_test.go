package war

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"factionwatch/internal/monitor"
	"factionwatch/internal/notify"
	"factionwatch/internal/store"
	"factionwatch/internal/torn"
	"factionwatch/internal/tornapi"
	"factionwatch/internal/transport/telegram"
	"factionwatch/pkg/logx"
)

type fakeAPI struct {
	war *torn.War
	err error
}

func (f *fakeAPI) RankedWar(ctx context.Context, now time.Time) (*torn.War, error) {
	if f.err != nil {
		return nil, f.err
	}
	w := *f.war
	w.Status = torn.ClassifyWar(&w, now)
	return &w, nil
}

type fakeChat struct {
	nextID  int
	sends   []string
	edits   []string
	editErr error
}

func (f *fakeChat) Send(ctx context.Context, chatID int64, html string) (telegram.MessageRef, error) {
	f.nextID++
	f.sends = append(f.sends, html)
	return telegram.MessageRef{ChatID: chatID, MessageID: f.nextID}, nil
}

func (f *fakeChat) Edit(ctx context.Context, ref telegram.MessageRef, html string) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, html)
	return nil
}

func newTestMonitor(t *testing.T, api *fakeAPI, chat *fakeChat) *Monitor {
	t.Helper()
	file := store.NewFile(filepath.Join(t.TempDir(), "war.json"))
	pub := notify.New(chat, nil, logx.Nop())
	m := New(Config{FactionID: 100, ChatID: -500}, api, pub, file, logx.Nop())
	m.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return m
}

func activeWar(id int64, now time.Time) *torn.War {
	return &torn.War{
		ID:     id,
		Target: 5000,
		Start:  now.Add(-10 * time.Second).Unix(),
		Factions: []torn.Faction{
			{ID: 100, Name: "Us", Tag: "US", Score: 1200},
			{ID: 200, Name: "Them", Tag: "TH", Score: 900},
		},
	}
}

// First sight of an active war publishes a started banner and persists the
// war id and message id.
func TestNewActiveWarPublishes(t *testing.T) {
	api := &fakeAPI{}
	chat := &fakeChat{}
	m := newTestMonitor(t, api, chat)
	api.war = activeWar(101, m.now())

	if err := m.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(chat.sends) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(chat.sends))
	}
	if !strings.Contains(chat.sends[0], "WAR STARTED") {
		t.Fatalf("expected started banner, got:\n%s", chat.sends[0])
	}

	var st state
	found, err := m.file.Load(&st)
	if err != nil || !found {
		t.Fatalf("state not persisted: found=%v err=%v", found, err)
	}
	if st.CurrentWarID != 101 || st.MessageID == 0 {
		t.Fatalf("persisted state incomplete: %+v", st)
	}
}

// Same war id on the next cycle edits in place, no new publish.
func TestSameWarEditsInPlace(t *testing.T) {
	api := &fakeAPI{}
	chat := &fakeChat{}
	m := newTestMonitor(t, api, chat)
	api.war = activeWar(101, m.now())

	ctx := context.Background()
	if err := m.Cycle(ctx); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	api.war.Factions[0].Score = 1500
	if err := m.Cycle(ctx); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}

	if len(chat.sends) != 1 {
		t.Fatalf("expected no second publish, got %d sends", len(chat.sends))
	}
	if len(chat.edits) != 1 {
		t.Fatalf("expected 1 edit, got %d", len(chat.edits))
	}
	if !strings.Contains(chat.edits[0], "1,500") {
		t.Fatalf("edit missing refreshed score:\n%s", chat.edits[0])
	}
}

// A deleted card falls back to a fresh publish and re-associates.
func TestGoneCardRepublishes(t *testing.T) {
	api := &fakeAPI{}
	chat := &fakeChat{}
	m := newTestMonitor(t, api, chat)
	api.war = activeWar(101, m.now())

	ctx := context.Background()
	if err := m.Cycle(ctx); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	firstID := m.st.MessageID

	chat.editErr = telegram.ErrMessageGone
	if err := m.Cycle(ctx); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	if len(chat.sends) != 2 {
		t.Fatalf("expected republish, got %d sends", len(chat.sends))
	}
	if m.st.MessageID == firstID {
		t.Fatalf("message association not refreshed")
	}
}

// A rejected key posts exactly one notice and halts the loop for good.
func TestAuthFailureNotifiesOnceAndHalts(t *testing.T) {
	api := &fakeAPI{err: &tornapi.AuthError{Code: 2, Message: "Incorrect key"}}
	chat := &fakeChat{}
	m := newTestMonitor(t, api, chat)

	ctx := context.Background()
	err := m.Cycle(ctx)
	if !errors.Is(err, monitor.ErrHalt) {
		t.Fatalf("expected halt, got %v", err)
	}
	if len(chat.sends) != 1 || !strings.Contains(chat.sends[0], "rejected our key") {
		t.Fatalf("expected one auth notice, got %q", chat.sends)
	}

	err = m.Cycle(ctx)
	if !errors.Is(err, monitor.ErrHalt) {
		t.Fatalf("expected halt on second cycle, got %v", err)
	}
	if len(chat.sends) != 1 {
		t.Fatalf("auth notice repeated: %d sends", len(chat.sends))
	}
}

// A new war id resets the card association and posts fresh.
func TestNewWarIDResetsCard(t *testing.T) {
	api := &fakeAPI{}
	chat := &fakeChat{}
	m := newTestMonitor(t, api, chat)
	api.war = activeWar(101, m.now())

	ctx := context.Background()
	if err := m.Cycle(ctx); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	api.war = activeWar(102, m.now())
	if err := m.Cycle(ctx); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}

	if len(chat.sends) != 2 {
		t.Fatalf("expected 2 publishes for 2 wars, got %d", len(chat.sends))
	}
	if m.st.CurrentWarID != 102 {
		t.Fatalf("state still on old war: %+v", m.st)
	}
}

// A scheduled war gets the scheduled banner with a countdown.
func TestScheduledWarBanner(t *testing.T) {
	api := &fakeAPI{}
	chat := &fakeChat{}
	m := newTestMonitor(t, api, chat)
	w := activeWar(101, m.now())
	w.Start = m.now().Add(3 * time.Hour).Unix()
	api.war = w

	if err := m.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if !strings.Contains(chat.sends[0], "WAR SCHEDULED") {
		t.Fatalf("expected scheduled banner:\n%s", chat.sends[0])
	}
	if !strings.Contains(chat.sends[0], "Starts in") {
		t.Fatalf("expected countdown:\n%s", chat.sends[0])
	}
}

// After the final ended edit, further cycles leave the card untouched.
func TestEndedWarEditsOnce(t *testing.T) {
	api := &fakeAPI{}
	chat := &fakeChat{}
	m := newTestMonitor(t, api, chat)
	w := activeWar(101, m.now())
	api.war = w

	ctx := context.Background()
	if err := m.Cycle(ctx); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	w.End = m.now().Add(-time.Minute).Unix()
	if err := m.Cycle(ctx); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	if err := m.Cycle(ctx); err != nil {
		t.Fatalf("cycle 3: %v", err)
	}

	if len(chat.edits) != 1 {
		t.Fatalf("expected exactly one ended edit, got %d", len(chat.edits))
	}
	if !strings.Contains(chat.edits[0], "WAR ENDED") {
		t.Fatalf("expected ended banner:\n%s", chat.edits[0])
	}
}
