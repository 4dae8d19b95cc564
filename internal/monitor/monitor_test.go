package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"factionwatch/pkg/logx"
)

type tickMonitor struct {
	name   string
	cycles atomic.Int64
	err    error
	closed atomic.Bool
}

func (m *tickMonitor) Name() string            { return m.name }
func (m *tickMonitor) Interval() time.Duration { return 10 * time.Millisecond }

func (m *tickMonitor) Cycle(ctx context.Context) error {
	m.cycles.Add(1)
	return m.err
}

func (m *tickMonitor) Close(ctx context.Context) error {
	m.closed.Store(true)
	return nil
}

func TestRegistryStartStop(t *testing.T) {
	r := NewRegistry(logx.Nop(), nil)
	m := &tickMonitor{name: "tick"}
	if err := r.Add(m); err != nil {
		t.Fatalf("add: %v", err)
	}

	ctx := context.Background()
	if err := r.Start(ctx, "tick"); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.cycles.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.cycles.Load() < 3 {
		t.Fatalf("expected several cycles, got %d", m.cycles.Load())
	}

	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.Stop(sctx, "tick"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !m.closed.Load() {
		t.Fatalf("close not called on stop")
	}

	st := r.Status()
	if len(st) != 1 || st[0].Running {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestRegistryHaltStopsLoop(t *testing.T) {
	r := NewRegistry(logx.Nop(), nil)
	m := &tickMonitor{name: "tick", err: Halt(errors.New("bad key"))}
	if err := r.Add(m); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Start(context.Background(), "tick"); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := r.Status()[0]
		if st.Halted && !st.Running {
			if got := m.cycles.Load(); got != 1 {
				t.Fatalf("halt should stop after one cycle, got %d", got)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("monitor never halted")
}

func TestRegistryDuplicateName(t *testing.T) {
	r := NewRegistry(logx.Nop(), nil)
	if err := r.Add(&tickMonitor{name: "tick"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Add(&tickMonitor{name: "tick"}); err == nil {
		t.Fatalf("expected duplicate name error")
	}
}

func TestRegistryFailureKeepsRunning(t *testing.T) {
	r := NewRegistry(logx.Nop(), nil)
	m := &tickMonitor{name: "tick", err: errors.New("transient")}
	if err := r.Add(m); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Start(context.Background(), "tick"); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.cycles.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.cycles.Load() < 3 {
		t.Fatalf("transient errors should not stop the loop, got %d cycles", m.cycles.Load())
	}

	st := r.Status()[0]
	if !st.Running || st.Failures == 0 || st.LastError == "" {
		t.Fatalf("status does not reflect failures: %+v", st)
	}

	sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = r.Stop(sctx, "tick")
}
