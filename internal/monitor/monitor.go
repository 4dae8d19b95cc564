// Package monitor runs long-lived polling loops. A Registry owns every
// monitor and exposes start/stop/status so nothing hangs off package
// globals.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"factionwatch/pkg/logx"
)

// Monitor is one fetch-classify-act loop body. Cycle is called on a fixed
// cadence; returning an error marks the cycle failed but keeps the loop
// alive, except when the error wraps ErrHalt.
type Monitor interface {
	Name() string
	Interval() time.Duration
	Cycle(ctx context.Context) error
	Close(ctx context.Context) error
}

// ErrHalt stops a monitor's loop for good. Monitors wrap it (via Halt)
// around non-retryable failures such as a rejected API key.
var ErrHalt = errors.New("monitor halted")

// Halt wraps err so the registry stops the loop instead of retrying.
func Halt(err error) error {
	return fmt.Errorf("%w: %w", ErrHalt, err)
}

// CycleObserver receives per-cycle timings. Optional.
type CycleObserver interface {
	CycleDone(monitor string, d time.Duration, err error)
}

// Status is a point-in-time snapshot of one registered monitor.
type Status struct {
	Name      string
	Running   bool
	Halted    bool
	Cycles    int64
	Failures  int64
	LastCycle time.Time
	LastError string
}

type entry struct {
	mon    Monitor
	cancel context.CancelFunc
	done   chan struct{}

	running  bool
	halted   bool
	cycles   int64
	failures int64
	lastAt   time.Time
	lastErr  string
}

type Registry struct {
	log logx.Logger
	obs CycleObserver

	mu      sync.Mutex
	entries map[string]*entry
	order   []string
}

func NewRegistry(log logx.Logger, obs CycleObserver) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{log: log, obs: obs, entries: make(map[string]*entry)}
}

func (r *Registry) Add(m Monitor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := m.Name()
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("monitor %q already registered", name)
	}
	r.entries[name] = &entry{mon: m}
	r.order = append(r.order, name)
	return nil
}

// Start launches one monitor's loop. The first cycle runs immediately,
// later ones on the monitor's interval. Idempotent while running.
func (r *Registry) Start(ctx context.Context, name string) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("unknown monitor %q", name)
	}
	if e.running {
		r.mu.Unlock()
		return nil
	}
	rctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true
	e.halted = false
	r.mu.Unlock()

	go r.run(rctx, e)
	return nil
}

func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	names := append([]string(nil), r.order...)
	r.mu.Unlock()
	for _, n := range names {
		if err := r.Start(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) run(ctx context.Context, e *entry) {
	name := e.mon.Name()
	log := r.log.With(logx.String("monitor", name))
	log.Info("monitor started", logx.Duration("interval", e.mon.Interval()))

	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.mon.Close(cctx); err != nil {
			log.Warn("monitor close failed", logx.Err(err))
		}
		cancel()
		r.mu.Lock()
		e.running = false
		r.mu.Unlock()
		close(e.done)
		log.Info("monitor stopped")
	}()

	ticker := time.NewTicker(e.mon.Interval())
	defer ticker.Stop()

	for {
		start := time.Now()
		err := e.mon.Cycle(ctx)
		if r.obs != nil {
			r.obs.CycleDone(name, time.Since(start), err)
		}

		r.mu.Lock()
		e.cycles++
		e.lastAt = time.Now()
		if err != nil {
			e.failures++
			e.lastErr = err.Error()
		} else {
			e.lastErr = ""
		}
		r.mu.Unlock()

		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			return
		case errors.Is(err, ErrHalt):
			log.Error("monitor halted", logx.Err(err))
			r.mu.Lock()
			e.halted = true
			r.mu.Unlock()
			return
		default:
			log.Warn("cycle failed", logx.Err(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Registry) Stop(ctx context.Context, name string) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("unknown monitor %q", name)
	}
	if !e.running {
		r.mu.Unlock()
		return nil
	}
	cancel := e.cancel
	done := e.done
	r.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	names := append([]string(nil), r.order...)
	r.mu.Unlock()
	var first error
	for _, n := range names {
		if err := r.Stop(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Status returns snapshots in registration order.
func (r *Registry) Status() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.order))
	for _, n := range r.order {
		e := r.entries[n]
		out = append(out, Status{
			Name:      n,
			Running:   e.running,
			Halted:    e.halted,
			Cycles:    e.cycles,
			Failures:  e.failures,
			LastCycle: e.lastAt,
			LastError: e.lastErr,
		})
	}
	return out
}

// Names returns registered monitor names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}
