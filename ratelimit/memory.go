package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type window struct {
	start time.Time
	count int
}

// Memory is an in-process fixed-window limiter. A window opens on the first
// call for a key and resets lazily on the first call after it ends.
type Memory struct {
	cfg   Config
	clock clockwork.Clock

	mu      sync.Mutex
	windows map[string]*window

	ticker    clockwork.Ticker
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewMemory starts the sweep goroutine when cfg.SweepInterval is positive.
// A nil clock means wall time.
func NewMemory(cfg Config, clock clockwork.Clock) (*Memory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	m := &Memory{
		cfg:     cfg,
		clock:   clock,
		windows: make(map[string]*window),
		done:    make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		m.ticker = clock.NewTicker(cfg.SweepInterval)
		m.wg.Add(1)
		go m.run()
	}
	return m, nil
}

func (m *Memory) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ticker.Chan():
			m.Sweep()
		case <-m.done:
			return
		}
	}
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.start.Add(m.cfg.Window)) {
		w = &window{start: now}
		m.windows[key] = w
	}

	if w.count >= m.cfg.Limit {
		return Decision{RetryAfter: w.start.Add(m.cfg.Window).Sub(now)}, nil
	}

	w.count++
	return Decision{Allowed: true, Remaining: m.cfg.Limit - w.count}, nil
}

// Sweep drops every window that has ended. It runs on the ticker but may be
// called directly.
func (m *Memory) Sweep() {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, w := range m.windows {
		if !now.Before(w.start.Add(m.cfg.Window)) {
			delete(m.windows, key)
		}
	}
}

// Len reports how many windows are currently held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// Close stops the sweep goroutine. It is safe to call more than once.
func (m *Memory) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
		if m.ticker != nil {
			m.ticker.Stop()
		}
	})
}
