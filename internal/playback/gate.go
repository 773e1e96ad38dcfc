package playback

import (
	"sync"
	"time"
)

// DefaultGateWindow is how long the gate stays suppressed after a
// programmatic mutation. Surface events fired as a side effect of the
// mutation (including a play request resolving late) land inside this
// window and are dropped instead of re-broadcast.
const DefaultGateWindow = 500 * time.Millisecond

// Gate is the per-session echo-suppression latch. Remote commands are
// applied through it so that the surface events they trigger are never
// mistaken for local user actions and echoed back to the room.
type Gate struct {
	mu         sync.Mutex
	window     time.Duration
	suppressed bool
	timer      *time.Timer
}

func NewGate() *Gate {
	return &Gate{window: DefaultGateWindow}
}

// NewGateWithWindow exists for tests that cannot wait out the real window.
func NewGateWithWindow(window time.Duration) *Gate {
	return &Gate{window: window}
}

// Apply suppresses the gate, runs the mutation, then schedules the reopen
// timer. A mutation arriving while a previous window is still open resets
// the timer rather than stacking a second one.
func (g *Gate) Apply(mutate func() error) error {
	g.mu.Lock()
	g.suppressed = true
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.mu.Unlock()

	err := mutate()

	g.mu.Lock()
	g.timer = time.AfterFunc(g.window, g.reopen)
	g.mu.Unlock()
	return err
}

func (g *Gate) reopen() {
	g.mu.Lock()
	g.suppressed = false
	g.timer = nil
	g.mu.Unlock()
}

func (g *Gate) Suppressed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suppressed
}

// Cancel stops the pending reopen timer and returns the gate to OPEN.
// Called on session teardown so no stale timer fires afterwards.
func (g *Gate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.suppressed = false
}
