package roomsync

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"chitrakatha/internal/playback"
	"chitrakatha/internal/protocol"
)

const (
	// HeartbeatInterval is how often the host broadcasts its clock.
	HeartbeatInterval = 5 * time.Second

	// HeartbeatDriftThreshold is the viewer-side correction threshold for
	// heartbeats. Higher than the explicit-action threshold so natural
	// buffering jitter is not constantly corrected.
	HeartbeatDriftThreshold = 1.0
)

// Corrector layers periodic drift correction on top of the sync channel.
// On the host it broadcasts DriftSamples while playing; on a viewer it
// applies seek-only corrections when a sample drifts past the threshold.
type Corrector struct {
	roomID   string
	observer *playback.Observer
	emit     Emitter

	interval  time.Duration
	threshold float64

	mu   sync.Mutex
	stop chan struct{}
}

func NewCorrector(roomID string, observer *playback.Observer, emit Emitter) *Corrector {
	return &Corrector{
		roomID:    roomID,
		observer:  observer,
		emit:      emit,
		interval:  HeartbeatInterval,
		threshold: HeartbeatDriftThreshold,
	}
}

// SetInterval shortens the heartbeat period for tests.
func (c *Corrector) SetInterval(d time.Duration) { c.interval = d }

// StartHeartbeat begins the host heartbeat loop. Starting an already
// running corrector is a no-op.
func (c *Corrector) StartHeartbeat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	go c.heartbeatLoop(c.stop)
}

// StopHeartbeat cancels the heartbeat loop. Safe to call when not running.
func (c *Corrector) StopHeartbeat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Corrector) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.observer.Playing() {
				continue
			}
			sample := protocol.DriftSample{
				RoomID: c.roomID,
				Time:   c.observer.CurrentTime(),
			}
			if err := c.emit.EmitDriftSample(sample); err != nil {
				log.Printf("roomsync: heartbeat emit failed: %v", err)
			}
		}
	}
}

// HandleDriftSample applies a viewer-side correction. It only ever seeks;
// play/pause state is left to explicit sync actions.
func (c *Corrector) HandleDriftSample(ctx context.Context, sample protocol.DriftSample) {
	drift := math.Abs(c.observer.CurrentTime() - sample.Time)
	if drift <= c.threshold {
		return
	}
	_ = c.observer.Apply(ctx, protocol.ActionSeek, sample.Time, false)
}
