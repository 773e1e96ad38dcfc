package roomsync

import (
	"context"
	"math"

	"github.com/RanFeng/ilog"

	"chitrakatha/internal/playback"
	"chitrakatha/internal/protocol"
)

// ActionDriftThreshold is the drift above which an explicit PLAY or PAUSE
// also repositions the surface. Below it, jumping would be more jarring
// than the drift itself.
const ActionDriftThreshold = 0.5

// Emitter is the outbound half of the room channel the adapter writes to.
type Emitter interface {
	EmitSyncAction(protocol.SyncMessage) error
	EmitDriftSample(protocol.DriftSample) error
}

// Adapter translates genuine local surface events into outbound sync
// messages and inbound sync messages into gated surface corrections.
type Adapter struct {
	roomID     string
	observer   *playback.Observer
	gate       *playback.Gate
	emit       Emitter
	generation func() int64

	token playback.Token
}

func NewAdapter(roomID string, observer *playback.Observer, gate *playback.Gate, emit Emitter, generation func() int64) *Adapter {
	return &Adapter{
		roomID:     roomID,
		observer:   observer,
		gate:       gate,
		emit:       emit,
		generation: generation,
	}
}

// Start registers the outbound listener on the observer.
func (a *Adapter) Start() {
	a.token = a.observer.Subscribe(a.onSurfaceEvent)
}

// Stop releases the outbound listener.
func (a *Adapter) Stop() {
	a.observer.Unsubscribe(a.token)
}

func (a *Adapter) onSurfaceEvent(kind playback.EventKind, seconds float64) {
	var action protocol.Action
	switch kind {
	case playback.EventPlay:
		action = protocol.ActionPlay
	case playback.EventPause:
		action = protocol.ActionPause
	case playback.EventSeek:
		action = protocol.ActionSeek
	default:
		return
	}
	// Events fired while the gate is suppressed are side effects of a
	// remote command being applied locally. Dropped, never queued.
	if a.gate.Suppressed() {
		return
	}
	msg := protocol.SyncMessage{
		RoomID:           a.roomID,
		Action:           action,
		Time:             seconds,
		SenderGeneration: a.generation(),
	}
	if err := a.emit.EmitSyncAction(msg); err != nil {
		ilog.EventInfo(context.Background(), "sync_emit_failed", "action", action, "error", err.Error())
	}
}

// HandleSyncAction applies a remote playback command. Messages referring to
// a superseded source generation are discarded outright.
func (a *Adapter) HandleSyncAction(ctx context.Context, msg protocol.SyncMessage) {
	if msg.SenderGeneration < a.generation() {
		ilog.EventInfo(ctx, "stale_correction_discarded",
			"senderGeneration", msg.SenderGeneration, "generation", a.generation())
		return
	}

	drift := math.Abs(a.observer.CurrentTime() - msg.Time)
	switch msg.Action {
	case protocol.ActionPlay, protocol.ActionPause:
		_ = a.observer.Apply(ctx, msg.Action, msg.Time, drift > ActionDriftThreshold)
	case protocol.ActionSeek:
		_ = a.observer.Apply(ctx, protocol.ActionSeek, msg.Time, false)
	}
}
