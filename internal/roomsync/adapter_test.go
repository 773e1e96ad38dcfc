package roomsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"chitrakatha/internal/playback"
	"chitrakatha/internal/protocol"
)

type fakeSurface struct {
	events playback.Events
	time   float64

	playCalls  int
	pauseCalls int
	seekCalls  []float64
}

func (f *fakeSurface) Bind(events playback.Events) { f.events = events }

func (f *fakeSurface) Play() error {
	f.playCalls++
	f.events.SurfacePlayed()
	return nil
}

func (f *fakeSurface) Pause() error {
	f.pauseCalls++
	f.events.SurfacePaused()
	return nil
}

func (f *fakeSurface) SeekTo(seconds float64) error {
	f.time = seconds
	f.seekCalls = append(f.seekCalls, seconds)
	f.events.SurfaceSeeked()
	return nil
}

func (f *fakeSurface) CurrentTime() float64  { return f.time }
func (f *fakeSurface) Duration() float64     { return 0 }
func (f *fakeSurface) Load(src string) error { return nil }

type fakeEmitter struct {
	mu      sync.Mutex
	actions []protocol.SyncMessage
	samples []protocol.DriftSample
}

func (f *fakeEmitter) EmitSyncAction(msg protocol.SyncMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, msg)
	return nil
}

func (f *fakeEmitter) EmitDriftSample(sample protocol.DriftSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, sample)
	return nil
}

func (f *fakeEmitter) actionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.actions)
}

func (f *fakeEmitter) sampleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

func newTestAdapter(generation int64) (*Adapter, *fakeSurface, *fakeEmitter, *playback.Gate) {
	surface := &fakeSurface{}
	gate := playback.NewGateWithWindow(20 * time.Millisecond)
	observer := playback.NewObserver(surface, gate)
	emitter := &fakeEmitter{}
	adapter := NewAdapter("room-1", observer, gate, emitter, func() int64 { return generation })
	adapter.Start()
	return adapter, surface, emitter, gate
}

func TestAdapterEmitsGenuineLocalActions(t *testing.T) {
	_, surface, emitter, _ := newTestAdapter(3)

	surface.time = 12.5
	surface.events.SurfacePlayed()

	if emitter.actionCount() != 1 {
		t.Fatalf("expected 1 outbound message, got %d", emitter.actionCount())
	}
	msg := emitter.actions[0]
	if msg.Action != protocol.ActionPlay || msg.Time != 12.5 || msg.RoomID != "room-1" {
		t.Errorf("unexpected outbound message %+v", msg)
	}
	if msg.SenderGeneration != 3 {
		t.Errorf("expected senderGeneration 3, got %d", msg.SenderGeneration)
	}
}

func TestAdapterDropsEventsWhileSuppressed(t *testing.T) {
	adapter, surface, emitter, _ := newTestAdapter(0)

	// A remote command applies through the gate; the surface events it
	// triggers must not echo back out, whatever sequence they arrive in.
	adapter.HandleSyncAction(context.Background(), protocol.SyncMessage{
		RoomID: "room-1", Action: protocol.ActionPlay, Time: 30,
	})
	surface.events.SurfacePaused()
	surface.events.SurfaceSeeked()

	if emitter.actionCount() != 0 {
		t.Errorf("suppressed events were emitted: %+v", emitter.actions)
	}
}

func TestAdapterStopsEmittingAfterStop(t *testing.T) {
	adapter, surface, emitter, _ := newTestAdapter(0)

	adapter.Stop()
	surface.events.SurfacePlayed()

	if emitter.actionCount() != 0 {
		t.Errorf("stopped adapter still emitted: %+v", emitter.actions)
	}
}

func TestRemotePlayWithinThresholdDoesNotSeek(t *testing.T) {
	adapter, surface, _, _ := newTestAdapter(0)

	surface.time = 10.2
	adapter.HandleSyncAction(context.Background(), protocol.SyncMessage{
		RoomID: "room-1", Action: protocol.ActionPlay, Time: 10.0,
	})

	if len(surface.seekCalls) != 0 {
		t.Errorf("drift 0.2s should not seek, got %v", surface.seekCalls)
	}
	if surface.playCalls != 1 {
		t.Errorf("expected play to be invoked once, got %d", surface.playCalls)
	}
}

func TestRemotePlayBeyondThresholdSeeks(t *testing.T) {
	adapter, surface, _, _ := newTestAdapter(0)

	surface.time = 15.0
	adapter.HandleSyncAction(context.Background(), protocol.SyncMessage{
		RoomID: "room-1", Action: protocol.ActionPlay, Time: 10.0,
	})

	if len(surface.seekCalls) != 1 || surface.seekCalls[0] != 10.0 {
		t.Errorf("drift 5s should seek to 10.0, got %v", surface.seekCalls)
	}
	if surface.playCalls != 1 {
		t.Errorf("expected play to be invoked once, got %d", surface.playCalls)
	}
}

func TestRemotePauseBeyondThresholdSeeks(t *testing.T) {
	adapter, surface, _, _ := newTestAdapter(0)

	surface.time = 0
	adapter.HandleSyncAction(context.Background(), protocol.SyncMessage{
		RoomID: "room-1", Action: protocol.ActionPause, Time: 42.0,
	})

	if len(surface.seekCalls) != 1 || surface.seekCalls[0] != 42.0 {
		t.Errorf("expected seek to 42.0, got %v", surface.seekCalls)
	}
	if surface.pauseCalls != 1 {
		t.Errorf("expected pause to be invoked once, got %d", surface.pauseCalls)
	}
}

func TestRemoteSeekAlwaysSeeks(t *testing.T) {
	adapter, surface, _, _ := newTestAdapter(0)

	surface.time = 10.1
	adapter.HandleSyncAction(context.Background(), protocol.SyncMessage{
		RoomID: "room-1", Action: protocol.ActionSeek, Time: 10.0,
	})

	if len(surface.seekCalls) != 1 || surface.seekCalls[0] != 10.0 {
		t.Errorf("seek must apply regardless of drift, got %v", surface.seekCalls)
	}
}

func TestStaleGenerationDiscarded(t *testing.T) {
	adapter, surface, _, _ := newTestAdapter(5)

	surface.time = 0
	adapter.HandleSyncAction(context.Background(), protocol.SyncMessage{
		RoomID: "room-1", Action: protocol.ActionSeek, Time: 99, SenderGeneration: 4,
	})

	if len(surface.seekCalls) != 0 || surface.playCalls != 0 || surface.pauseCalls != 0 {
		t.Error("message from a superseded generation must produce no state change")
	}
}
