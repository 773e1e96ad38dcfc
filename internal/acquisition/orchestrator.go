package acquisition

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/RanFeng/ilog"

	"chitrakatha/internal/protocol"
)

const (
	// MetadataPollInterval and MetadataPollAttempts bound the metadata
	// poll loop: a torrent may take minutes to learn its duration, or
	// never learn it at all.
	MetadataPollInterval = 15 * time.Second
	MetadataPollAttempts = 12

	// StatusPollInterval is how often the agent's presence is checked.
	StatusPollInterval = 2 * time.Second
)

// Stream is a resolved, playable source.
type Stream struct {
	ID   string
	URL  string
	File *protocol.AgentFile
}

// Orchestrator resolves source specs against the local agent, tracks
// metadata readiness, and keeps the agent attached to the current room.
// All of its scheduled loops are owned here and cancelled on Close.
type Orchestrator struct {
	agent *AgentClient

	pollInterval   time.Duration
	pollAttempts   int
	statusInterval time.Duration

	// onDuration fires once when a poll reports a positive duration.
	onDuration func(seconds float64)

	mu         sync.Mutex
	announce   func(SourceSpec)
	pollStop   chan struct{}
	statusStop chan struct{}
	lastStatus AgentStatus
}

func NewOrchestrator(agent *AgentClient, onDuration func(seconds float64)) *Orchestrator {
	return &Orchestrator{
		agent:          agent,
		pollInterval:   MetadataPollInterval,
		pollAttempts:   MetadataPollAttempts,
		statusInterval: StatusPollInterval,
		onDuration:     onDuration,
	}
}

// SetPollInterval shortens the metadata poll period for tests.
func (o *Orchestrator) SetPollInterval(d time.Duration) { o.pollInterval = d }

// SetStatusInterval shortens the status poll period for tests.
func (o *Orchestrator) SetStatusInterval(d time.Duration) { o.statusInterval = d }

func (o *Orchestrator) Agent() *AgentClient { return o.agent }

// SetAnnouncer installs the host-side broadcast hook. While set, every
// successful resolution also shares the raw spec with the room so each
// viewer resolves it through its own agent. Pass nil to clear.
func (o *Orchestrator) SetAnnouncer(fn func(SourceSpec)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.announce = fn
}

// Resolve turns a source spec into a playable stream. Magnet sources start
// the metadata poll loop, since their duration is rarely known up front.
func (o *Orchestrator) Resolve(ctx context.Context, spec SourceSpec) (*Stream, error) {
	var stream *Stream
	switch spec.Type {
	case SourceFile:
		file, err := o.agent.SelectFile(ctx, spec.Value)
		if err != nil {
			return nil, err
		}
		stream = &Stream{ID: file.ID, URL: o.agent.StreamURL(file.ID), File: &file}
	default:
		streamID, err := o.agent.Play(ctx, spec)
		if err != nil {
			return nil, err
		}
		stream = &Stream{ID: streamID, URL: o.agent.StreamURL(streamID)}
	}

	ilog.EventInfo(ctx, "source_resolved", "type", spec.Type, "streamId", stream.ID)

	o.mu.Lock()
	announce := o.announce
	o.mu.Unlock()
	if announce != nil {
		announce(spec)
	}

	if spec.Type == SourceMagnet {
		o.PollMetadata(stream.ID)
	}
	return stream, nil
}

// PollMetadata polls the agent for the stream's duration at a fixed
// interval, stopping on the first positive answer or after the attempt
// limit. A timeout is non-fatal: playback continues with unknown duration.
// A new poll cancels any previous one.
func (o *Orchestrator) PollMetadata(streamID string) {
	o.mu.Lock()
	if o.pollStop != nil {
		close(o.pollStop)
	}
	stop := make(chan struct{})
	o.pollStop = stop
	o.mu.Unlock()

	go o.pollLoop(streamID, stop)
}

func (o *Orchestrator) pollLoop(streamID string, stop chan struct{}) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= o.pollAttempts; attempt++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), o.pollInterval)
		duration, err := o.agent.Metadata(ctx, streamID)
		cancel()
		if err != nil {
			log.Printf("acquisition: metadata poll %d/%d failed: %v", attempt, o.pollAttempts, err)
			continue
		}
		if duration > 0 {
			ilog.EventInfo(context.Background(), "metadata_ready",
				"streamId", streamID, "duration", duration, "attempt", attempt)
			if o.onDuration != nil {
				o.onDuration(duration)
			}
			o.finishPoll(stop)
			return
		}
	}
	log.Printf("acquisition: metadata poll gave up for stream %s, duration stays unknown", streamID)
	o.finishPoll(stop)
}

func (o *Orchestrator) finishPoll(stop chan struct{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pollStop == stop {
		o.pollStop = nil
	}
}

// StartStatusPoll watches the local agent's presence and keeps it joined to
// the active room. A new call replaces any previous watch.
func (o *Orchestrator) StartStatusPoll(roomID string) {
	o.mu.Lock()
	if o.statusStop != nil {
		close(o.statusStop)
	}
	stop := make(chan struct{})
	o.statusStop = stop
	o.mu.Unlock()

	go o.statusLoop(roomID, stop)
}

func (o *Orchestrator) statusLoop(roomID string, stop chan struct{}) {
	ticker := time.NewTicker(o.statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), o.statusInterval)
		status, err := o.agent.Status(ctx)
		if err != nil {
			cancel()
			o.setStatus(AgentStatus{})
			continue
		}
		o.setStatus(status)
		if status.Online && status.Room != roomID {
			if err := o.agent.JoinRoom(ctx, roomID); err != nil {
				log.Printf("acquisition: agent join-room failed: %v", err)
			}
		}
		cancel()
	}
}

func (o *Orchestrator) setStatus(status AgentStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastStatus = status
}

// LastStatus returns the most recent agent status observation.
func (o *Orchestrator) LastStatus() AgentStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastStatus
}

// Close cancels every scheduled loop. Stale poll callbacks must never fire
// into a torn-down session.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pollStop != nil {
		close(o.pollStop)
		o.pollStop = nil
	}
	if o.statusStop != nil {
		close(o.statusStop)
		o.statusStop = nil
	}
	o.announce = nil
}
