package playback

import (
	"context"
	"log"
	"sync"

	"github.com/RanFeng/ilog"

	"chitrakatha/internal/protocol"
)

// Surface is the local playback surface the client drives: a video element,
// an embedded player, or the built-in clock surface. Implementations deliver
// their events to the Events sink bound via Bind.
type Surface interface {
	Bind(Events)
	Play() error
	Pause() error
	SeekTo(seconds float64) error
	CurrentTime() float64
	Duration() float64
	Load(src string) error
}

// Events is the sink a Surface reports into. The Observer implements it.
type Events interface {
	SurfacePlayed()
	SurfacePaused()
	SurfaceSeeked()
	SurfaceDurationKnown(seconds float64)
	SurfaceError(err error)
}

// EventKind identifies a surface notification fanned out to listeners.
type EventKind int

const (
	EventPlay EventKind = iota
	EventPause
	EventSeek
	EventDurationKnown
)

// Listener receives surface events with the playback time at which they
// fired. For EventDurationKnown, seconds is the reported duration.
type Listener func(kind EventKind, seconds float64)

// Token identifies a registered listener so teardown can release exactly
// the subscriptions it owns.
type Token int

// Observer wraps the playback surface: it re-exposes surface events as
// listener callbacks and routes all programmatic control through the
// echo-suppression gate.
type Observer struct {
	surface Surface
	gate    *Gate

	mu        sync.Mutex
	nextToken Token
	listeners map[Token]Listener
	playing   bool
}

func NewObserver(surface Surface, gate *Gate) *Observer {
	o := &Observer{
		surface:   surface,
		gate:      gate,
		listeners: make(map[Token]Listener),
	}
	surface.Bind(o)
	return o
}

func (o *Observer) Subscribe(fn Listener) Token {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextToken++
	token := o.nextToken
	o.listeners[token] = fn
	return token
}

func (o *Observer) Unsubscribe(token Token) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.listeners, token)
}

// UnsubscribeAll releases every listener. Session teardown calls this so a
// rejoin starts from a clean slate.
func (o *Observer) UnsubscribeAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = make(map[Token]Listener)
}

func (o *Observer) CurrentTime() float64 { return o.surface.CurrentTime() }
func (o *Observer) Duration() float64    { return o.surface.Duration() }

func (o *Observer) Playing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.playing
}

// Load swaps the surface source. Every surface halts on a source change, so
// the tracked play state resets with it; the swap itself is not fanned out
// as a pause event.
func (o *Observer) Load(src string) error {
	o.mu.Lock()
	o.playing = false
	o.mu.Unlock()
	return o.surface.Load(src)
}

// Apply performs a remotely-ordered mutation through the gate so the
// surface events it triggers are not re-broadcast. seekFirst positions the
// surface at seconds before a play or pause; a seek action always seeks.
// An autoplay rejection by the surface is logged and swallowed: it needs a
// manual user action to recover and must not abort the correction.
func (o *Observer) Apply(ctx context.Context, action protocol.Action, seconds float64, seekFirst bool) error {
	return o.gate.Apply(func() error {
		if seekFirst || action == protocol.ActionSeek {
			if err := o.surface.SeekTo(seconds); err != nil {
				return err
			}
		}
		switch action {
		case protocol.ActionPlay:
			if err := o.surface.Play(); err != nil {
				ilog.EventInfo(ctx, "playback_blocked", "error", err.Error())
				return nil
			}
		case protocol.ActionPause:
			return o.surface.Pause()
		}
		return nil
	})
}

// Surface event sink.

func (o *Observer) SurfacePlayed() {
	o.mu.Lock()
	o.playing = true
	o.mu.Unlock()
	o.dispatch(EventPlay, o.surface.CurrentTime())
}

func (o *Observer) SurfacePaused() {
	o.mu.Lock()
	o.playing = false
	o.mu.Unlock()
	o.dispatch(EventPause, o.surface.CurrentTime())
}

func (o *Observer) SurfaceSeeked() {
	o.dispatch(EventSeek, o.surface.CurrentTime())
}

func (o *Observer) SurfaceDurationKnown(seconds float64) {
	o.dispatch(EventDurationKnown, seconds)
}

func (o *Observer) SurfaceError(err error) {
	log.Printf("playback: surface error: %v", err)
}

func (o *Observer) dispatch(kind EventKind, seconds float64) {
	o.mu.Lock()
	fns := make([]Listener, 0, len(o.listeners))
	for _, fn := range o.listeners {
		fns = append(fns, fn)
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn(kind, seconds)
	}
}
