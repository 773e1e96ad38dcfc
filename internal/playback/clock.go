package playback

import (
	"sync"
	"time"
)

// ClockSurface is the built-in headless playback surface. It models playback
// as a wall-clock: while playing, the position advances in real time. The
// daemon uses it so a client can hold a synchronized playback clock without
// embedding a decoder; a UI polls the session state and drives its own
// player from it.
type ClockSurface struct {
	mu       sync.Mutex
	events   Events
	src      string
	position float64
	duration float64
	playing  bool
	anchor   time.Time
}

func NewClockSurface() *ClockSurface {
	return &ClockSurface{}
}

func (s *ClockSurface) Bind(events Events) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
}

func (s *ClockSurface) Play() error {
	s.mu.Lock()
	if !s.playing {
		s.playing = true
		s.anchor = time.Now()
	}
	events := s.events
	s.mu.Unlock()
	if events != nil {
		events.SurfacePlayed()
	}
	return nil
}

func (s *ClockSurface) Pause() error {
	s.mu.Lock()
	if s.playing {
		s.position = s.positionLocked()
		s.playing = false
	}
	events := s.events
	s.mu.Unlock()
	if events != nil {
		events.SurfacePaused()
	}
	return nil
}

func (s *ClockSurface) SeekTo(seconds float64) error {
	s.mu.Lock()
	if seconds < 0 {
		seconds = 0
	}
	s.position = seconds
	s.anchor = time.Now()
	events := s.events
	s.mu.Unlock()
	if events != nil {
		events.SurfaceSeeked()
	}
	return nil
}

func (s *ClockSurface) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *ClockSurface) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Load swaps the media source. Position resets and the duration becomes
// unknown until SetDuration reports it.
func (s *ClockSurface) Load(src string) error {
	s.mu.Lock()
	s.src = src
	s.position = 0
	s.duration = 0
	s.playing = false
	s.mu.Unlock()
	return nil
}

func (s *ClockSurface) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src
}

// SetDuration reports the media duration, typically once agent metadata
// arrives or an attached player learns it. A positive duration fires the
// duration-known event.
func (s *ClockSurface) SetDuration(seconds float64) {
	s.mu.Lock()
	s.duration = seconds
	events := s.events
	s.mu.Unlock()
	if events != nil && seconds > 0 {
		events.SurfaceDurationKnown(seconds)
	}
}

func (s *ClockSurface) positionLocked() float64 {
	if !s.playing {
		return s.position
	}
	pos := s.position + time.Since(s.anchor).Seconds()
	if s.duration > 0 && pos > s.duration {
		return s.duration
	}
	return pos
}
