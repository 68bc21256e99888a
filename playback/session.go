package playback

import (
	"math"
	"sync"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
)

const volumeBase = 2

// AudioSession is the process-wide output stage shared by every player: a pause switch and a
// volume control applied to whichever player currently owns it. Only the owner may pull samples.
type AudioSession struct {
	mu     sync.Mutex
	owner  any
	source beep.Streamer
	stage  stagedStreamer
	ctrl   *beep.Ctrl
	volume *effects.Volume
	level  float64
}

var (
	sessionOnce sync.Once
	session     *AudioSession
)

// Session returns the audio session, creating it on first use. Every call returns the same handle.
func Session() *AudioSession {
	sessionOnce.Do(func() {
		session = newAudioSession()
	})
	return session
}

func newAudioSession() *AudioSession {
	s := &AudioSession{level: 1}
	s.ctrl = &beep.Ctrl{Streamer: &s.stage}
	s.volume = &effects.Volume{Streamer: s.ctrl, Base: volumeBase}
	return s
}

// Attach makes owner the session's source and unpauses output.
func (s *AudioSession) Attach(owner any, streamer beep.Streamer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.owner = owner
	s.source = streamer
	s.ctrl.Paused = false
}

// Detach drops owner's streamer. It does nothing if another owner has attached since.
func (s *AudioSession) Detach(owner any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.owner != owner {
		return
	}
	s.owner = nil
	s.source = nil
}

// Owns reports whether owner is attached.
func (s *AudioSession) Owns(owner any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner != nil && s.owner == owner
}

// Stream fills samples from owner's streamer and runs them through the pause switch and volume.
// The source is read without holding the session lock, so a slow source never blocks other
// callers. ok is false once owner is detached or its streamer is drained.
func (s *AudioSession) Stream(owner any, samples [][2]float64) (n int, ok bool) {
	s.mu.Lock()
	if s.owner == nil || s.owner != owner {
		s.mu.Unlock()
		return 0, false
	}
	source := s.source
	s.mu.Unlock()

	n, ok = source.Stream(samples)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != owner {
		return 0, false
	}
	s.stage.samples = samples[:n]
	s.volume.Stream(samples[:n])
	s.stage.samples = nil
	return n, ok
}

// SetPaused toggles the pause switch. A paused session yields silence.
func (s *AudioSession) SetPaused(paused bool) {
	s.mu.Lock()
	s.ctrl.Paused = paused
	s.mu.Unlock()
}

// Paused reports the pause switch.
func (s *AudioSession) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Paused
}

// SetVolume sets a linear gain; 1 is unity and 0 mutes. Negative values are treated as 0.
func (s *AudioSession) SetVolume(level float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if level <= 0 {
		s.level = 0
		s.volume.Silent = true
		return
	}
	s.level = level
	s.volume.Silent = false
	s.volume.Volume = math.Log2(level)
}

// Volume returns the linear gain.
func (s *AudioSession) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// stagedStreamer replays samples already read from the owner's source.
type stagedStreamer struct {
	samples [][2]float64
}

func (st *stagedStreamer) Stream(samples [][2]float64) (int, bool) {
	n := copy(samples, st.samples)
	return n, true
}

func (st *stagedStreamer) Err() error { return nil }
