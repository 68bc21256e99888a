package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aposazhennikov/radio-relay/logger"
)

// PodcastStatus is a snapshot of the podcast player.
type PodcastStatus struct {
	URL              string
	Playing          bool
	Visible          bool
	Loaded           bool
	ExternallyPaused bool
	Repeat           bool
	Position         time.Duration
}

// PodcastPlayer plays on-demand episodes. It tracks whether it was paused by the user or by the
// radio starting, and how far into the episode playback got.
type PodcastPlayer struct {
	element Element
	server  string
	bus     *Bus
	clock   Clock
	logger  *slog.Logger

	mu               sync.Mutex
	attempt          uint64
	cancel           context.CancelFunc
	url              string
	playing          bool
	visible          bool
	loaded           bool
	externallyPaused bool
	repeat           bool
	position         time.Duration
	startedAt        time.Time
}

// NewPodcastPlayer returns an empty podcast player. server prefixes app-relative audio paths.
func NewPodcastPlayer(element Element, server string, bus *Bus, clock Clock, log *slog.Logger) *PodcastPlayer {
	if bus == nil {
		bus = NewBus()
	}
	if clock == nil {
		clock = RealClock
	}
	return &PodcastPlayer{
		element: element,
		server:  server,
		bus:     bus,
		clock:   clock,
		logger:  logger.WithComponent(log, "podcast-player"),
		cancel:  func() {},
	}
}

// Open loads an episode's audio URL and shows the player without starting playback.
func (p *PodcastPlayer) Open(audioURL string) {
	p.mu.Lock()
	wasPlaying := p.stopLocked()
	p.url = joinServer(p.server, PodcastURL(audioURL))
	p.loaded, p.visible = true, true
	p.externallyPaused = false
	p.position = 0
	p.mu.Unlock()

	if wasPlaying {
		p.element.Pause()
		p.publish(false)
	}
}

// Unload clears the episode and hides the player.
func (p *PodcastPlayer) Unload() {
	p.mu.Lock()
	wasPlaying := p.stopLocked()
	p.url = ""
	p.loaded, p.visible, p.externallyPaused = false, false, false
	p.position = 0
	p.mu.Unlock()

	p.element.Pause()
	if wasPlaying {
		p.publish(false)
	}
}

// SetRepeat makes an ended episode start over.
func (p *PodcastPlayer) SetRepeat(repeat bool) {
	p.mu.Lock()
	p.repeat = repeat
	p.mu.Unlock()
}

// Play starts the opened episode. It does nothing when no episode is loaded.
func (p *PodcastPlayer) Play() {
	p.mu.Lock()
	if !p.loaded || p.playing {
		p.mu.Unlock()
		return
	}
	p.externallyPaused = false
	p.visible = true
	load := p.loadLocked()
	p.mu.Unlock()

	load()
}

// Pause is a user pause: the player stays visible and keeps its position.
func (p *PodcastPlayer) Pause() {
	p.mu.Lock()
	wasPlaying := p.stopLocked()
	p.externallyPaused = false
	p.mu.Unlock()

	p.element.Pause()
	if wasPlaying {
		p.publish(false)
	}
}

// PauseExternally pauses because another player took over. A player with an episode loaded keeps
// it and its position; one without is hidden and reset.
func (p *PodcastPlayer) PauseExternally() {
	p.mu.Lock()
	wasPlaying := p.stopLocked()
	p.externallyPaused = true
	if !p.loaded {
		p.visible = false
		p.position = 0
	}
	p.mu.Unlock()

	p.element.Pause()
	if wasPlaying {
		p.publish(false)
	}
}

// Status returns a snapshot of the player.
func (p *PodcastPlayer) Status() PodcastStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.position
	if p.playing {
		pos += p.clock.Now().Sub(p.startedAt)
	}
	return PodcastStatus{
		URL:              p.url,
		Playing:          p.playing,
		Visible:          p.visible,
		Loaded:           p.loaded,
		ExternallyPaused: p.externallyPaused,
		Repeat:           p.repeat,
		Position:         pos,
	}
}

// HandleEvent applies an element event. Events from superseded loads are dropped.
func (p *PodcastPlayer) HandleEvent(ev Event) {
	p.mu.Lock()
	if ev.Attempt != p.attempt {
		p.mu.Unlock()
		return
	}

	var (
		load     func()
		announce bool
	)
	switch ev.Type {
	case EventPlaying:
		if !p.playing {
			p.playing = true
			p.startedAt = p.clock.Now()
			announce = true
		}
	case EventPause, EventAbort:
		announce = p.stopLocked()
	case EventEnded:
		announce = p.stopLocked()
		p.position = 0
		if p.repeat && p.loaded {
			load = p.loadLocked()
			announce = false
		}
	case EventError:
		p.logger.Error("Podcast playback failed", slog.String("url", p.url), slog.Any("error", ev.Err))
		announce = p.stopLocked()
	}
	playing := p.playing
	p.mu.Unlock()

	if load != nil {
		load()
	}
	if announce {
		p.publish(playing)
	}
}

// stopLocked ends the current attempt, folds elapsed play time into the position and reports
// whether the player was playing.
func (p *PodcastPlayer) stopLocked() bool {
	p.attempt++
	p.cancel()
	p.cancel = func() {}

	if !p.playing {
		return false
	}
	p.position += p.clock.Now().Sub(p.startedAt)
	p.playing = false
	return true
}

// loadLocked starts a new attempt that resumes from the saved position.
func (p *PodcastPlayer) loadLocked() func() {
	p.attempt++
	p.cancel()
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	ctx = WithOffset(WithAttempt(ctx, p.attempt), p.position)

	url := p.url
	return func() { p.element.Load(ctx, url) }
}

func (p *PodcastPlayer) publish(playing bool) {
	p.bus.Publish(SignalAudioStateChanged, AudioState{Source: SourcePodcast, Playing: playing})
}
