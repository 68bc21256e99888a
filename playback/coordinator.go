package playback

import (
	"log/slog"
	"sync"

	"github.com/aposazhennikov/radio-relay/logger"
)

// RadioControl is the part of the radio player the coordinator drives.
type RadioControl interface {
	Pause()
}

// PodcastControl is the part of the podcast player the coordinator drives.
type PodcastControl interface {
	Pause()
	PauseExternally()
}

// Coordinator keeps at most one of the radio and the podcast audible. It turns play-state changes
// into play-requested signals and reacts to those signals by pausing the other player. Only
// stopped-to-playing transitions are announced, so a signal never feeds back into itself.
type Coordinator struct {
	bus     *Bus
	radio   RadioControl
	podcast PodcastControl
	logger  *slog.Logger

	mu             sync.Mutex
	radioPlaying   bool
	podcastPlaying bool
	radioVisible   bool
	subs           []Subscription
}

// NewCoordinator subscribes to bus. Call Close to detach.
func NewCoordinator(bus *Bus, radio RadioControl, podcast PodcastControl, log *slog.Logger) *Coordinator {
	c := &Coordinator{
		bus:          bus,
		radio:        radio,
		podcast:      podcast,
		logger:       logger.WithComponent(log, "coordinator"),
		radioVisible: true,
	}
	c.subs = []Subscription{
		bus.Subscribe(SignalAudioStateChanged, c.onAudioStateChanged),
		bus.Subscribe(SignalRadioPlayRequested, c.onRadioPlayRequested),
		bus.Subscribe(SignalPodcastPlayRequested, c.onPodcastPlayRequested),
		bus.Subscribe(SignalPauseRequested, c.onPauseRequested),
	}
	return c
}

// RadioVisible reports whether the radio's floating player is shown.
func (c *Coordinator) RadioVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.radioVisible
}

// Close unsubscribes from the bus.
func (c *Coordinator) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, s := range subs {
		c.bus.Unsubscribe(s)
	}
}

func (c *Coordinator) onAudioStateChanged(payload any) {
	state, ok := payload.(AudioState)
	if !ok {
		return
	}

	c.mu.Lock()
	var started bool
	switch state.Source {
	case SourceRadio:
		started = state.Playing && !c.radioPlaying
		c.radioPlaying = state.Playing
		if state.Playing {
			c.radioVisible = true
		}
	case SourcePodcast:
		started = state.Playing && !c.podcastPlaying
		c.podcastPlaying = state.Playing
	}
	c.mu.Unlock()

	if !started {
		return
	}
	c.logger.Debug("Player started", slog.String("source", string(state.Source)))
	if state.Source == SourceRadio {
		c.bus.Publish(SignalRadioPlayRequested, nil)
	} else {
		c.bus.Publish(SignalPodcastPlayRequested, nil)
	}
}

func (c *Coordinator) onRadioPlayRequested(any) {
	c.podcast.PauseExternally()
}

func (c *Coordinator) onPodcastPlayRequested(any) {
	c.mu.Lock()
	c.radioVisible = false
	c.mu.Unlock()

	c.bus.Publish(SignalPauseRequested, SourceRadio)
}

// onPauseRequested pauses the named player; an unnamed request pauses the radio.
func (c *Coordinator) onPauseRequested(payload any) {
	source, _ := payload.(Source)
	switch source {
	case SourcePodcast:
		c.podcast.Pause()
	default:
		c.radio.Pause()
	}
}
