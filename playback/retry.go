package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aposazhennikov/radio-relay/logger"
)

// State is the radio player's connection state.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StatePlaying    State = "playing"
	StateFailed     State = "failed"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second

	msgFallback = "Primary connection failed. Switching to fallback stream..."
	msgRetrying = "Connection lost. Retrying in %ds... (%d/%d)"
	msgFailed   = "Unable to connect to the radio stream. Please try refreshing."
)

// Status is a snapshot of the radio player.
type Status struct {
	State      State
	Playing    bool
	Loading    bool
	Buffering  bool
	RetryCount int
	URL        string
	Message    string
}

// RetryOptions configures a RetryController. Zero values select the defaults.
type RetryOptions struct {
	// Server prefixes relay paths, e.g. "http://localhost:8000". Empty keeps them app-relative.
	Server     string
	MaxRetries int
	RetryDelay time.Duration
	Clock      Clock
	Bus        *Bus
	Logger     *slog.Logger
	// OnStatus is called after every status change, outside the controller's lock.
	OnStatus func(Status)
}

// RetryController drives the radio element: default URL first, the fallback once, then exponential
// backoff until the retry budget is spent. Every load and every scheduled retry gets a new attempt
// number; events and timers carrying an older number are ignored.
type RetryController struct {
	element    Element
	server     string
	maxRetries int
	retryDelay time.Duration
	clock      Clock
	bus        *Bus
	logger     *slog.Logger
	onStatus   func(Status)

	mu         sync.Mutex
	settings   StreamSettings
	state      State
	retryCount int
	attempt    uint64
	cancel     context.CancelFunc
	timer      Timer
	playing    bool
	loading    bool
	buffering  bool
	url        string
	message    string
}

// NewRetryController returns an idle controller for element using DefaultStreamSettings.
func NewRetryController(element Element, opts RetryOptions) *RetryController {
	c := &RetryController{
		element:    element,
		server:     opts.Server,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		clock:      opts.Clock,
		bus:        opts.Bus,
		logger:     logger.WithComponent(opts.Logger, "playback"),
		onStatus:   opts.OnStatus,
		settings:   DefaultStreamSettings(),
		state:      StateIdle,
		cancel:     func() {},
	}
	if c.maxRetries <= 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.retryDelay <= 0 {
		c.retryDelay = defaultRetryDelay
	}
	if c.clock == nil {
		c.clock = RealClock
	}
	if c.bus == nil {
		c.bus = NewBus()
	}
	return c
}

// SetSettings replaces the stream settings used by later attempts.
func (c *RetryController) SetSettings(s StreamSettings) {
	if s.DefaultURL == "" {
		s.DefaultURL = DefaultCandidateURL
	}
	if s.FallbackURL == "" {
		s.FallbackURL = DefaultCandidateURL
	}

	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
}

// Play starts the default stream. It does nothing while connecting or playing; from the failed
// state it behaves like Refresh.
func (c *RetryController) Play() {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StatePlaying:
		c.mu.Unlock()
		return
	case StateFailed:
		c.retryCount = 0
	}
	c.message = ""
	load := c.loadLocked(c.settings.DefaultURL)
	c.mu.Unlock()

	load()
	c.notify()
}

// Refresh cancels any pending retry, resets the retry budget and reloads the default stream.
func (c *RetryController) Refresh() {
	c.mu.Lock()
	c.retryCount = 0
	c.message = ""
	upstream := c.settings.DefaultURL
	load := c.loadLocked(upstream)
	c.mu.Unlock()

	c.logger.Info("Stream refreshed", slog.String("url", upstream))
	load()
	c.notify()
}

// Pause stops playback and any pending retry.
func (c *RetryController) Pause() {
	c.mu.Lock()
	c.invalidateLocked()
	wasPlaying := c.playing
	c.playing, c.loading, c.buffering = false, false, false
	if c.state != StateFailed {
		c.state = StateIdle
	}
	c.mu.Unlock()

	c.element.Pause()
	if wasPlaying {
		c.publish(false)
	}
	c.notify()
}

// Close cancels the current load and any pending retry.
func (c *RetryController) Close() {
	c.mu.Lock()
	c.invalidateLocked()
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *RetryController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot of the controller.
func (c *RetryController) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// HandleEvent applies an element event. Events from superseded attempts are dropped.
func (c *RetryController) HandleEvent(ev Event) {
	c.mu.Lock()
	if ev.Attempt != c.attempt {
		c.mu.Unlock()
		return
	}

	var (
		load     func()
		announce bool
	)

	switch ev.Type {
	case EventLoadStart:
		c.loading, c.buffering = true, true
	case EventCanPlay:
		c.loading, c.buffering = false, false
		c.message = ""
	case EventLoadedData:
		c.loading, c.buffering = false, false
	case EventWaiting, EventStalled:
		c.buffering = true
	case EventPlaying:
		c.state = StatePlaying
		c.playing, c.loading, c.buffering = true, false, false
		announce = true
	case EventPause, EventAbort, EventEnded:
		c.playing, c.buffering = false, false
		if c.state == StatePlaying {
			c.state = StateIdle
		}
		announce = true
	case EventError:
		c.playing, c.loading, c.buffering = false, false, false
		c.logger.Warn("Stream playback failed",
			slog.String("url", c.url),
			slog.Int("retry_count", c.retryCount),
			slog.Any("error", ev.Err))
		load = c.failLocked()
		announce = true
	default:
		c.mu.Unlock()
		return
	}
	playing := c.playing
	c.mu.Unlock()

	if load != nil {
		load()
	}
	if announce {
		c.publish(playing)
	}
	c.notify()
}

// failLocked applies the failure policy and returns the immediate reload, if any.
func (c *RetryController) failLocked() func() {
	switch {
	case c.retryCount == 0:
		c.retryCount++
		c.message = msgFallback
		return c.loadLocked(c.settings.FallbackURL)

	case c.retryCount < c.maxRetries:
		delay := c.retryDelay * time.Duration(1<<(c.retryCount-1))
		c.message = fmt.Sprintf(msgRetrying, int(delay/time.Second), c.retryCount+1, c.maxRetries)
		c.retryCount++
		c.state = StateConnecting
		c.scheduleRetryLocked(delay)
		return nil

	default:
		c.invalidateLocked()
		c.state = StateFailed
		c.message = msgFailed
		c.logger.Error("Giving up on radio stream", slog.Int("retry_count", c.retryCount))
		return nil
	}
}

// scheduleRetryLocked replaces any pending retry with one that reloads the default stream after delay.
func (c *RetryController) scheduleRetryLocked(delay time.Duration) {
	c.invalidateLocked()
	attempt := c.attempt
	c.timer = c.clock.AfterFunc(delay, func() { c.retryFired(attempt) })
}

func (c *RetryController) retryFired(attempt uint64) {
	c.mu.Lock()
	if attempt != c.attempt {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	load := c.loadLocked(c.settings.DefaultURL)
	c.mu.Unlock()

	load()
	c.notify()
}

// loadLocked starts a new attempt against upstream and returns the call that hands it to the element.
func (c *RetryController) loadLocked(upstream string) func() {
	c.invalidateLocked()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	ctx = WithAttempt(ctx, c.attempt)

	c.url = joinServer(c.server, RelayURL(upstream))
	c.state = StateConnecting
	c.loading = true

	url := c.url
	return func() { c.element.Load(ctx, url) }
}

// invalidateLocked bumps the attempt number, cancels the current load and stops the pending timer.
func (c *RetryController) invalidateLocked() {
	c.attempt++
	c.cancel()
	c.cancel = func() {}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *RetryController) statusLocked() Status {
	return Status{
		State:      c.state,
		Playing:    c.playing,
		Loading:    c.loading,
		Buffering:  c.buffering,
		RetryCount: c.retryCount,
		URL:        c.url,
		Message:    c.message,
	}
}

func (c *RetryController) publish(playing bool) {
	c.bus.Publish(SignalAudioStateChanged, AudioState{Source: SourceRadio, Playing: playing})
}

func (c *RetryController) notify() {
	if c.onStatus == nil {
		return
	}
	c.onStatus(c.Status())
}
