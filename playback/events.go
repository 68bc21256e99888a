package playback

import (
	"context"
	"time"
)

// EventType is a playback element lifecycle event.
type EventType string

const (
	EventLoadStart  EventType = "loadstart"
	EventLoadedData EventType = "loadeddata"
	EventCanPlay    EventType = "canplay"
	EventWaiting    EventType = "waiting"
	EventStalled    EventType = "stalled"
	EventPlaying    EventType = "playing"
	EventPause      EventType = "pause"
	EventAbort      EventType = "abort"
	EventEnded      EventType = "ended"
	EventError      EventType = "error"
)

// Event is emitted by an Element. Attempt is copied from the context the load was started with,
// so a player can drop events from loads it has already superseded.
type Event struct {
	Type    EventType
	Attempt uint64
	Err     error
}

// Element plays one source at a time. Load replaces whatever is loaded; events are delivered to the
// listener the element was built with, possibly from another goroutine.
type Element interface {
	Load(ctx context.Context, url string)
	Pause()
}

type (
	attemptKey struct{}
	offsetKey  struct{}
)

// WithAttempt tags ctx with a load attempt number.
func WithAttempt(ctx context.Context, attempt uint64) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}

// AttemptFrom returns the attempt number stored by WithAttempt, or zero.
func AttemptFrom(ctx context.Context) uint64 {
	n, _ := ctx.Value(attemptKey{}).(uint64)
	return n
}

// WithOffset asks the element to start playback offset into the source.
func WithOffset(ctx context.Context, offset time.Duration) context.Context {
	return context.WithValue(ctx, offsetKey{}, offset)
}

// OffsetFrom returns the start offset stored by WithOffset, or zero.
func OffsetFrom(ctx context.Context) time.Duration {
	d, _ := ctx.Value(offsetKey{}).(time.Duration)
	if d < 0 {
		return 0
	}
	return d
}
