// Package playback drives the radio and podcast players: stream settings, the retry state machine,
// the signal bus and the rule that only one player is audible at a time.
package playback

import (
	"slices"
	"sync"
)

// Signal names a bus topic.
type Signal string

const (
	SignalRadioPlayRequested   Signal = "radioPlayRequested"
	SignalPodcastPlayRequested Signal = "podcastPlayRequested"
	SignalAudioStateChanged    Signal = "audioStateChanged"
	SignalPauseRequested       Signal = "pauseRequested"
)

// Source identifies a player.
type Source string

const (
	SourceRadio   Source = "radio"
	SourcePodcast Source = "podcast"
)

// AudioState is the payload of SignalAudioStateChanged.
type AudioState struct {
	Source  Source
	Playing bool
}

// Handler receives a published payload.
type Handler func(payload any)

// Subscription identifies one registered handler.
type Subscription struct {
	signal Signal
	id     uint64
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus is an in-process publish/subscribe channel. Publish delivers synchronously, in registration
// order, to the handlers subscribed when Publish was called. Handlers may publish and subscribe.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[Signal][]subscriber
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Signal][]subscriber)}
}

// Subscribe registers h for signal.
func (b *Bus) Subscribe(signal Signal, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[signal] = append(b.subs[signal], subscriber{id: b.nextID, handler: h})
	return Subscription{signal: signal, id: b.nextID}
}

// Unsubscribe removes a handler. Unknown subscriptions are ignored.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[sub.signal] = slices.DeleteFunc(b.subs[sub.signal], func(s subscriber) bool { return s.id == sub.id })
}

// Publish calls every handler of signal with payload.
func (b *Bus) Publish(signal Signal, payload any) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[signal]))
	for _, s := range b.subs[signal] {
		handlers = append(handlers, s.handler)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
}
