// Package events is the in-process publish/subscribe bus that connects the
// session, the alert coordinator and the dashboard.
package events

import (
	"time"

	evbus "github.com/asaskevich/EventBus"
)

// Topics published by the pipeline.
const (
	TopicSessionState    = "session.state"
	TopicAlertSpoken     = "alert.spoken"
	TopicAlertSuppressed = "alert.suppressed"
	TopicAlertVibrated   = "alert.vibrated"
	TopicResult          = "pipeline.result"
	TopicSettings        = "settings.changed"
	TopicPrompt          = "session.prompt"
)

// Event is the single payload type carried on the bus.
type Event struct {
	Topic string
	Data  any
	At    time.Time
}

// Handler receives events.
type Handler func(Event)

// Publisher is the narrow interface components depend on.
type Publisher interface {
	Publish(topic string, data any)
}

// Bus wraps an EventBus instance with a typed payload.
type Bus struct {
	bus evbus.Bus
	now func() time.Time
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{bus: evbus.New(), now: time.Now}
}

// Publish delivers data to every subscriber of topic. Synchronous
// subscribers run before Publish returns.
func (b *Bus) Publish(topic string, data any) {
	b.bus.Publish(topic, Event{Topic: topic, Data: data, At: b.now()})
}

// Subscribe registers a synchronous handler. Subscriptions live as long as
// the bus: EventBus identifies handlers by code pointer, so closures from
// the same literal cannot be told apart for removal.
func (b *Bus) Subscribe(topic string, h Handler) error {
	return b.bus.Subscribe(topic, func(e Event) { h(e) })
}

// SubscribeAsync registers a handler that runs on its own goroutine.
// Calls to one handler never overlap, but their order is not guaranteed.
func (b *Bus) SubscribeAsync(topic string, h Handler) error {
	return b.bus.SubscribeAsync(topic, func(e Event) { h(e) }, true)
}

// HasSubscribers reports whether anything listens on topic.
func (b *Bus) HasSubscribers(topic string) bool {
	return b.bus.HasCallback(topic)
}

// Wait blocks until all asynchronous handlers have finished.
func (b *Bus) Wait() {
	b.bus.WaitAsync()
}

// Discard is a Publisher that drops everything.
type Discard struct{}

// Publish does nothing.
func (Discard) Publish(string, any) {}

var (
	_ Publisher = (*Bus)(nil)
	_ Publisher = Discard{}
)
