// Package pipeline turns a completed inference round-trip into user
// feedback: filter the detections, update the overlay, run the alert
// coordinator.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-lazarillo/pkg/alert"
	"github.com/teslashibe/go-lazarillo/pkg/detection"
	"github.com/teslashibe/go-lazarillo/pkg/events"
	"github.com/teslashibe/go-lazarillo/pkg/inference"
)

// OverlaySink receives the annotated frame returned by the server.
type OverlaySink interface {
	SetOverlay(jpeg []byte)
}

// OverlayFunc adapts a function to OverlaySink.
type OverlayFunc func(jpeg []byte)

// SetOverlay calls f(jpeg).
func (f OverlayFunc) SetOverlay(jpeg []byte) { f(jpeg) }

// Alerter is the part of alert.Coordinator the pipeline drives.
type Alerter interface {
	Handle(ctx context.Context, filtered []inference.DetectedObject) alert.Decision
}

// Outcome is published on events.TopicResult after every handled result.
type Outcome struct {
	OK        bool                       `json:"ok"`
	Reason    string                     `json:"reason,omitempty"`
	Objects   []inference.DetectedObject `json:"objects"`
	Dropped   int                        `json:"dropped"`
	Sentence  string                     `json:"sentence,omitempty"`
	Spoken    bool                       `json:"spoken"`
	Vibrated  bool                       `json:"vibrated"`
	Latency   time.Duration              `json:"latency"`
	RequestID string                     `json:"request_id,omitempty"`
	At        time.Time                  `json:"at"`
}

// Pipeline is safe for concurrent use, though the scheduler only ever
// calls Handle from one round-trip at a time.
type Pipeline struct {
	policy    detection.Policy
	alerter   Alerter
	overlay   OverlaySink
	publisher events.Publisher
	logger    *slog.Logger

	mu   sync.RWMutex
	last Outcome
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithOverlay sets the overlay sink.
func WithOverlay(s OverlaySink) Option {
	return func(p *Pipeline) { p.overlay = s }
}

// WithPublisher sets the event publisher.
func WithPublisher(pub events.Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a pipeline.
func New(policy detection.Policy, alerter Alerter, opts ...Option) *Pipeline {
	p := &Pipeline{
		policy:    policy,
		alerter:   alerter,
		publisher: events.Discard{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pipeline")
	p.last.Objects = []inference.DetectedObject{}
	return p
}

// Handle processes one result. It matches scheduler.Handler.
func (p *Pipeline) Handle(ctx context.Context, res *inference.Result) {
	if res == nil {
		return
	}

	out := Outcome{
		OK:        res.OK,
		Reason:    res.Reason,
		Objects:   []inference.DetectedObject{},
		Latency:   res.Latency,
		RequestID: res.RequestID,
		At:        time.Now(),
	}

	if !res.OK {
		// Rejected frames leave the overlay as it was and raise no alert.
		p.logger.Debug("inference rejected", "reason", res.Reason)
		p.store(out)
		p.publisher.Publish(events.TopicResult, out)
		return
	}

	if p.overlay != nil && res.HasOverlay() {
		p.overlay.SetOverlay(res.Overlay)
	}

	filtered := p.policy.Apply(res.Objects)
	out.Objects = filtered
	out.Dropped = len(res.Objects) - len(filtered)

	d := p.alerter.Handle(ctx, filtered)
	out.Sentence = d.Sentence
	out.Spoken = d.Speak
	out.Vibrated = d.Vibrate

	p.store(out)
	p.publisher.Publish(events.TopicResult, out)
}

// Last returns the most recent outcome.
func (p *Pipeline) Last() Outcome {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Detections returns the last filtered set.
func (p *Pipeline) Detections() []inference.DetectedObject {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]inference.DetectedObject, len(p.last.Objects))
	copy(out, p.last.Objects)
	return out
}

// Clear forgets the last outcome.
func (p *Pipeline) Clear() {
	p.store(Outcome{Objects: []inference.DetectedObject{}})
}

func (p *Pipeline) store(o Outcome) {
	p.mu.Lock()
	p.last = o
	p.mu.Unlock()
}
