// Package scheduler fires the capture-and-infer loop on a fixed interval.
//
// At most one round-trip is in flight. A tick that fires while the previous
// round-trip is pending is skipped outright; nothing is queued or retried.
// Every Start and Stop bumps a generation counter, and a response is only
// delivered if its generation is still current, so results that arrive
// after Stop (or after a restart) are dropped.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-lazarillo/pkg/camera"
	"github.com/teslashibe/go-lazarillo/pkg/inference"
)

// ErrInvalidInterval is returned by Start for non-positive intervals.
var ErrInvalidInterval = errors.New("scheduler: interval must be positive")

// Handler receives each current-generation result. It runs on the
// round-trip goroutine and must not call Stop or Start.
type Handler func(ctx context.Context, res *inference.Result)

// Stats is a snapshot of the scheduler counters.
type Stats struct {
	Running         bool          `json:"running"`
	Interval        time.Duration `json:"interval"`
	Generation      uint64        `json:"generation"`
	InFlight        bool          `json:"in_flight"`
	TicksFired      uint64        `json:"ticks_fired"`
	TicksAccepted   uint64        `json:"ticks_accepted"`
	TicksSkipped    uint64        `json:"ticks_skipped"`
	Delivered       uint64        `json:"delivered"`
	Discarded       uint64        `json:"discarded"`
	CaptureErrors   uint64        `json:"capture_errors"`
	TransportErrors uint64        `json:"transport_errors"`
	Rejected        uint64        `json:"rejected"`
	LastLatency     time.Duration `json:"last_latency"`
}

// Scheduler drives the periodic round-trips.
type Scheduler struct {
	capturer  camera.Capturer
	transport inference.Transport
	handler   Handler
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	inflight   atomic.Bool
	generation atomic.Uint64

	// deliver serializes result delivery against generation changes so a
	// result is never handed over after Stop has returned. running flips
	// under it too, so an accepted tick always sees a matching generation.
	deliver  sync.RWMutex
	running  atomic.Bool
	interval atomic.Int64

	// mu serializes Start and Stop. Stats and Running never take it.
	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}

	trips sync.WaitGroup

	fired, accepted, skipped   atomic.Uint64
	delivered, discarded       atomic.Uint64
	captureErrs, transportErrs atomic.Uint64
	rejected                   atomic.Uint64
	lastLatency                atomic.Int64
}

// New creates a stopped scheduler.
func New(capturer camera.Capturer, transport inference.Transport, handler Handler, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = func(context.Context, *inference.Result) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		capturer:  capturer,
		transport: transport,
		handler:   handler,
		logger:    logger.With("component", "scheduler"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins ticking every interval. Starting a running scheduler
// restarts it with the new interval.
func (s *Scheduler) Start(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		s.haltLocked()
	}

	s.interval.Store(int64(interval))
	s.bump(true)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(interval, s.stop, s.done)

	s.logger.Info("scheduler started", "interval", interval, "generation", s.generation.Load())
	return nil
}

// Stop halts ticking. A pending round-trip is allowed to finish but its
// result is discarded. Stop on a stopped scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return
	}
	s.haltLocked()
	s.bump(false)

	s.logger.Info("scheduler stopped", "generation", s.generation.Load())
}

// Close stops the scheduler, cancels any pending round-trip and waits for
// it to return.
func (s *Scheduler) Close() {
	s.Stop()
	s.cancel()
	s.trips.Wait()
}

// Wait blocks until no round-trip is running.
func (s *Scheduler) Wait() {
	s.trips.Wait()
}

// Running reports whether ticks are firing.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Generation returns the current generation.
func (s *Scheduler) Generation() uint64 {
	return s.generation.Load()
}

// InFlight reports whether a round-trip is pending.
func (s *Scheduler) InFlight() bool {
	return s.inflight.Load()
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Running:         s.running.Load(),
		Interval:        time.Duration(s.interval.Load()),
		Generation:      s.generation.Load(),
		InFlight:        s.inflight.Load(),
		TicksFired:      s.fired.Load(),
		TicksAccepted:   s.accepted.Load(),
		TicksSkipped:    s.skipped.Load(),
		Delivered:       s.delivered.Load(),
		Discarded:       s.discarded.Load(),
		CaptureErrors:   s.captureErrs.Load(),
		TransportErrors: s.transportErrs.Load(),
		Rejected:        s.rejected.Load(),
		LastLatency:     time.Duration(s.lastLatency.Load()),
	}
}

// Tick fires one tick immediately. It reports whether the tick was
// accepted. A stopped scheduler accepts nothing. The ticker calls this;
// tests may too.
func (s *Scheduler) Tick() bool {
	s.fired.Add(1)

	if !s.inflight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Debug("tick skipped, request in flight")
		return false
	}

	s.deliver.RLock()
	running, gen := s.running.Load(), s.generation.Load()
	s.deliver.RUnlock()
	if !running {
		s.inflight.Store(false)
		s.logger.Debug("tick ignored, scheduler stopped")
		return false
	}
	s.accepted.Add(1)

	s.trips.Add(1)
	go s.roundTrip(gen)
	return true
}

func (s *Scheduler) bump(running bool) {
	s.deliver.Lock()
	s.generation.Add(1)
	s.running.Store(running)
	s.deliver.Unlock()
}

func (s *Scheduler) haltLocked() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) run(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

func (s *Scheduler) roundTrip(gen uint64) {
	defer s.trips.Done()
	defer s.inflight.Store(false)

	ctx := s.ctx
	start := time.Now()

	frame, err := s.capturer.Capture(ctx)
	if err != nil {
		s.captureErrs.Add(1)
		if camera.IsSkippable(err) {
			s.logger.Debug("capture skipped", "error", err)
		} else {
			s.logger.Warn("capture failed", "error", err)
		}
		return
	}

	res, err := s.transport.Send(ctx, frame)
	if err != nil {
		s.transportErrs.Add(1)
		s.logger.Warn("inference request failed", "error", err, "generation", gen)
		return
	}
	s.lastLatency.Store(int64(time.Since(start)))

	s.deliver.RLock()
	defer s.deliver.RUnlock()

	if gen != s.generation.Load() {
		s.discarded.Add(1)
		s.logger.Debug("stale result discarded", "generation", gen, "current", s.generation.Load())
		return
	}
	if !res.OK {
		s.rejected.Add(1)
	}
	s.delivered.Add(1)
	s.handler(ctx, res)
}
