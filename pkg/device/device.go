// Package device drives the companion handset: the phone that owns the
// vibration motor and the speaker the user actually hears.
//
// Two transports are provided. Link dials out to a handset that runs a
// WebSocket server and reconnects on failure. Server accepts handsets that
// dial in to the dashboard. Both satisfy Conn, and Feedback turns a Conn
// into a haptics.Vibrator and a speech.Sink.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-lazarillo/pkg/haptics"
	"github.com/teslashibe/go-lazarillo/pkg/protocol"
	"github.com/teslashibe/go-lazarillo/pkg/speech"
	"github.com/teslashibe/go-lazarillo/pkg/tts"
)

// Conn is a message channel to one or more handsets.
type Conn interface {
	// SendMessage writes a JSON control message.
	SendMessage(msg *protocol.Message) error

	// SendBinary writes one audio packet.
	SendBinary(data []byte) error

	// Connected reports whether a handset is attached.
	Connected() bool
}

// Feedback sends vibration pulses and speech to the handset.
type Feedback struct {
	conn       Conn
	packetizer Packetizer
	logger     *slog.Logger

	mu        sync.Mutex
	utterance string
	stopped   chan struct{}
}

// NewFeedback creates a Feedback over conn.
func NewFeedback(conn Conn, p Packetizer, logger *slog.Logger) *Feedback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feedback{
		conn:       conn,
		packetizer: p,
		logger:     logger.With("component", "device"),
	}
}

// Vibrate implements haptics.Vibrator.
func (f *Feedback) Vibrate(ctx context.Context, d time.Duration) error {
	if !f.conn.Connected() {
		return ErrNotConnected
	}
	msg, err := protocol.NewVibrateMessage(d)
	if err != nil {
		return err
	}
	return f.conn.SendMessage(msg)
}

// Play implements speech.Sink. It streams every packet up front and then
// waits for the handset to finish playing, so Stop can still interrupt.
func (f *Feedback) Play(ctx context.Context, audio *tts.AudioResult) error {
	if !f.conn.Connected() {
		return ErrNotConnected
	}

	packets, err := f.packetizer.Packetize(audio)
	if err != nil {
		return err
	}
	rate := f.packetizer.SampleRate()
	if rate == 0 {
		rate = audio.Format.SampleRate
	}

	id := uuid.NewString()
	stopped := make(chan struct{})
	f.mu.Lock()
	f.utterance = id
	f.stopped = stopped
	f.mu.Unlock()
	defer f.finish(id)

	start, err := protocol.NewSpeakStartMessage(protocol.SpeakStartData{
		UtteranceID: id,
		Format:      f.packetizer.Format(),
		SampleRate:  rate,
		Channels:    1,
		FrameMs:     int(FrameDuration / time.Millisecond),
		DurationMs:  audio.Duration.Milliseconds(),
	})
	if err != nil {
		return err
	}
	if err := f.conn.SendMessage(start); err != nil {
		return fmt.Errorf("speak_start: %w", err)
	}
	began := time.Now()

	for _, pkt := range packets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopped:
			return nil
		default:
		}
		if err := f.conn.SendBinary(pkt); err != nil {
			return fmt.Errorf("audio packet: %w", err)
		}
	}

	if err := f.sendStop(id, protocol.StopDone); err != nil {
		return err
	}

	remaining := audio.Duration - time.Since(began)
	if remaining <= 0 {
		return nil
	}
	t := time.NewTimer(remaining)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-stopped:
	case <-t.C:
	}
	return nil
}

// Stop implements speech.Sink. It tells the handset to drop the current
// utterance.
func (f *Feedback) Stop() error {
	f.mu.Lock()
	id := f.utterance
	if f.stopped != nil {
		close(f.stopped)
		f.stopped = nil
	}
	f.utterance = ""
	f.mu.Unlock()

	if id == "" || !f.conn.Connected() {
		return nil
	}
	return f.sendStop(id, protocol.StopCancelled)
}

// Speaking reports whether an utterance is being streamed or played.
func (f *Feedback) Speaking() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.utterance != ""
}

func (f *Feedback) finish(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.utterance == id {
		f.utterance = ""
		f.stopped = nil
	}
}

func (f *Feedback) sendStop(id, reason string) error {
	msg, err := protocol.NewSpeakStopMessage(id, reason)
	if err != nil {
		return err
	}
	if err := f.conn.SendMessage(msg); err != nil {
		return fmt.Errorf("speak_stop: %w", err)
	}
	return nil
}

var (
	_ haptics.Vibrator = (*Feedback)(nil)
	_ speech.Sink      = (*Feedback)(nil)
)
