package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-lazarillo/internal/log"
	"github.com/teslashibe/go-lazarillo/pkg/protocol"
	"github.com/teslashibe/go-lazarillo/pkg/tts"
)

// fakeConn records everything written to it.
type fakeConn struct {
	mu        sync.Mutex
	connected bool
	messages  []*protocol.Message
	packets   [][]byte
	onPacket  func(n int)
}

func newFakeConn() *fakeConn { return &fakeConn{connected: true} }

func (f *fakeConn) SendMessage(msg *protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeConn) SendBinary(data []byte) error {
	f.mu.Lock()
	f.packets = append(f.packets, data)
	n := len(f.packets)
	hook := f.onPacket
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return nil
}

func (f *fakeConn) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConn) types() []protocol.MessageType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.MessageType, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.Type
	}
	return out
}

func (f *fakeConn) message(i int) *protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[i]
}

// pcm returns d of silence-ish mono PCM16 at rate.
func pcm(rate int, d time.Duration) *tts.AudioResult {
	n := int(d.Seconds() * float64(rate))
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(i % 500)
	}
	audio := tts.SamplesToBytes(samples)
	return &tts.AudioResult{
		Audio:    audio,
		Format:   tts.AudioFormat{Encoding: tts.PCMEncoding(rate), SampleRate: rate, Channels: 1, BitDepth: 16},
		Duration: tts.PCMDuration(len(audio), rate),
	}
}

func TestVibrateSendsDuration(t *testing.T) {
	conn := newFakeConn()
	f := NewFeedback(conn, NewPCMPacketizer(0), log.Discard())

	require.NoError(t, f.Vibrate(context.Background(), 600*time.Millisecond))

	require.Equal(t, []protocol.MessageType{protocol.TypeVibrate}, conn.types())
	v, err := conn.message(0).GetVibrateData()
	require.NoError(t, err)
	assert.Equal(t, int64(600), v.DurationMs)
}

func TestFeedbackNotConnected(t *testing.T) {
	conn := newFakeConn()
	conn.connected = false
	f := NewFeedback(conn, NewPCMPacketizer(0), log.Discard())

	assert.ErrorIs(t, f.Vibrate(context.Background(), time.Second), ErrNotConnected)
	assert.ErrorIs(t, f.Play(context.Background(), pcm(16000, 100*time.Millisecond)), ErrNotConnected)
	assert.NoError(t, f.Stop())
}

func TestPlayFramesUtterance(t *testing.T) {
	conn := newFakeConn()
	f := NewFeedback(conn, NewPCMPacketizer(0), log.Discard())

	audio := pcm(16000, 100*time.Millisecond)
	audio.Duration = 0 // do not wait for playback
	require.NoError(t, f.Play(context.Background(), audio))

	assert.Equal(t, []protocol.MessageType{protocol.TypeSpeakStart, protocol.TypeSpeakStop}, conn.types())
	assert.Len(t, conn.packets, 5, "100ms in 20ms chunks")

	start, err := conn.message(0).GetSpeakStartData()
	require.NoError(t, err)
	assert.Equal(t, protocol.FormatPCM16, start.Format)
	assert.Equal(t, 16000, start.SampleRate)

	stop, err := conn.message(1).GetSpeakStopData()
	require.NoError(t, err)
	assert.Equal(t, start.UtteranceID, stop.UtteranceID)
	assert.Equal(t, protocol.StopDone, stop.Reason)
	assert.False(t, f.Speaking())
}

func TestStopInterruptsPlayback(t *testing.T) {
	conn := newFakeConn()
	f := NewFeedback(conn, NewPCMPacketizer(0), log.Discard())

	done := make(chan error, 1)
	go func() {
		done <- f.Play(context.Background(), pcm(16000, 5*time.Second))
	}()

	require.Eventually(t, f.Speaking, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		types := conn.types()
		return len(types) == 2 && types[1] == protocol.TypeSpeakStop
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.Stop())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Play did not return after Stop")
	}

	types := conn.types()
	require.Len(t, types, 3)
	last, err := conn.message(2).GetSpeakStopData()
	require.NoError(t, err)
	assert.Equal(t, protocol.StopCancelled, last.Reason)
}

func TestStopDuringStreaming(t *testing.T) {
	conn := newFakeConn()
	f := NewFeedback(conn, NewPCMPacketizer(0), log.Discard())
	conn.onPacket = func(n int) {
		if n == 2 {
			f.Stop()
		}
	}

	require.NoError(t, f.Play(context.Background(), pcm(16000, time.Second)))

	assert.Len(t, conn.packets, 2, "streaming stops after Stop")
	types := conn.types()
	assert.Equal(t, []protocol.MessageType{protocol.TypeSpeakStart, protocol.TypeSpeakStop}, types)
}

func TestPlayHonoursContext(t *testing.T) {
	conn := newFakeConn()
	f := NewFeedback(conn, NewPCMPacketizer(0), log.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := f.Play(ctx, pcm(16000, 5*time.Second))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPlayRejectsMP3(t *testing.T) {
	f := NewFeedback(newFakeConn(), NewPCMPacketizer(0), log.Discard())
	err := f.Play(context.Background(), &tts.AudioResult{Format: tts.AudioFormat{Encoding: tts.EncodingMP3}})
	assert.ErrorIs(t, err, tts.ErrUnsupportedEncoding)
}

func TestPCMPacketizerResamples(t *testing.T) {
	p := NewPCMPacketizer(48000)
	packets, err := p.Packetize(pcm(24000, 40*time.Millisecond))
	require.NoError(t, err)

	require.Len(t, packets, 2)
	assert.Len(t, packets[0], 960*2, "20ms at 48kHz")
}

func TestOpusPacketizer(t *testing.T) {
	p, err := NewOpusPacketizer()
	require.NoError(t, err)
	assert.Equal(t, protocol.FormatOpus, p.Format())
	assert.Equal(t, OpusSampleRate, p.SampleRate())

	packets, err := p.Packetize(pcm(24000, 110*time.Millisecond))
	require.NoError(t, err)

	assert.Len(t, packets, 6, "110ms rounds up to six 20ms frames")
	for i, pkt := range packets {
		assert.NotEmpty(t, pkt, "packet %d", i)
		assert.LessOrEqual(t, len(pkt), maxPacketBytes)
	}
}
