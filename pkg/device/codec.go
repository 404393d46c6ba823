package device

import (
	"fmt"
	"time"

	"gopkg.in/hraban/opus.v2"

	"github.com/teslashibe/go-lazarillo/pkg/protocol"
	"github.com/teslashibe/go-lazarillo/pkg/tts"
)

// Opus parameters. 20ms frames at 48kHz mono.
const (
	OpusSampleRate = 48000
	FrameDuration  = 20 * time.Millisecond
	frameSamples   = OpusSampleRate * int(FrameDuration/time.Millisecond) / 1000
	maxPacketBytes = 4000
)

// Packetizer splits mono PCM16 speech into wire packets.
type Packetizer interface {
	// Format is the protocol audio format name.
	Format() string

	// SampleRate is the rate of the packets on the wire.
	SampleRate() int

	// Packetize converts one utterance. The input must be PCM (see tts.ToPCM).
	Packetize(audio *tts.AudioResult) ([][]byte, error)
}

// OpusPacketizer encodes speech as 20ms Opus packets at 48kHz.
type OpusPacketizer struct {
	enc *opus.Encoder
}

// NewOpusPacketizer creates a VoIP-tuned Opus encoder.
func NewOpusPacketizer() (*OpusPacketizer, error) {
	enc, err := opus.NewEncoder(OpusSampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	return &OpusPacketizer{enc: enc}, nil
}

// Format implements Packetizer.
func (p *OpusPacketizer) Format() string { return protocol.FormatOpus }

// SampleRate implements Packetizer.
func (p *OpusPacketizer) SampleRate() int { return OpusSampleRate }

// Packetize implements Packetizer. The last frame is zero padded.
func (p *OpusPacketizer) Packetize(audio *tts.AudioResult) ([][]byte, error) {
	samples, err := monoSamples(audio, OpusSampleRate)
	if err != nil {
		return nil, err
	}

	packets := make([][]byte, 0, len(samples)/frameSamples+1)
	frame := make([]int16, frameSamples)
	buf := make([]byte, maxPacketBytes)

	for off := 0; off < len(samples); off += frameSamples {
		n := copy(frame, samples[off:])
		clear(frame[n:])

		size, err := p.enc.Encode(frame, buf)
		if err != nil {
			return nil, fmt.Errorf("opus encode: %w", err)
		}
		pkt := make([]byte, size)
		copy(pkt, buf[:size])
		packets = append(packets, pkt)
	}
	return packets, nil
}

// PCMPacketizer sends raw little-endian PCM16 in 20ms chunks at the
// source rate, for handsets without an Opus decoder.
type PCMPacketizer struct {
	rate int
}

// NewPCMPacketizer creates a PCM packetizer that resamples to rate.
// Zero keeps each utterance's own rate.
func NewPCMPacketizer(rate int) *PCMPacketizer {
	return &PCMPacketizer{rate: rate}
}

// Format implements Packetizer.
func (p *PCMPacketizer) Format() string { return protocol.FormatPCM16 }

// SampleRate implements Packetizer.
func (p *PCMPacketizer) SampleRate() int { return p.rate }

// Packetize implements Packetizer.
func (p *PCMPacketizer) Packetize(audio *tts.AudioResult) ([][]byte, error) {
	rate := p.rate
	if rate == 0 && audio != nil {
		rate = audio.Format.SampleRate
	}
	samples, err := monoSamples(audio, rate)
	if err != nil {
		return nil, err
	}

	chunk := rate * int(FrameDuration/time.Millisecond) / 1000
	if chunk <= 0 {
		chunk = frameSamples
	}
	packets := make([][]byte, 0, len(samples)/chunk+1)
	for off := 0; off < len(samples); off += chunk {
		end := min(off+chunk, len(samples))
		packets = append(packets, tts.SamplesToBytes(samples[off:end]))
	}
	return packets, nil
}

func monoSamples(audio *tts.AudioResult, rate int) ([]int16, error) {
	if audio == nil || !audio.Format.Encoding.IsPCM() {
		return nil, tts.ErrUnsupportedEncoding
	}
	samples := tts.BytesToSamples(audio.Audio)
	if audio.Format.Channels == 2 {
		samples = tts.StereoToMono(samples)
	}
	return tts.Resample(samples, audio.Format.SampleRate, rate), nil
}

var (
	_ Packetizer = (*OpusPacketizer)(nil)
	_ Packetizer = (*PCMPacketizer)(nil)
)
