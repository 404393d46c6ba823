// Package tts turns alert sentences into audio.
//
// Two providers are available: Edge (Microsoft's free neural voices, no key
// required) and OpenAI. Both return the provider's native encoding; ToPCM
// converts any result into 16-bit mono PCM for playback or Opus encoding.
//
// Example usage:
//
//	provider, _ := tts.NewEdge()
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, tts.Request{Text: "persona izquierda", Locale: "es-MX"})
//	pcm, _ := tts.ToPCM(result)
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete buffer.
	Synthesize(ctx context.Context, req Request) (*AudioResult, error)

	// Health checks provider connectivity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Request is one utterance.
type Request struct {
	Text string

	// Locale is a BCP 47 tag such as "es-MX" or "en-US".
	Locale string

	// Rate scales the speaking speed, 1.0 is normal. Zero means default.
	Rate float64
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the raw audio data in the specified format.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Duration is the playback duration, known for PCM results.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the synthesis time in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding represents audio encoding types.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000" // 16kHz mono PCM16
	EncodingPCM24 Encoding = "pcm_24000" // 24kHz mono PCM16
	EncodingPCM48 Encoding = "pcm_48000" // 48kHz mono PCM16
	EncodingMP3   Encoding = "mp3"       // MP3, sample rate in AudioFormat
)

// IsPCM reports whether the encoding is raw PCM16.
func (e Encoding) IsPCM() bool {
	switch e {
	case EncodingPCM16, EncodingPCM24, EncodingPCM48:
		return true
	}
	return false
}

// PCMEncoding returns the PCM encoding for a sample rate.
func PCMEncoding(sampleRate int) Encoding {
	switch sampleRate {
	case 16000:
		return EncodingPCM16
	case 48000:
		return EncodingPCM48
	default:
		return EncodingPCM24
	}
}

// PCMDuration returns the playback length of mono PCM16 data.
func PCMDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := n / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
