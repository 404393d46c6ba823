package tts

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes MP3 data to mono PCM16 and returns it with its sample rate.
func DecodeMP3(data []byte) ([]int16, int, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("mp3 decoder: %w", err)
	}

	// go-mp3 always yields interleaved 16-bit stereo.
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("mp3 decode: %w", err)
	}
	return StereoToMono(BytesToSamples(raw)), dec.SampleRate(), nil
}

// ToPCM converts a result to mono PCM16. PCM results are returned as is.
func ToPCM(res *AudioResult) (*AudioResult, error) {
	if res == nil {
		return nil, ErrUnsupportedEncoding
	}
	if res.Format.Encoding.IsPCM() {
		return res, nil
	}
	if res.Format.Encoding != EncodingMP3 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, res.Format.Encoding)
	}

	samples, rate, err := DecodeMP3(res.Audio)
	if err != nil {
		return nil, err
	}
	audio := SamplesToBytes(samples)

	return &AudioResult{
		Audio: audio,
		Format: AudioFormat{
			Encoding:   PCMEncoding(rate),
			SampleRate: rate,
			Channels:   1,
			BitDepth:   16,
		},
		Duration:  PCMDuration(len(audio), rate),
		CharCount: res.CharCount,
		LatencyMs: res.LatencyMs,
	}, nil
}
