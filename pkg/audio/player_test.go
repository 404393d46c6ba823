package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-lazarillo/internal/log"
	"github.com/teslashibe/go-lazarillo/pkg/tts"
)

func pcm(n int) *tts.AudioResult {
	return &tts.AudioResult{
		Audio:  make([]byte, n),
		Format: tts.AudioFormat{Encoding: tts.EncodingPCM24, SampleRate: 24000, Channels: 1, BitDepth: 16},
	}
}

func TestDefaultCommand(t *testing.T) {
	argv := DefaultCommand(24000)
	require.NotEmpty(t, argv)
	assert.Contains(t, argv, "24000")
	assert.Equal(t, "-", argv[len(argv)-1], "reads from stdin")
}

func TestPlayPipesPCM(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.raw")
	var gotRate int
	p := NewPlayer(func(rate int) []string {
		gotRate = rate
		return []string{"sh", "-c", "cat > " + out}
	}, log.Discard())

	audio := pcm(960)
	audio.Audio[0] = 7
	require.NoError(t, p.Play(context.Background(), audio))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, audio.Audio, data)
	assert.Equal(t, 24000, gotRate)
	assert.Equal(t, 1, p.Played())
}

func TestStopInterruptsPlayback(t *testing.T) {
	p := NewPlayer(func(int) []string { return []string{"sleep", "10"} }, log.Discard())

	done := make(chan error, 1)
	go func() { done <- p.Play(context.Background(), pcm(10)) }()

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.current != nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err, "interrupted playback is not an error")
	case <-time.After(2 * time.Second):
		t.Fatal("Play did not return after Stop")
	}
	assert.Equal(t, 0, p.Played())
}

func TestPlayContextCancel(t *testing.T) {
	p := NewPlayer(func(int) []string { return []string{"sleep", "10"} }, log.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Play(ctx, pcm(10))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPlayRejects(t *testing.T) {
	p := NewPlayer(func(int) []string { return nil }, log.Discard())

	assert.NoError(t, p.Play(context.Background(), nil))
	assert.ErrorIs(t, p.Play(context.Background(), pcm(4)), ErrNoPlayer)

	mp3 := &tts.AudioResult{Audio: []byte{1}, Format: tts.AudioFormat{Encoding: tts.EncodingMP3}}
	assert.True(t, errors.Is(p.Play(context.Background(), mp3), tts.ErrUnsupportedEncoding))
}

func TestMissingPlayerBinary(t *testing.T) {
	p := NewPlayer(func(int) []string { return []string{"lazarillo-no-such-player"} }, log.Discard())
	assert.Error(t, p.Play(context.Background(), pcm(4)))
}
