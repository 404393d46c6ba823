// Package audio plays synthesized speech on the host's own speaker by piping
// raw PCM16 into an external player process.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"github.com/teslashibe/go-lazarillo/pkg/tts"
)

// ErrNoPlayer is returned when no player command is known for the platform.
var ErrNoPlayer = errors.New("audio: no player command for this platform")

// CommandFunc returns the argv that reads mono PCM16 at rate from stdin.
type CommandFunc func(rate int) []string

// DefaultCommand picks aplay on Linux and ffplay elsewhere.
func DefaultCommand(rate int) []string {
	r := strconv.Itoa(rate)
	if runtime.GOOS == "linux" {
		return []string{"aplay", "-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", r, "-"}
	}
	return []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-f", "s16le", "-ac", "1", "-ar", r, "-"}
}

// Player is a speech.Sink backed by a local playback process. One process
// runs per utterance; Stop kills it.
type Player struct {
	command CommandFunc
	logger  *slog.Logger

	mu      sync.Mutex
	current *exec.Cmd
	played  int
}

// NewPlayer creates a player. A nil command uses DefaultCommand.
func NewPlayer(command CommandFunc, logger *slog.Logger) *Player {
	if command == nil {
		command = DefaultCommand
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		command: command,
		logger:  logger.With("component", "audio"),
	}
}

// Play writes the PCM to a new player process and waits for it to exit.
func (p *Player) Play(ctx context.Context, audio *tts.AudioResult) error {
	if audio == nil || len(audio.Audio) == 0 {
		return nil
	}
	if !audio.Format.Encoding.IsPCM() {
		return fmt.Errorf("%w: %s", tts.ErrUnsupportedEncoding, audio.Format.Encoding)
	}

	argv := p.command(audio.Format.SampleRate)
	if len(argv) == 0 {
		return ErrNoPlayer
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}

	p.mu.Lock()
	p.stopLocked()
	if err := cmd.Start(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("start %s: %w", argv[0], err)
	}
	p.current = cmd
	p.mu.Unlock()

	p.logger.Debug("playing", "player", argv[0], "bytes", len(audio.Audio), "duration", audio.Duration)

	_, writeErr := stdin.Write(audio.Audio)
	stdin.Close()
	waitErr := cmd.Wait()

	p.mu.Lock()
	interrupted := p.current != cmd
	if !interrupted {
		p.current = nil
		p.played++
	}
	p.mu.Unlock()

	if interrupted || ctx.Err() != nil {
		return ctx.Err()
	}
	if writeErr != nil {
		return fmt.Errorf("write audio: %w", writeErr)
	}
	if waitErr != nil {
		return fmt.Errorf("%s: %w", argv[0], waitErr)
	}
	return nil
}

// Stop kills the current player process, if any.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

// Played returns how many utterances ran to completion.
func (p *Player) Played() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.played
}

func (p *Player) stopLocked() {
	if p.current != nil && p.current.Process != nil {
		_ = p.current.Process.Kill()
	}
	p.current = nil
}
