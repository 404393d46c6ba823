// Package alert turns a filtered detection set into feedback: a vibration
// pulse on every qualifying tick and a spoken sentence, deduplicated so the
// same sentence is not repeated within a short window.
package alert

import (
	"strings"
	"time"

	"github.com/teslashibe/go-lazarillo/pkg/inference"
	"github.com/teslashibe/go-lazarillo/pkg/settings"
)

// DedupeWindow is how long an identical sentence stays suppressed.
const DedupeWindow = 2500 * time.Millisecond

// State is the speech-dedupe memory. The zero value means nothing spoken.
type State struct {
	LastSentence string    `json:"last_sentence"`
	LastSpokenAt time.Time `json:"last_spoken_at"`
}

// Decision is what the coordinator should do for one tick.
type Decision struct {
	Vibrate   bool
	Vibration time.Duration

	Speak      bool
	Suppressed bool // a sentence was composed but deduplicated
	Sentence   string

	// Next is the state after this tick.
	Next State
}

// Decide computes the feedback for one tick using the default window.
func Decide(filtered []inference.DetectedObject, cfg settings.Config, state State, now time.Time) Decision {
	return decide(filtered, cfg, state, now, DedupeWindow)
}

func decide(filtered []inference.DetectedObject, cfg settings.Config, state State, now time.Time, window time.Duration) Decision {
	d := Decision{Next: state}
	if len(filtered) == 0 {
		return d
	}

	if cfg.VibrationEnabled {
		d.Vibrate = true
		d.Vibration = cfg.VibrationDuration()
	}

	d.Sentence = Compose(filtered, cfg.Language)
	if d.Sentence == "" {
		return d
	}

	if d.Sentence == state.LastSentence && !state.LastSpokenAt.IsZero() && now.Sub(state.LastSpokenAt) < window {
		d.Suppressed = true
		return d
	}

	d.Speak = true
	d.Next = State{LastSentence: d.Sentence, LastSpokenAt: now}
	return d
}

var directionWords = map[settings.Language]map[inference.Direction]string{
	settings.Spanish: {
		inference.DirectionLeft:   "izquierda",
		inference.DirectionCenter: "frente",
		inference.DirectionRight:  "derecha",
	},
	settings.English: {
		inference.DirectionLeft:   "left",
		inference.DirectionCenter: "center",
		inference.DirectionRight:  "right",
	},
}

var joiners = map[settings.Language]string{
	settings.Spanish: " y ",
	settings.English: " and ",
}

// DirectionWord returns the localized word for a direction, or "" when
// the direction is unknown.
func DirectionWord(dir inference.Direction, lang settings.Language) string {
	words, ok := directionWords[lang]
	if !ok {
		words = directionWords[settings.Spanish]
	}
	return words[dir]
}

// Compose builds the spoken sentence: "label direction" per object, in
// order, joined with the language's conjunction.
func Compose(objects []inference.DetectedObject, lang settings.Language) string {
	joiner, ok := joiners[lang]
	if !ok {
		joiner = joiners[settings.Spanish]
	}

	parts := make([]string, 0, len(objects))
	for _, o := range objects {
		label := strings.TrimSpace(o.Label)
		if label == "" {
			continue
		}
		if word := DirectionWord(o.Direction, lang); word != "" {
			parts = append(parts, label+" "+word)
		} else {
			parts = append(parts, label)
		}
	}
	return strings.Join(parts, joiner)
}
