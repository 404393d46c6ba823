// Package protocol defines the WebSocket messages exchanged with the
// companion handset that owns the vibration motor and the speaker.
//
// Control messages are JSON text frames wrapped in Message. Speech audio
// travels as binary frames between a speak_start and a speak_stop, one
// encoded packet per frame.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMissingType is returned by ParseMessage for messages without a type.
var ErrMissingType = errors.New("protocol: message has no type")

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Handset → client
	TypeHello MessageType = "hello" // Device identity and capabilities
	TypeAck   MessageType = "ack"   // Playback or vibration finished

	// Client → handset
	TypeVibrate    MessageType = "vibrate"     // Pulse the motor
	TypeSpeakStart MessageType = "speak_start" // Audio packets follow
	TypeSpeakStop  MessageType = "speak_stop"  // End of utterance or barge-in

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Audio formats carried between speak_start and speak_stop.
const (
	FormatOpus  = "opus"
	FormatPCM16 = "pcm16"
)

// Stop reasons.
const (
	StopDone      = "done"
	StopCancelled = "cancelled"
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, ErrMissingType
	}
	return &msg, nil
}

// HelloData identifies a handset.
type HelloData struct {
	DeviceID string   `json:"device_id"`
	Name     string   `json:"name,omitempty"`
	Formats  []string `json:"formats,omitempty"` // audio formats it can play
	Vibrator bool     `json:"vibrator"`
}

// Supports reports whether the handset plays format. An empty list means
// opus only.
func (h *HelloData) Supports(format string) bool {
	if len(h.Formats) == 0 {
		return format == FormatOpus
	}
	for _, f := range h.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// AckData reports that a command finished on the handset.
type AckData struct {
	Of          MessageType `json:"of"`
	UtteranceID string      `json:"utterance_id,omitempty"`
}

// VibrateData pulses the motor.
type VibrateData struct {
	DurationMs int64 `json:"ms"`
}

// SpeakStartData announces an utterance.
type SpeakStartData struct {
	UtteranceID string `json:"utterance_id"`
	Format      string `json:"format"`      // "opus", "pcm16"
	SampleRate  int    `json:"sample_rate"` // e.g., 48000
	Channels    int    `json:"channels"`    // 1 for mono
	FrameMs     int    `json:"frame_ms,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
}

// SpeakStopData ends an utterance.
type SpeakStopData struct {
	UtteranceID string `json:"utterance_id"`
	Reason      string `json:"reason"` // "done", "cancelled"
}

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
