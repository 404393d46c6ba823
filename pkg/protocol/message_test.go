package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
	}{
		{"vibrate", TypeVibrate, VibrateData{DurationMs: 400}},
		{"speak start", TypeSpeakStart, SpeakStartData{UtteranceID: "u1", Format: FormatOpus, SampleRate: 48000}},
		{"nil data", TypePing, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if err != nil {
				t.Fatalf("NewMessage() error = %v", err)
			}
			if msg.Type != tt.msgType {
				t.Errorf("type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("timestamp should be set")
			}
			if tt.data == nil && msg.Data != nil {
				t.Errorf("data = %s, want nil", msg.Data)
			}
		})
	}
}

func TestNewMessageRejectsUnmarshalable(t *testing.T) {
	if _, err := NewMessage(TypeAck, make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
}

func TestVibrateWireFormat(t *testing.T) {
	msg, err := NewVibrateMessage(700 * time.Millisecond)
	if err != nil {
		t.Fatalf("NewVibrateMessage() error = %v", err)
	}
	data, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["type"] != "vibrate" {
		t.Errorf("type = %v, want vibrate", raw["type"])
	}
	body, ok := raw["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %T, want object", raw["data"])
	}
	if body["ms"] != float64(700) {
		t.Errorf("ms = %v, want 700", body["ms"])
	}
}

func TestSpeakStartDefaultsMono(t *testing.T) {
	msg, err := NewSpeakStartMessage(SpeakStartData{UtteranceID: "u1", Format: FormatOpus, SampleRate: 48000, FrameMs: 20})
	if err != nil {
		t.Fatalf("NewSpeakStartMessage() error = %v", err)
	}

	parsed, err := ParseMessage(mustBytes(t, msg))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	start, err := parsed.GetSpeakStartData()
	if err != nil {
		t.Fatalf("GetSpeakStartData() error = %v", err)
	}
	if start.Channels != 1 {
		t.Errorf("channels = %d, want 1", start.Channels)
	}
	if start.FrameMs != 20 || start.UtteranceID != "u1" {
		t.Errorf("start = %+v", start)
	}
}

func TestSpeakStop(t *testing.T) {
	msg, err := NewSpeakStopMessage("u2", StopCancelled)
	if err != nil {
		t.Fatalf("NewSpeakStopMessage() error = %v", err)
	}
	stop, err := msg.GetSpeakStopData()
	if err != nil {
		t.Fatalf("GetSpeakStopData() error = %v", err)
	}
	if stop.UtteranceID != "u2" || stop.Reason != StopCancelled {
		t.Errorf("stop = %+v", stop)
	}
}

func TestPingPong(t *testing.T) {
	ping, err := NewPingMessage("abc")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}

	pong, err := ping.Pong()
	if err != nil {
		t.Fatalf("Pong() error = %v", err)
	}
	if pong.Type != TypePong {
		t.Errorf("type = %v, want pong", pong.Type)
	}

	data, err := pong.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}
	if data.ID != "abc" {
		t.Errorf("id = %q, want abc", data.ID)
	}
	if data.LatencyMs < 0 {
		t.Errorf("latency = %d, want >= 0", data.LatencyMs)
	}
}

func TestHelloSupports(t *testing.T) {
	tests := []struct {
		name    string
		formats []string
		format  string
		want    bool
	}{
		{"default opus", nil, FormatOpus, true},
		{"default no pcm", nil, FormatPCM16, false},
		{"explicit pcm", []string{FormatPCM16}, FormatPCM16, true},
		{"explicit pcm only", []string{FormatPCM16}, FormatOpus, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := HelloData{Formats: tt.formats}
			if got := h.Supports(tt.format); got != tt.want {
				t.Errorf("Supports(%q) = %v, want %v", tt.format, got, tt.want)
			}
		})
	}
}

func TestParseMessageErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not json", "hello"},
		{"missing type", `{"data":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMessage([]byte(tt.in)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseHelloAndAck(t *testing.T) {
	in := `{"type":"hello","ts":1,"data":{"device_id":"pixel-7","formats":["opus","pcm16"],"vibrator":true}}`
	msg, err := ParseMessage([]byte(in))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	hello, err := msg.GetHelloData()
	if err != nil {
		t.Fatalf("GetHelloData() error = %v", err)
	}
	if hello.DeviceID != "pixel-7" || !hello.Vibrator || !hello.Supports(FormatPCM16) {
		t.Errorf("hello = %+v", hello)
	}

	ack, err := NewAckMessage(TypeSpeakStop, "u3")
	if err != nil {
		t.Fatalf("NewAckMessage() error = %v", err)
	}
	data, err := ack.GetAckData()
	if err != nil {
		t.Fatalf("GetAckData() error = %v", err)
	}
	if data.Of != TypeSpeakStop || data.UtteranceID != "u3" {
		t.Errorf("ack = %+v", data)
	}
}

func mustBytes(t *testing.T, m *Message) []byte {
	t.Helper()
	b, err := m.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	return b
}
