package protocol

import "time"

// NewVibrateMessage creates a vibrate command.
func NewVibrateMessage(d time.Duration) (*Message, error) {
	return NewMessage(TypeVibrate, VibrateData{DurationMs: d.Milliseconds()})
}

// NewSpeakStartMessage announces an utterance.
func NewSpeakStartMessage(start SpeakStartData) (*Message, error) {
	if start.Channels == 0 {
		start.Channels = 1
	}
	return NewMessage(TypeSpeakStart, start)
}

// NewSpeakStopMessage ends an utterance.
func NewSpeakStopMessage(utteranceID, reason string) (*Message, error) {
	return NewMessage(TypeSpeakStop, SpeakStopData{UtteranceID: utteranceID, Reason: reason})
}

// NewHelloMessage creates a handset greeting.
func NewHelloMessage(hello HelloData) (*Message, error) {
	return NewMessage(TypeHello, hello)
}

// NewAckMessage acknowledges a finished command.
func NewAckMessage(of MessageType, utteranceID string) (*Message, error) {
	return NewMessage(TypeAck, AckData{Of: of, UtteranceID: utteranceID})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// Pong builds the reply to a ping message.
func (m *Message) Pong() (*Message, error) {
	ping, err := m.GetPingData()
	if err != nil {
		return nil, err
	}
	return NewPongMessage(ping.ID, ping.Timestamp, time.Now().UnixMilli())
}

// GetHelloData extracts the handset greeting.
func (m *Message) GetHelloData() (*HelloData, error) {
	var data HelloData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAckData extracts an acknowledgement.
func (m *Message) GetAckData() (*AckData, error) {
	var data AckData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetVibrateData extracts a vibrate command.
func (m *Message) GetVibrateData() (*VibrateData, error) {
	var data VibrateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSpeakStartData extracts an utterance header.
func (m *Message) GetSpeakStartData() (*SpeakStartData, error) {
	var data SpeakStartData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSpeakStopData extracts an utterance trailer.
func (m *Message) GetSpeakStopData() (*SpeakStopData, error) {
	var data SpeakStopData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
