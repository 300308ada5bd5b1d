package chunkserv

import (
	"encoding/json"
	"time"

	"github.com/bosley/chunkscribe/scribe"
)

const (
	TypeRequestTranscription = "request-transcription"
	TypeError                = "error"
)

// Request is an inbound message. Ref is an optional caller chosen tag echoed
// on every event of the request.
type Request struct {
	Type  string `json:"type"`
	Ref   string `json:"ref,omitempty"`
	Audio []byte `json:"audio"`
}

// Message represents a message sent over WebSocket
type Message struct {
	Type      string          `json:"type"`
	ClientID  string          `json:"clientId"`
	RequestID string          `json:"requestId,omitempty"`
	Ref       string          `json:"ref,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// StatusPayload is the payload of process-started, process-finished and
// error messages.
type StatusPayload struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Chunks decodes the snapshot of a processing message.
func (m Message) Chunks() ([]scribe.ChunkState, error) {
	var chunks []scribe.ChunkState
	err := json.Unmarshal(m.Payload, &chunks)
	return chunks, err
}

// Status decodes the payload of a status message.
func (m Message) Status() (StatusPayload, error) {
	var status StatusPayload
	err := json.Unmarshal(m.Payload, &status)
	return status, err
}

func newMessage(typ, clientID, ref string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:      typ,
		ClientID:  clientID,
		Ref:       ref,
		Timestamp: time.Now(),
		Payload:   data,
	}, nil
}

// eventMessage converts a coordinator event to its wire form.
func eventMessage(e scribe.Event, clientID, ref string) (Message, error) {
	var payload any
	switch e.Type {
	case scribe.EventProcessing:
		payload = e.Chunks
	default:
		payload = StatusPayload{Message: e.Message, Error: e.Error}
	}

	msg, err := newMessage(string(e.Type), clientID, ref, payload)
	if err != nil {
		return Message{}, err
	}
	msg.RequestID = e.RequestID
	return msg, nil
}
