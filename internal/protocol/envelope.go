package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/lox/borsa/internal/game"
)

// Envelope is the frame every websocket message travels in.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode frames payload as a message of the given type.
func Encode(t MessageType, payload any) ([]byte, error) {
	env := Envelope{Type: t}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", t, err)
		}
		env.Payload = data
	}
	return json.Marshal(env)
}

// Decode parses a frame. Malformed input is a validation error.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, game.Validationf("malformed message: %v", err)
	}
	if env.Type == "" {
		return nil, game.Validationf("message type is required")
	}
	return &env, nil
}

// DecodePayload unmarshals the payload into v. A missing payload leaves v
// at its zero value.
func (e *Envelope) DecodePayload(v any) error {
	raw := bytes.TrimSpace(e.Payload)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return game.Validationf("malformed %s payload: %v", e.Type, err)
	}
	return nil
}
