// Package protocol defines the JSON wire format shared by the server and the
// client. Every frame is an Envelope: an event type plus an optional payload.
package protocol

import (
	"dungeon/internal/gamemap"
	"dungeon/internal/grid"
	"encoding/json"
	"errors"
	"fmt"
)

// Type names an event on the wire.
type Type string

// Anonymous channel.
const (
	Register        Type = "Register"
	Registered      Type = "Registered"
	IdentityTaken   Type = "IdentityTaken"
	Login           Type = "Login"
	LoginSuccessful Type = "LoginSuccessful"
	LoginFailed     Type = "LoginFailed"
)

// Authenticated channel.
const (
	AlreadyConnected Type = "AlreadyConnected"
	Hello            Type = "Hello"
	Move             Type = "Move"
	ChangeDirection  Type = "ChangeDirection"
	PlayerJoined     Type = "PlayerJoined"
	PlayerUpdated    Type = "PlayerUpdated"
	PlayerLeft       Type = "PlayerLeft"
)

// Error may be sent on either channel.
const Error Type = "Error"

// Error codes carried by ErrorPayload.
const (
	CodeMalformed        = "malformed"
	CodeUnknownEvent     = "unknown_event"
	CodeInvalidDirection = "invalid_direction"
	CodeInvalidIdentity  = "invalid_identity"
	CodeInternal         = "internal"
)

// ErrMalformed wraps every decode failure.
var ErrMalformed = errors.New("protocol: malformed message")

// Envelope is one frame.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Credentials is the payload of Register and Login.
type Credentials struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
}

// TokenPayload is the payload of Registered and LoginSuccessful.
type TokenPayload struct {
	Token string `json:"token"`
}

// DirectionPayload is the payload of Move and ChangeDirection.
type DirectionPayload struct {
	Direction grid.Direction `json:"direction"`
}

// Player is the wire snapshot of one player. Position is a value so
// decoding never shares it with another entity.
type Player struct {
	Identity    string         `json:"identity"`
	Position    grid.Position  `json:"position"`
	Direction   grid.Direction `json:"direction"`
	PressingKey bool           `json:"pressingKey"`
	Avatar      string         `json:"avatar"`
	Connected   bool           `json:"connected"`
}

// HelloPayload is the one full-state transfer per connection.
type HelloPayload struct {
	Players []Player                    `json:"players"`
	Tiles   map[string]gamemap.TileKind `json:"tiles"`
	Self    string                      `json:"self"`
}

// LeftPayload is the payload of PlayerLeft.
type LeftPayload struct {
	Identity string `json:"identity"`
}

// ErrorPayload is the payload of Error.
type ErrorPayload struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// Encode marshals one frame. A nil payload is omitted.
func Encode(t Type, payload any) ([]byte, error) {
	env := Envelope{Type: t}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", t, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// MustEncode is Encode for payloads that cannot fail to marshal.
func MustEncode(t Type, payload any) []byte {
	b, err := Encode(t, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses one frame.
func Decode(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// Into decodes the payload into v.
func (e Envelope) Into(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformed, e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformed, e.Type, err)
	}
	return nil
}
