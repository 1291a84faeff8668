// Package events consumes the robot's push event stream.
//
// The robot publishes JSON messages of the form {"type": ..., "data": ...}
// on ws://<host>:8790/events. Older firmware exposes the same events as
// Server-Sent Events on GET /api/events. Both transports feed the same
// listener registries, so consumers do not care which one is active.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// DefaultType is used when a payload carries no type.
const DefaultType = "message"

// DefaultAwaitTimeout bounds every dispatch-then-await exchange.
const DefaultAwaitTimeout = 15 * time.Second

// Legacy event names emitted by the robot service.
const (
	TypeInitComplete     = "initComplete"
	TypeStateChange      = "onStateChange"
	TypeResult           = "onResult"
	TypeSpeakComplete    = "onSpeakComplete"
	TypeUserUtterance    = "onEventUserUtterance"
	TypeDsdResult        = "onDsdResult"
	TypeDetectFaceResult = "onDetectFaceResult"
	TypeVoiceDetect      = "onVoiceDetect"
	TypeCall             = "call"
	TypeReturn           = "return"
)

// LegacyTypes lists the named SSE events the legacy endpoint emits.
var LegacyTypes = []string{
	TypeInitComplete,
	TypeStateChange,
	TypeResult,
	TypeSpeakComplete,
	TypeUserUtterance,
	TypeDsdResult,
	TypeDetectFaceResult,
}

// Sentinel errors.
var (
	// ErrDeliveryTimeout is returned when an awaited event does not arrive in time.
	ErrDeliveryTimeout = errors.New("events: delivery timeout")

	// ErrNotConnected is returned by Send when there is no live connection.
	ErrNotConnected = errors.New("events: not connected")

	// ErrUnsupportedTransport is returned by Send on the receive-only SSE transport.
	ErrUnsupportedTransport = errors.New("events: transport is receive-only")
)

// Event is one message from the robot.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	At   time.Time       `json:"at"`
}

// Decode unmarshals Data into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Parse normalizes a raw payload into an Event.
//
// Unparseable payloads become a "message" event whose data is the raw text
// as a JSON string. A missing or empty type becomes "message"; missing or
// null data becomes the whole object.
func Parse(payload []byte) Event {
	ev := Event{Type: DefaultType, At: time.Now()}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		ev.Data = json.RawMessage("null")
		return ev
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		var v any
		if json.Unmarshal(trimmed, &v) == nil {
			// Valid JSON that is not an object (number, string, array).
			ev.Data = json.RawMessage(trimmed)
			return ev
		}
		raw, _ := json.Marshal(string(payload))
		ev.Data = raw
		return ev
	}
	if obj == nil {
		ev.Data = json.RawMessage("null")
		return ev
	}

	if t, ok := obj["type"]; ok {
		var s string
		if json.Unmarshal(t, &s) == nil && s != "" {
			ev.Type = s
		}
	}

	if d, ok := obj["data"]; ok && !bytes.Equal(bytes.TrimSpace(d), []byte("null")) {
		ev.Data = d
	} else {
		ev.Data = json.RawMessage(trimmed)
	}
	return ev
}

// State is the lifecycle of a Client connection.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}
