// Package protocol defines the JSON messages of the observer stream and the
// player session socket.
package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeSubscribe = "SUBSCRIBE"
	TypeEvent     = "EVENT"
	TypeHello     = "HELLO"
	TypeWelcome   = "WELCOME"
	TypeCmd       = "CMD"
	TypeResult    = "RESULT"
	TypeError     = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// SUBSCRIBE (client -> server). The first message on the observer socket; it can be
// re-sent to change the filter. An empty Kinds list receives every event.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Kinds           []string `json:"kinds,omitempty"`
	Entries         []uint32 `json:"entries,omitempty"`
}

// EVENT (server -> client)
type EventMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Seq             uint64         `json:"seq"`
	TS              int64          `json:"ts"`
	Kind            string         `json:"kind"`
	Entry           uint32         `json:"entry"`
	Fields          map[string]any `json:"fields,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: message}
}
