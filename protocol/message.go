package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the value of a message's mType discriminant.
type Kind string

const (
	KindRoomSize  Kind = "RoomSize"
	KindDrawnSize Kind = "DrawnSize"
	KindCardSet   Kind = "CardSet"
	KindReset     Kind = "Reset"
	KindHeartbeat Kind = "ts"
	KindClose     Kind = "close"
)

// Version selects between the two protocol generations a server may speak.
type Version int

const (
	// V2 is the current sprint-planning protocol.
	V2 Version = iota
	// V1 is the legacy planning-poker protocol. It has no Reset message.
	V1
)

// String returns the name used for the version on the command line.
func (v Version) String() string {
	switch v {
	case V1:
		return "planning-poker"
	case V2:
		return "sprint-planning"
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

// ParseVersion maps a command line name to a Version.
func ParseVersion(name string) (Version, error) {
	switch name {
	case "", "v2", "sprint-planning":
		return V2, nil
	case "v1", "planning-poker":
		return V1, nil
	default:
		return V2, fmt.Errorf("unknown protocol version %q", name)
	}
}

// ErrMalformedFrame is returned by Decode when a frame is not valid JSON.
var ErrMalformedFrame = errors.New("malformed frame")

// Message is one decoded inbound message. The set of implementations is closed.
type Message interface {
	Kind() Kind
	isMessage()
}

type RoomSizeMessage struct {
	Size int `json:"size"`
}

type DrawnSizeMessage struct {
	Size int `json:"size"`
}

// CardSetMessage carries the revealed cards. Card values are opaque to the
// client and handed to the presenter unchanged.
type CardSetMessage struct {
	Cards []json.RawMessage `json:"cards"`
}

type ResetMessage struct{}

type HeartbeatMessage struct{}

type CloseMessage struct{}

// UnknownMessage is any element that could not be mapped to a known kind,
// including known kinds whose payload failed to decode (Err is set then).
type UnknownMessage struct {
	MType string
	Raw   json.RawMessage
	Err   error
}

func (RoomSizeMessage) Kind() Kind  { return KindRoomSize }
func (DrawnSizeMessage) Kind() Kind { return KindDrawnSize }
func (CardSetMessage) Kind() Kind   { return KindCardSet }
func (ResetMessage) Kind() Kind     { return KindReset }
func (HeartbeatMessage) Kind() Kind { return KindHeartbeat }
func (CloseMessage) Kind() Kind     { return KindClose }
func (m UnknownMessage) Kind() Kind { return Kind(m.MType) }

func (RoomSizeMessage) isMessage()  {}
func (DrawnSizeMessage) isMessage() {}
func (CardSetMessage) isMessage()   {}
func (ResetMessage) isMessage()     {}
func (HeartbeatMessage) isMessage() {}
func (CloseMessage) isMessage()     {}
func (UnknownMessage) isMessage()   {}

// Decode parses one inbound frame into an ordered sequence of messages.
// A JSON array yields its elements in order; any other value is treated as
// a one-element sequence. Blank frames yield no messages.
func Decode(frame []byte, v Version) ([]Message, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var elements []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &elements); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
	} else {
		if !json.Valid(trimmed) {
			return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedFrame)
		}
		elements = []json.RawMessage{json.RawMessage(trimmed)}
	}

	msgs := make([]Message, 0, len(elements))
	for _, raw := range elements {
		msgs = append(msgs, decodeElement(raw, v))
	}
	return msgs, nil
}

func decodeElement(raw json.RawMessage, v Version) Message {
	var head struct {
		MType string `json:"mType"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return UnknownMessage{Raw: raw, Err: err}
	}

	var (
		msg Message
		err error
	)
	switch Kind(head.MType) {
	case KindRoomSize:
		var m RoomSizeMessage
		err = json.Unmarshal(raw, &m)
		msg = m
	case KindDrawnSize:
		var m DrawnSizeMessage
		err = json.Unmarshal(raw, &m)
		msg = m
	case KindCardSet:
		var m CardSetMessage
		err = json.Unmarshal(raw, &m)
		msg = m
	case KindReset:
		if v == V1 {
			return UnknownMessage{MType: head.MType, Raw: raw}
		}
		msg = ResetMessage{}
	case KindHeartbeat:
		msg = HeartbeatMessage{}
	case KindClose:
		msg = CloseMessage{}
	default:
		return UnknownMessage{MType: head.MType, Raw: raw}
	}
	if err != nil {
		return UnknownMessage{MType: head.MType, Raw: raw, Err: err}
	}
	return msg
}
