package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Engine-level frame types.
const (
	frameOpen    byte = '0'
	frameClose   byte = '1'
	framePing    byte = '2'
	framePong    byte = '3'
	frameMessage byte = '4'
	frameNoop    byte = '6'
)

// Socket-level packet types carried inside a message frame.
const (
	packetConnect      byte = '0'
	packetDisconnect   byte = '1'
	packetEvent        byte = '2'
	packetAck          byte = '3'
	packetConnectError byte = '4'
)

var errEmptyFrame = errors.New("empty frame")

// Packet is a decoded text frame.
type Packet struct {
	Frame     byte
	Type      byte
	Namespace string
	Event     string
	Payload   json.RawMessage
}

// Handshake is the payload of the open frame.
type Handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

// ParsePacket decodes a single text frame.
func ParsePacket(frame string) (Packet, error) {
	if frame == "" {
		return Packet{}, errEmptyFrame
	}
	p := Packet{Frame: frame[0]}
	rest := frame[1:]

	switch p.Frame {
	case frameOpen:
		p.Payload = json.RawMessage(rest)
		return p, nil
	case frameClose, framePing, framePong, frameNoop:
		return p, nil
	case frameMessage:
	default:
		return Packet{}, fmt.Errorf("unknown frame type %q", p.Frame)
	}

	if rest == "" {
		return Packet{}, errors.New("message frame without packet type")
	}
	p.Type = rest[0]
	rest = rest[1:]

	if strings.HasPrefix(rest, "/") {
		if i := strings.IndexByte(rest, ','); i >= 0 {
			p.Namespace = rest[:i]
			rest = rest[i+1:]
		} else {
			p.Namespace = rest
			rest = ""
		}
	}

	// Optional ack id precedes the JSON body.
	for rest != "" && rest[0] >= '0' && rest[0] <= '9' {
		rest = rest[1:]
	}

	switch p.Type {
	case packetEvent, packetAck:
		var args []json.RawMessage
		if err := json.Unmarshal([]byte(rest), &args); err != nil {
			return Packet{}, fmt.Errorf("decode event: %w", err)
		}
		if p.Type == packetEvent {
			if len(args) == 0 {
				return Packet{}, errors.New("event without name")
			}
			if err := json.Unmarshal(args[0], &p.Event); err != nil {
				return Packet{}, fmt.Errorf("decode event name: %w", err)
			}
			if len(args) > 1 {
				p.Payload = args[1]
			}
		}
	case packetConnect, packetConnectError, packetDisconnect:
		if rest != "" {
			p.Payload = json.RawMessage(rest)
		}
	default:
		return Packet{}, fmt.Errorf("unknown packet type %q", p.Type)
	}
	return p, nil
}

// EncodeEvent builds an event frame. A nil payload sends only the event name.
func EncodeEvent(event string, payload any) (string, error) {
	args := []any{event}
	if payload != nil {
		args = append(args, payload)
	}
	body, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string([]byte{frameMessage, packetEvent}) + string(body), nil
}

// EncodeConnect builds the namespace connect frame, with optional auth data.
func EncodeConnect(auth any) (string, error) {
	prefix := string([]byte{frameMessage, packetConnect})
	if auth == nil {
		return prefix, nil
	}
	body, err := json.Marshal(auth)
	if err != nil {
		return "", err
	}
	return prefix + string(body), nil
}
