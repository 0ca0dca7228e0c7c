package frame

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrMalformed          = errors.New("malformed frame")
	ErrMissingMatch       = errors.New("message frame without match targets")
	ErrMissingDestination = errors.New("frame without destination")
	ErrUnknownCodec       = errors.New("unknown codec")
)

// Codec converts frames to and from their wire representation.
type Codec interface {
	// Name identifies the codec in configuration and is used as the
	// websocket subprotocol.
	Name() string

	// Binary reports whether encoded frames must travel as binary
	// websocket messages.
	Binary() bool

	Encode(f Frame) ([]byte, error)
	Decode(data []byte) (Frame, error)
}

// Codec names.
const (
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

// Lookup returns the codec registered under name. An empty name selects JSON.
func Lookup(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSON(), nil
	case CodecCBOR:
		return CBOR()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// Names lists the supported codec names.
func Names() []string {
	return []string{CodecJSON, CodecCBOR}
}

// Wire shapes shared by the codecs. Field order matches the frame tables:
// type first, then destination, content, match.

type destinationWire struct {
	Type        Type   `json:"type" cbor:"type"`
	Destination string `json:"destination" cbor:"destination"`
}

type publishWire struct {
	Type        Type   `json:"type" cbor:"type"`
	Destination string `json:"destination" cbor:"destination"`
	Content     any    `json:"content" cbor:"content"`
}

type messageWire struct {
	Type    Type     `json:"type" cbor:"type"`
	Match   []string `json:"match" cbor:"match"`
	Content any      `json:"content" cbor:"content"`
}

type errorWire struct {
	Type    Type `json:"type" cbor:"type"`
	Content any  `json:"content" cbor:"content"`
}

// inboundWire accepts any frame shape.
type inboundWire struct {
	Type        string   `json:"type" cbor:"type"`
	Destination *string  `json:"destination" cbor:"destination"`
	Content     any      `json:"content" cbor:"content"`
	Match       []string `json:"match" cbor:"match"`
}

func toWire(f Frame) (any, error) {
	switch f := f.(type) {
	case Subscribe:
		return destinationWire{Type: TypeSubscribe, Destination: f.Destination}, nil
	case Unsubscribe:
		return destinationWire{Type: TypeUnsubscribe, Destination: f.Destination}, nil
	case Publish:
		return publishWire{Type: TypePublish, Destination: f.Destination, Content: f.Content}, nil
	case Message:
		return messageWire{Type: TypeMessage, Match: f.Match, Content: f.Content}, nil
	case Error:
		return errorWire{Type: TypeError, Content: f.Details}, nil
	case Unknown:
		return nil, fmt.Errorf("cannot encode unknown frame type %q", f.Tag)
	default:
		return nil, fmt.Errorf("cannot encode frame %T", f)
	}
}

func fromWire(w inboundWire) (Frame, error) {
	destination := func() (string, error) {
		if w.Destination == nil {
			return "", fmt.Errorf("%w: %s", ErrMissingDestination, w.Type)
		}
		return *w.Destination, nil
	}

	switch Type(w.Type) {
	case TypeMessage:
		if len(w.Match) == 0 {
			return nil, ErrMissingMatch
		}
		return Message{Content: w.Content, Match: w.Match}, nil
	case TypeError:
		return Error{Details: w.Content}, nil
	case TypeSubscribe:
		d, err := destination()
		if err != nil {
			return nil, err
		}
		return Subscribe{Destination: d}, nil
	case TypeUnsubscribe:
		d, err := destination()
		if err != nil {
			return nil, err
		}
		return Unsubscribe{Destination: d}, nil
	case TypePublish:
		d, err := destination()
		if err != nil {
			return nil, err
		}
		return Publish{Destination: d, Content: w.Content}, nil
	default:
		return Unknown{Tag: w.Type}, nil
	}
}
