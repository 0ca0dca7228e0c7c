package frame

import (
	"fmt"
	"reflect"

	cbor "github.com/fxamacker/cbor/v2"
)

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a binary codec using deterministic core encoding. Maps inside
// content decode to map[string]any so listeners see the same shapes as with
// JSON.
func CBOR() (Codec, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor dec mode: %w", err)
	}
	return cborCodec{enc: em, dec: dm}, nil
}

func (cborCodec) Name() string { return CodecCBOR }
func (cborCodec) Binary() bool { return true }

func (c cborCodec) Encode(f Frame) ([]byte, error) {
	w, err := toWire(f)
	if err != nil {
		return nil, err
	}
	return c.enc.Marshal(w)
}

func (c cborCodec) Decode(data []byte) (Frame, error) {
	var w inboundWire
	if err := c.dec.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fromWire(w)
}
