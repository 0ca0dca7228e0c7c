package frame

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON_EncodeOutbound(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{
			name:  "publish",
			frame: Publish{Destination: "/chat", Content: "hi"},
			want:  `{"type":"publish","destination":"/chat","content":"hi"}`,
		},
		{
			name:  "subscribe",
			frame: Subscribe{Destination: "/time"},
			want:  `{"type":"subscribe","destination":"/time"}`,
		},
		{
			name:  "unsubscribe",
			frame: Unsubscribe{Destination: "/time"},
			want:  `{"type":"unsubscribe","destination":"/time"}`,
		},
		{
			name:  "publish with null content",
			frame: Publish{Destination: "/x"},
			want:  `{"type":"publish","destination":"/x","content":null}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := JSON().Encode(tt.frame)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestJSON_EncodeUnknownFails(t *testing.T) {
	_, err := JSON().Encode(Unknown{Tag: "bogus"})
	assert.Error(t, err)
}

func TestJSON_DecodeMessage(t *testing.T) {
	f, err := JSON().Decode([]byte(`{"type":"message","content":"12:00","match":["/time"]}`))
	require.NoError(t, err)

	msg, ok := f.(Message)
	require.True(t, ok, "got %T", f)
	assert.Equal(t, "12:00", msg.Content)
	assert.Equal(t, []string{"/time"}, msg.Match)
	assert.Equal(t, "/time", msg.Target())
}

func TestJSON_DecodeError(t *testing.T) {
	f, err := JSON().Decode([]byte(`{"type":"error","content":"Destination \"/a\" already exists"}`))
	require.NoError(t, err)

	e, ok := f.(Error)
	require.True(t, ok)
	assert.Equal(t, `Destination "/a" already exists`, e.Details)
}

func TestJSON_DecodeUnknownType(t *testing.T) {
	f, err := JSON().Decode([]byte(`{"type":"heartbeat"}`))
	require.NoError(t, err)
	assert.Equal(t, Unknown{Tag: "heartbeat"}, f)

	f, err = JSON().Decode([]byte(`{"content":1}`))
	require.NoError(t, err)
	assert.Equal(t, Unknown{Tag: ""}, f)
}

func TestJSON_DecodeMalformed(t *testing.T) {
	inputs := []string{
		``,
		`not json`,
		`"a string"`,
		`[1,2]`,
		`{"type":`,
		`{"type":"message","match":"not-a-list"}`,
	}
	for _, in := range inputs {
		_, err := JSON().Decode([]byte(in))
		assert.ErrorIs(t, err, ErrMalformed, "input %q", in)
	}
}

func TestJSON_DecodeMessageWithoutMatch(t *testing.T) {
	_, err := JSON().Decode([]byte(`{"type":"message","content":"x"}`))
	assert.ErrorIs(t, err, ErrMissingMatch)

	_, err = JSON().Decode([]byte(`{"type":"message","content":"x","match":[]}`))
	assert.ErrorIs(t, err, ErrMissingMatch)
}

func TestJSON_DecodeClientFrames(t *testing.T) {
	f, err := JSON().Decode([]byte(`{"type":"subscribe","destination":"/time"}`))
	require.NoError(t, err)
	assert.Equal(t, Subscribe{Destination: "/time"}, f)

	f, err = JSON().Decode([]byte(`{"type":"publish","destination":"","content":{"a":1}}`))
	require.NoError(t, err)
	assert.Equal(t, Publish{Destination: "", Content: map[string]any{"a": float64(1)}}, f)

	_, err = JSON().Decode([]byte(`{"type":"unsubscribe"}`))
	assert.True(t, errors.Is(err, ErrMissingDestination))
}

func TestCBOR_RoundTrip(t *testing.T) {
	codec, err := CBOR()
	require.NoError(t, err)
	assert.True(t, codec.Binary())

	frames := []Frame{
		Subscribe{Destination: "/time"},
		Unsubscribe{Destination: "/time"},
		Publish{Destination: "/chat", Content: "hi"},
		Message{Content: map[string]any{"temp": "21"}, Match: []string{"/sensor/1", "1"}},
		Error{Details: "boom"},
	}
	for _, f := range frames {
		data, err := codec.Encode(f)
		require.NoError(t, err, "%T", f)

		got, err := codec.Decode(data)
		require.NoError(t, err, "%T", f)
		assert.Equal(t, f, got)
	}
}

func TestCBOR_DecodeMalformed(t *testing.T) {
	codec, err := CBOR()
	require.NoError(t, err)

	_, err = codec.Decode([]byte{0xff, 0x00})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLookup(t *testing.T) {
	c, err := Lookup("")
	require.NoError(t, err)
	assert.Equal(t, CodecJSON, c.Name())

	c, err = Lookup("cbor")
	require.NoError(t, err)
	assert.Equal(t, CodecCBOR, c.Name())

	_, err = Lookup("xml")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}
