package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Literal(t *testing.T) {
	p, err := Compile("/time")
	require.NoError(t, err)
	assert.True(t, p.Literal())
	assert.Equal(t, "/time", p.String())

	p, err = Compile("/sensor/\\d+")
	require.NoError(t, err)
	assert.False(t, p.Literal())
}

func TestPattern_Match(t *testing.T) {
	tests := []struct {
		pattern string
		target  string
		want    bool
	}{
		{"/time", "/time", true},
		{"/time", "/time/utc", true},
		{"/time", "/tim", false},
		{".*", "/time", true},
		{".*", "", true},
		{"^/chat/", "/chat/room1", true},
		{"^/chat/", "/x/chat/room1", false},
		{"^/sensor/(\\d+)$", "/sensor/42", true},
		{"^/sensor/(\\d+)$", "/sensor/abc", false},
		{"(?=/a)/a", "/a", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.target, func(t *testing.T) {
			p, err := Compile(tt.pattern)
			require.NoError(t, err)

			got, err := p.Match(tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	for _, bad := range []string{"(", "[a-", "*", "a)"} {
		_, err := Compile(bad)
		var perr *PatternError
		assert.ErrorAs(t, err, &perr, "pattern %q", bad)
	}
}
