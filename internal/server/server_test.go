package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/tore/internal/exchange"
	"github.com/rickgao/tore/internal/frame"
)

const waitTimeout = 2 * time.Second

type testServer struct {
	*Server
	exchange *exchange.Exchange
	http     *httptest.Server
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()

	cfg := DefaultConfig()
	cfg.PingInterval = 0
	if mutate != nil {
		mutate(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ex := exchange.New(exchange.DefaultConfig(), nil)
	require.NoError(t, ex.Start(ctx))

	srv := New(cfg, ex, nil)
	hs := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		srv.closeSessions()
		hs.Close()
		cancel()
	})

	return &testServer{Server: srv, exchange: ex, http: hs}
}

func (ts *testServer) dial(t *testing.T, subprotocols ...string) *websocket.Conn {
	t.Helper()

	d := websocket.Dialer{Subprotocols: subprotocols}
	conn, _, err := d.Dial("ws"+strings.TrimPrefix(ts.http.URL, "http")+"/messaging", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitPatterns blocks until the exchange holds n patterns.
func (ts *testServer) waitPatterns(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(ts.exchange.Patterns()) == n
	}, waitTimeout, 5*time.Millisecond)
}

func writeJSON(t *testing.T, conn *websocket.Conn, s string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(s)))
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(waitTimeout))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestWebSocket_SubscribeReceivesPushWithGroups(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	writeJSON(t, conn, `{"type":"subscribe","destination":"/chat/(\\w+)"}`)
	ts.waitPatterns(t, 1)

	require.NoError(t, ts.exchange.Push("hi", "/chat/room1"))

	got := readJSON(t, conn)
	assert.Equal(t, "message", got["type"])
	assert.Equal(t, "hi", got["content"])
	assert.Equal(t, []any{"/chat/room1", "room1"}, got["match"])
}

func TestWebSocket_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{
			name:  "unsubscribe unknown",
			frame: `{"type":"unsubscribe","destination":"/nope"}`,
			want:  `destination "/nope" not exists`,
		},
		{
			name:  "publish not allowed",
			frame: `{"type":"publish","destination":"/a","content":1}`,
			want:  "publish is not allowed on websocket",
		},
		{
			name:  "unknown type",
			frame: `{"type":"bogus"}`,
			want:  `unknown message type "bogus"`,
		},
		{
			name:  "malformed",
			frame: `not json`,
			want:  "invalid frame: malformed frame",
		},
		{
			name:  "missing destination",
			frame: `{"type":"subscribe"}`,
			want:  "invalid frame: frame without destination",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			conn := ts.dial(t)

			writeJSON(t, conn, tt.frame)
			got := readJSON(t, conn)
			assert.Equal(t, "error", got["type"])
			assert.Contains(t, got["content"], tt.want)

			// The connection stays usable.
			writeJSON(t, conn, `{"type":"subscribe","destination":"/ok"}`)
			ts.waitPatterns(t, 1)
			assert.Equal(t, int64(1), ts.Stats().FramesRejected)
		})
	}
}

func TestWebSocket_SubscribeTwiceIsRejected(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	writeJSON(t, conn, `{"type":"subscribe","destination":"/a"}`)
	writeJSON(t, conn, `{"type":"subscribe","destination":"/a"}`)

	got := readJSON(t, conn)
	assert.Equal(t, "error", got["type"])
	assert.Equal(t, `destination "/a" already exists`, got["content"])

	patterns := ts.exchange.Patterns()
	assert.Len(t, patterns["/a"], 1)
}

func TestWebSocket_SessionsAreIndependent(t *testing.T) {
	ts := newTestServer(t, nil)
	a := ts.dial(t)
	b := ts.dial(t)

	writeJSON(t, a, `{"type":"subscribe","destination":"/a"}`)
	writeJSON(t, b, `{"type":"subscribe","destination":"/a"}`)
	require.Eventually(t, func() bool {
		return len(ts.exchange.Patterns()["/a"]) == 2
	}, waitTimeout, 5*time.Millisecond)

	require.NoError(t, ts.exchange.Push("x", "/a"))
	assert.Equal(t, "x", readJSON(t, a)["content"])
	assert.Equal(t, "x", readJSON(t, b)["content"])
}

func TestWebSocket_PublishWhenAllowed(t *testing.T) {
	ts := newTestServer(t, func(cfg *Config) { cfg.AllowWebSocketPublish = true })
	conn := ts.dial(t)

	writeJSON(t, conn, `{"type":"subscribe","destination":"/echo"}`)
	ts.waitPatterns(t, 1)
	writeJSON(t, conn, `{"type":"publish","destination":"/echo","content":{"n":1}}`)

	got := readJSON(t, conn)
	assert.Equal(t, "message", got["type"])
	assert.Equal(t, map[string]any{"n": float64(1)}, got["content"])
	assert.Equal(t, []any{"/echo"}, got["match"])
}

func TestWebSocket_UnsubscribeAndCloseRemovePatterns(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	writeJSON(t, conn, `{"type":"subscribe","destination":"/a"}`)
	writeJSON(t, conn, `{"type":"subscribe","destination":"/b"}`)
	ts.waitPatterns(t, 2)

	writeJSON(t, conn, `{"type":"unsubscribe","destination":"/a"}`)
	ts.waitPatterns(t, 1)

	conn.Close()
	ts.waitPatterns(t, 0)
	require.Eventually(t, func() bool { return ts.Sessions() == 0 }, waitTimeout, 5*time.Millisecond)

	stats := ts.Stats()
	assert.Equal(t, int64(1), stats.SessionsOpened)
	assert.Equal(t, int64(0), stats.SessionsActive)
}

func TestWebSocket_OversizedFrameClosesSession(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.MaxFrameSize = 64 })
	conn := ts.dial(t)

	writeJSON(t, conn, `{"type":"subscribe","destination":"/a"}`)
	ts.waitPatterns(t, 1)

	writeJSON(t, conn, `{"type":"subscribe","destination":"/`+strings.Repeat("x", 100)+`"}`)
	ts.waitPatterns(t, 0)
	require.Eventually(t, func() bool { return ts.Sessions() == 0 }, waitTimeout, 5*time.Millisecond)

	conn.SetReadDeadline(time.Now().Add(waitTimeout))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseMessageTooBig), "got %v", err)
}

func TestWebSocket_CBORSubprotocol(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t, frame.CodecCBOR)
	assert.Equal(t, frame.CodecCBOR, conn.Subprotocol())

	codec, err := frame.CBOR()
	require.NoError(t, err)

	data, err := codec.Encode(frame.Subscribe{Destination: "/bin"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, data))
	ts.waitPatterns(t, 1)

	require.NoError(t, ts.exchange.Push("payload", "/bin"))

	conn.SetReadDeadline(time.Now().Add(waitTimeout))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)

	f, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, frame.Message{Content: "payload", Match: []string{"/bin"}}, f)
}

func TestHandler_PlainRequestToMessagingPath(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.http.URL + "/messaging")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestHandler_SystemInfo(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.http.URL + "/system")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.NotEmpty(t, info["platform"])
}

func TestHandler_StaticDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>tore</h1>"), 0644))

	ts := newTestServer(t, func(cfg *Config) { cfg.StaticDir = dir })

	noRedirect := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := noRedirect.Get(ts.http.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/web/", resp.Header.Get("Location"))

	resp, err = http.Get(ts.http.URL + "/web/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "<h1>tore</h1>", string(body))
}

func TestServeTCP_NulFramedSession(t *testing.T) {
	ts := newTestServer(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- ts.ServeTCP(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(`{"type":"subscribe","destination":"/t"}` + "\x00"))
	require.NoError(t, err)
	ts.waitPatterns(t, 1)

	// Publishing is allowed on tcp.
	_, err = conn.Write([]byte(`{"type":"publish","destination":"/t","content":1}` + "\x00"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(waitTimeout))
	line, err := bufio.NewReader(conn).ReadBytes(0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message","match":["/t"],"content":1}`, string(line[:len(line)-1]))

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("ServeTCP did not return")
	}
}

func TestServeTCP_OversizedFrameClosesSession(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.MaxFrameSize = 64 })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ts.ServeTCP(ctx, ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(strings.Repeat("x", 200)))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(waitTimeout))
	_, err = bufio.NewReader(conn).ReadBytes(0)
	require.Error(t, err)
	var ne net.Error
	assert.False(t, errors.As(err, &ne) && ne.Timeout(), "connection was not closed: %v", err)
	require.Eventually(t, func() bool { return ts.Sessions() == 0 }, waitTimeout, 5*time.Millisecond)
}

func TestServeUDP_PublishDatagrams(t *testing.T) {
	ts := newTestServer(t, nil)

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ts.ServeUDP(ctx, pc)

	got := make(chan any, 4)
	_, err = ts.exchange.Add("/sensors/.*", func(content any, _ []string) { got <- content })
	require.NoError(t, err)

	conn, err := net.Dial("udp", pc.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(`{"type":"publish","destination":"/sensors/1","content":"json"}`))
	require.NoError(t, err)

	select {
	case c := <-got:
		assert.Equal(t, "json", c)
	case <-time.After(waitTimeout):
		t.Fatal("json datagram not delivered")
	}

	codec, err := frame.CBOR()
	require.NoError(t, err)
	data, err := codec.Encode(frame.Publish{Destination: "/sensors/2", Content: "cbor"})
	require.NoError(t, err)
	_, err = conn.Write(data)
	require.NoError(t, err)

	select {
	case c := <-got:
		assert.Equal(t, "cbor", c)
	case <-time.After(waitTimeout):
		t.Fatal("cbor datagram not delivered")
	}

	_, err = conn.Write([]byte(`{"type":"subscribe","destination":"/sensors/3"}`))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return ts.Stats().FramesRejected == 1
	}, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, int64(3), ts.Stats().Datagrams)
}

func TestPublishTime(t *testing.T) {
	ts := newTestServer(t, func(cfg *Config) {
		cfg.TimeDestination = "/time"
		cfg.TimeInterval = 10 * time.Millisecond
	})

	type push struct {
		content any
		match   []string
	}
	got := make(chan push, 16)
	_, err := ts.exchange.Add("/time", func(content any, match []string) {
		got <- push{content, match}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.PublishTime(ctx) }()

	select {
	case p := <-got:
		s, ok := p.content.(string)
		require.True(t, ok)
		_, err := time.ParseInLocation(TimeLayout, s, time.Local)
		assert.NoError(t, err)
		assert.Equal(t, []string{"/time"}, p.match)
	case <-time.After(waitTimeout):
		t.Fatal("no time pushed")
	}

	cancel()
	assert.NoError(t, <-done)
	assert.Positive(t, ts.Stats().TimePushes)
}
