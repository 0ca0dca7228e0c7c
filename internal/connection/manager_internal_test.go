package connection

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTransport struct {
	mu     sync.Mutex
	closed bool
}

func (s *stubTransport) Send([]byte) error        { return nil }
func (s *stubTransport) Receive() ([]byte, error) { select {} }
func (s *stubTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubTransport) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestManager_DropsPayloadsFromStaleTransport(t *testing.T) {
	var got [][]byte
	m := NewManager(ManagerConfig{Endpoint: "ws://example.test"}, nil, func(p []byte) {
		got = append(got, p)
	}, nil)

	m.gen = 2
	m.transport = &stubTransport{}
	m.state = StateOpen

	m.handle(event{kind: evPayload, gen: 1, data: []byte("old")})
	m.handle(event{kind: evPayload, gen: 2, data: []byte("new")})

	require.Len(t, got, 1)
	assert.Equal(t, "new", string(got[0]))
	assert.Equal(t, int64(1), m.Stats().StalePayloads)
	assert.Equal(t, int64(1), m.Stats().PayloadsRead)
}

func TestManager_ClosesStaleOpenedTransport(t *testing.T) {
	m := NewManager(ManagerConfig{Endpoint: "ws://example.test"}, nil, nil, nil)

	current := &stubTransport{}
	m.gen = 3
	m.transport = current
	m.state = StateOpen

	stale := &stubTransport{}
	assert.False(t, m.handle(event{kind: evOpened, gen: 2, transport: stale}))
	assert.True(t, stale.isClosed())
	assert.False(t, current.isClosed())
	assert.Equal(t, StateOpen, m.State())
}

func TestManager_IgnoresStaleEndEvents(t *testing.T) {
	m := NewManager(ManagerConfig{Endpoint: "ws://example.test"}, nil, nil, nil)

	errs := 0
	m.OnError(func(error) { errs++ })

	current := &stubTransport{}
	m.gen = 5
	m.transport = current
	m.state = StateOpen

	assert.False(t, m.handle(event{kind: evEnded, gen: 4, err: ErrStaleConnection}))
	assert.Zero(t, errs)
	assert.False(t, current.isClosed())
	assert.Equal(t, StateOpen, m.State())
}

func TestMailbox_PreservesOrder(t *testing.T) {
	mb := newMailbox[int]()
	for i := 0; i < 5; i++ {
		mb.post(i)
	}

	select {
	case <-mb.notify:
	default:
		t.Fatal("post did not signal")
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, mb.drain())
	assert.Empty(t, mb.drain())
}
