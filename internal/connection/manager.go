package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rickgao/tore/internal/clock"
	"github.com/rickgao/tore/internal/frame"
)

type eventKind int

const (
	evConnect  eventKind = iota // Reconnect timer fired or Start was called
	evOpened                    // Dial succeeded
	evPayload                   // Transport delivered a payload
	evEnded                     // Dial failed or transport closed (err nil = normal close)
	evShutdown                  // Close was called
)

type event struct {
	kind      eventKind
	gen       uint64
	transport Transport
	data      []byte
	err       error
}

// Manager owns one logical connection and keeps it alive by re-dialing
// after every unexpected close.
//
// All listeners and the payload handler run on a single event goroutine, one
// at a time, in the order the underlying events happened. Every other method
// may be called from any goroutine, including from inside a listener.
type Manager struct {
	cfg     ManagerConfig
	dialer  Dialer
	handler PayloadHandler
	logger  *slog.Logger

	events   *mailbox[event]
	done     chan struct{}
	doneOnce sync.Once

	// Listeners, called in registration order
	listenerMu     sync.RWMutex
	openListeners  []func()
	closeListeners []func()
	errorListeners []func(error)

	// State
	mu         sync.RWMutex
	started    bool
	closing    bool
	state      State
	gen        uint64 // Incremented for every dial
	connID     string
	dialing    bool
	transport  Transport // Non-nil while the current transport is open
	cancelDial context.CancelFunc
	timer      *clock.Timer

	// Stats
	attempts        atomic.Int64
	opens           atomic.Int64
	disconnects     atomic.Int64
	transportErrors atomic.Int64
	framesSent      atomic.Int64
	payloadsRead    atomic.Int64
	stalePayloads   atomic.Int64
}

// NewManager creates a Manager. Nothing is dialed until Start.
func NewManager(cfg ManagerConfig, dialer Dialer, handler PayloadHandler, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Codec == nil {
		cfg.Codec = frame.JSON()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}

	return &Manager{
		cfg:     cfg,
		dialer:  dialer,
		handler: handler,
		logger:  logger,
		events:  newMailbox[event](),
		done:    make(chan struct{}),
		state:   StateConnecting,
	}
}

// Start opens the first transport. Calling Start again is a no-op.
// Cancelling ctx has the same effect as Close.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.state = StateConnecting
	m.mu.Unlock()

	go m.run(ctx)
	m.events.post(event{kind: evConnect})

	m.logger.Info("connection manager started",
		"endpoint", m.cfg.Endpoint,
		"reconnect_delay", m.cfg.ReconnectDelay,
		"codec", m.cfg.Codec.Name(),
	)

	return nil
}

// Close closes the connection for good: the pending reconnect timer is
// cancelled, an in-flight dial is aborted and the open transport is closed.
// Close listeners run once more if a transport was open or being dialed.
// Close does not wait; use Done for that.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return nil
	}
	m.closing = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancelDial != nil {
		m.cancelDial()
	}
	t := m.transport
	started := m.started
	if !started {
		m.state = StateClosed
	}
	m.mu.Unlock()

	if !started {
		m.finish()
		return nil
	}

	m.logger.Info("closing connection manager")
	m.events.post(event{kind: evShutdown})

	if t != nil {
		return t.Close()
	}
	return nil
}

// Done is closed once the manager reached StateClosed and stopped its
// event goroutine.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Send encodes f and writes it to the open transport. It fails with
// ErrNotConnected when no transport is open; frames are never queued.
func (m *Manager) Send(f frame.Frame) error {
	m.mu.RLock()
	t := m.transport
	state := m.state
	m.mu.RUnlock()

	if t == nil || state != StateOpen {
		return ErrNotConnected
	}

	data, err := m.cfg.Codec.Encode(f)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", f.Type(), err)
	}
	if err := t.Send(data); err != nil {
		return fmt.Errorf("send %s frame: %w", f.Type(), err)
	}

	m.framesSent.Add(1)
	return nil
}

// OnOpen adds a listener called every time a transport opens.
func (m *Manager) OnOpen(listener func()) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.openListeners = append(m.openListeners, listener)
}

// OnClose adds a listener called every time a transport ends, whether it
// opened or not.
func (m *Manager) OnClose(listener func()) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.closeListeners = append(m.closeListeners, listener)
}

// OnError adds a listener called with dial and transport failures.
func (m *Manager) OnError(listener func(error)) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.errorListeners = append(m.errorListeners, listener)
}

// NotifyError calls the error listeners with err. It is used for errors
// reported by the server inside the protocol, which do not affect the
// connection state. Call it from the event goroutine.
func (m *Manager) NotifyError(err error) {
	for _, l := range m.snapshotError() {
		m.safeCall("error", func() { l(err) })
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Endpoint returns the URL the manager dials.
func (m *Manager) Endpoint() string {
	return m.cfg.Endpoint
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	state, connID := m.state, m.connID
	m.mu.RUnlock()

	return ManagerStats{
		State:           state,
		ConnID:          connID,
		Attempts:        m.attempts.Load(),
		Opens:           m.opens.Load(),
		Disconnects:     m.disconnects.Load(),
		TransportErrors: m.transportErrors.Load(),
		FramesSent:      m.framesSent.Load(),
		PayloadsRead:    m.payloadsRead.Load(),
		StalePayloads:   m.stalePayloads.Load(),
	}
}

// run is the event goroutine.
func (m *Manager) run(ctx context.Context) {
	ctxDone := ctx.Done()

	for {
		select {
		case <-ctxDone:
			ctxDone = nil
			m.Close()
		case <-m.events.notify:
			for _, ev := range m.events.drain() {
				if m.handle(ev) {
					return
				}
			}
		}
	}
}

// handle processes one event and reports whether the manager is finished.
func (m *Manager) handle(ev event) bool {
	switch ev.kind {
	case evConnect:
		m.connect()
	case evOpened:
		return m.opened(ev)
	case evPayload:
		m.payload(ev)
	case evEnded:
		return m.ended(ev.gen, ev.err)
	case evShutdown:
		return m.shutdown()
	}
	return false
}

// connect starts dialing a new transport.
func (m *Manager) connect() {
	m.mu.Lock()
	if m.closing || m.dialing || m.transport != nil {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.gen++
	gen := m.gen
	m.connID = uuid.NewString()
	connID := m.connID
	m.state = StateConnecting
	m.dialing = true
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	m.mu.Unlock()

	m.attempts.Add(1)
	m.logger.Debug("connecting", "conn_id", connID, "endpoint", m.cfg.Endpoint)

	go func() {
		t, err := m.dialer.Dial(ctx, m.cfg.Endpoint)
		if err != nil {
			m.events.post(event{kind: evEnded, gen: gen, err: err})
			return
		}
		m.events.post(event{kind: evOpened, gen: gen, transport: t})
	}()
}

// opened installs a freshly dialed transport.
func (m *Manager) opened(ev event) bool {
	m.mu.Lock()
	if ev.gen != m.gen || !m.dialing {
		m.mu.Unlock()
		ev.transport.Close()
		return false
	}
	if m.closing {
		m.mu.Unlock()
		ev.transport.Close()
		return m.ended(ev.gen, nil)
	}
	m.dialing = false
	m.transport = ev.transport
	m.state = StateOpen
	connID := m.connID
	m.mu.Unlock()

	m.opens.Add(1)
	go m.readLoop(ev.gen, ev.transport)

	m.logger.Info("connection open", "conn_id", connID)
	m.notify("open", m.snapshotOpen())
	return false
}

// readLoop forwards payloads of one transport until it ends.
func (m *Manager) readLoop(gen uint64, t Transport) {
	for {
		data, err := t.Receive()
		if err != nil {
			if errors.Is(err, ErrTransportClosed) {
				err = nil
			}
			m.events.post(event{kind: evEnded, gen: gen, err: err})
			return
		}
		m.events.post(event{kind: evPayload, gen: gen, data: data})
	}
}

func (m *Manager) payload(ev event) {
	m.mu.RLock()
	current := ev.gen == m.gen && m.transport != nil
	m.mu.RUnlock()

	if !current {
		m.stalePayloads.Add(1)
		return
	}

	m.payloadsRead.Add(1)
	if m.handler != nil {
		m.safeCall("payload", func() { m.handler(ev.data) })
	}
}

// ended handles the end of the current dial or transport. A non-nil err
// is a failure: error listeners run and the transport is force-closed
// before the close handling.
func (m *Manager) ended(gen uint64, err error) bool {
	m.mu.Lock()
	if gen != m.gen || (!m.dialing && m.transport == nil) {
		m.mu.Unlock()
		return false
	}
	t := m.transport
	m.transport = nil
	m.dialing = false
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	closing := m.closing
	failed := err != nil && !closing
	if failed {
		m.state = StateError
	}
	connID := m.connID
	m.mu.Unlock()

	m.disconnects.Add(1)

	if failed {
		m.transportErrors.Add(1)
		m.logger.Warn("transport error", "conn_id", connID, "error", err)
		m.NotifyError(err)
	}
	if t != nil {
		t.Close()
	}

	if closing {
		m.setState(StateClosed)
		m.logger.Info("connection closed", "conn_id", connID)
		m.notify("close", m.snapshotClose())
		m.finish()
		return true
	}

	m.setState(StateDisconnected)
	m.logger.Info("connection lost, reconnecting",
		"conn_id", connID,
		"was_open", t != nil,
		"delay", m.cfg.ReconnectDelay,
	)
	m.notify("close", m.snapshotClose())
	m.scheduleReconnect()
	return false
}

// scheduleReconnect arms the reconnect timer unless Close was called.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closing {
		return
	}
	m.timer = m.cfg.Clock.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.events.post(event{kind: evConnect})
	})
}

// shutdown finishes a Close when nothing is left to wind down. Otherwise
// the end event of the current dial or transport completes it.
func (m *Manager) shutdown() bool {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	active := m.dialing || m.transport != nil
	m.mu.Unlock()

	if active {
		return false
	}

	m.setState(StateClosed)
	m.logger.Info("connection manager closed")
	m.finish()
	return true
}

func (m *Manager) finish() {
	m.doneOnce.Do(func() { close(m.done) })
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) snapshotOpen() []func() {
	m.listenerMu.RLock()
	defer m.listenerMu.RUnlock()
	return append([]func(){}, m.openListeners...)
}

func (m *Manager) snapshotClose() []func() {
	m.listenerMu.RLock()
	defer m.listenerMu.RUnlock()
	return append([]func(){}, m.closeListeners...)
}

func (m *Manager) snapshotError() []func(error) {
	m.listenerMu.RLock()
	defer m.listenerMu.RUnlock()
	return append([]func(error){}, m.errorListeners...)
}

func (m *Manager) notify(kind string, listeners []func()) {
	for _, l := range listeners {
		m.safeCall(kind, l)
	}
}

// safeCall runs fn and logs a panic instead of killing the event goroutine.
func (m *Manager) safeCall(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("listener panicked", "listener", kind, "panic", r)
		}
	}()
	fn()
}
