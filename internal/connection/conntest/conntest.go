// Package conntest provides an in-memory Dialer and Transport for tests.
package conntest

import (
	"context"
	"sync"
	"time"

	"github.com/rickgao/tore/internal/connection"
)

// Transport is an in-memory connection.Transport. Payloads handed to Deliver
// come out of Receive; payloads passed to Send are recorded.
type Transport struct {
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once

	mu       sync.Mutex
	sent     [][]byte
	sendErr  error
	closeErr error
	closes   int
}

// NewTransport returns an open Transport.
func NewTransport() *Transport {
	return &Transport{
		inbound: make(chan []byte, 256),
		closed:  make(chan struct{}),
	}
}

// Send records data.
func (t *Transport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	select {
	case <-t.closed:
		return connection.ErrTransportClosed
	default:
	}
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, append([]byte(nil), data...))
	return nil
}

// Receive returns the next delivered payload, or the close reason once the
// transport is closed and drained.
func (t *Transport) Receive() ([]byte, error) {
	select {
	case data := <-t.inbound:
		return data, nil
	default:
	}

	select {
	case data := <-t.inbound:
		return data, nil
	case <-t.closed:
		t.mu.Lock()
		defer t.mu.Unlock()
		return nil, t.closeErr
	}
}

// Close closes the transport normally. Safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closes++
	t.mu.Unlock()

	t.end(connection.ErrTransportClosed)
	return nil
}

// Fail ends the transport with err, as a broken socket would.
func (t *Transport) Fail(err error) {
	t.end(err)
}

func (t *Transport) end(err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.closeErr = err
		t.mu.Unlock()
		close(t.closed)
	})
}

// Deliver queues an inbound payload.
func (t *Transport) Deliver(data []byte) {
	t.inbound <- data
}

// SetSendError makes every following Send fail with err.
func (t *Transport) SetSendError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

// Sent returns a copy of everything sent so far.
func (t *Transport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.sent...)
}

// Closed reports whether the transport has ended.
func (t *Transport) Closed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// CloseCalls returns how many times Close was called.
func (t *Transport) CloseCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

// Dialer is an in-memory connection.Dialer. Every successful Dial creates a
// new Transport that can be picked up with Next.
type Dialer struct {
	mu        sync.Mutex
	attempts  int
	endpoints []string
	failures  []error
	hold      chan struct{}
	dialed    chan *Transport
}

// NewDialer returns a Dialer that succeeds unless told otherwise.
func NewDialer() *Dialer {
	return &Dialer{dialed: make(chan *Transport, 256)}
}

// Dial implements connection.Dialer.
func (d *Dialer) Dial(ctx context.Context, endpoint string) (connection.Transport, error) {
	d.mu.Lock()
	d.attempts++
	d.endpoints = append(d.endpoints, endpoint)
	hold := d.hold
	var err error
	if len(d.failures) > 0 {
		err = d.failures[0]
		d.failures = d.failures[1:]
	}
	d.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	t := NewTransport()
	d.dialed <- t
	return t, nil
}

// FailNext makes the next dial return err. Calls queue up.
func (d *Dialer) FailNext(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, err)
}

// Hold makes dials block until the returned release function is called or
// the dial context is cancelled.
func (d *Dialer) Hold() (release func()) {
	ch := make(chan struct{})
	d.mu.Lock()
	d.hold = ch
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			d.hold = nil
			d.mu.Unlock()
			close(ch)
		})
	}
}

// Attempts returns the number of Dial calls.
func (d *Dialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// Endpoints returns the endpoints dialed, in order.
func (d *Dialer) Endpoints() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.endpoints...)
}

// Next waits for the next successfully dialed transport.
func (d *Dialer) Next(timeout time.Duration) (*Transport, bool) {
	select {
	case t := <-d.dialed:
		return t, true
	case <-time.After(timeout):
		return nil, false
	}
}

// WaitForAttempts polls until at least n dials were started.
func (d *Dialer) WaitForAttempts(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if d.Attempts() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return d.Attempts() >= n
}
