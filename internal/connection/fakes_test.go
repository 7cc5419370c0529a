// ABOUTME: Test doubles for the connection manager: simulated clock and scripted transport.
// ABOUTME: Lets reconnection timing be asserted without sleeping.

package connection

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errDialRefused = errors.New("connection refused")

// fakeClock records every scheduled timer and fires them on demand.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Delays returns the delay of every timer ever scheduled, in order.
func (c *fakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.timers))
	for i, t := range c.timers {
		out[i] = t.delay
	}
	return out
}

// Pending returns the number of timers neither fired nor stopped.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance fires every pending timer.
func (c *fakeClock) Advance() int {
	return c.fire(func(t *fakeTimer) bool { return !t.stopped && !t.fired })
}

// FireStopped runs the callbacks of stopped timers, as if they had fired
// just before Stop took effect.
func (c *fakeClock) FireStopped() int {
	return c.fire(func(t *fakeTimer) bool { return t.stopped && !t.fired })
}

func (c *fakeClock) fire(match func(*fakeTimer) bool) int {
	c.mu.Lock()
	var due []*fakeTimer
	for _, t := range c.timers {
		if match(t) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
	return len(due)
}

// dialOutcome scripts one Dial call.
type dialOutcome struct {
	conn  *fakeConn
	err   error
	gate  chan struct{} // when set, Dial waits for it to close before returning
	block bool          // when set, Dial waits for ctx cancellation
}

// fakeDialer replays scripted outcomes; once the script runs out every dial
// is refused.
type fakeDialer struct {
	mu     sync.Mutex
	script []dialOutcome
	urls   []string
}

func (d *fakeDialer) push(outcomes ...dialOutcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = append(d.script, outcomes...)
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	var out dialOutcome
	if len(d.script) > 0 {
		out = d.script[0]
		d.script = d.script[1:]
	} else {
		out = dialOutcome{err: errDialRefused}
	}
	d.mu.Unlock()

	if out.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if out.gate != nil {
		<-out.gate
	}
	if out.err != nil {
		return nil, out.err
	}
	return out.conn, nil
}

func (d *fakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// fakeConn is an in-memory channel end driven by the test.
type fakeConn struct {
	inbound   chan []byte
	drop      chan error
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	written  [][]byte
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		drop:    make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case err := <-c.drop:
		return nil, err
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

// recorder captures manager notifications.
type recorder struct {
	mu           sync.Mutex
	connectivity []bool
	transitions  [][2]State
	frames       []string
}

func (r *recorder) attach(m *Manager) {
	m.OnConnectivity(func(connected bool) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.connectivity = append(r.connectivity, connected)
	})
	m.OnStateChange(func(from, to State) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.transitions = append(r.transitions, [2]State{from, to})
	})
	m.OnFrame(func(data []byte) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.frames = append(r.frames, string(data))
	})
}

func (r *recorder) Connectivity() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.connectivity...)
}

func (r *recorder) Transitions() [][2]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]State(nil), r.transitions...)
}

func (r *recorder) Frames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}
