// ABOUTME: ConnectionManager owning the single duplex channel of a user session.
// ABOUTME: Runs an event loop state machine with bounded, linearly delayed reconnection.

package connection

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/2389/coven-chat/internal/metrics"
	"github.com/2389/coven-chat/internal/session"
)

const (
	// DefaultMaxAttempts is the number of reconnection attempts before giving up.
	DefaultMaxAttempts = 5
	// DefaultBaseDelay is multiplied by the attempt number to get the retry delay.
	DefaultBaseDelay = 3 * time.Second
	// DefaultDialTimeout bounds a single handshake.
	DefaultDialTimeout = 10 * time.Second
	// DefaultWriteTimeout bounds a single outbound frame.
	DefaultWriteTimeout = 5 * time.Second

	eventBufferSize = 64
)

// Config configures a Manager. Zero values take the defaults above.
type Config struct {
	// BaseURL is the API origin the channel address is derived from.
	BaseURL      string
	MaxAttempts  int
	BaseDelay    time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// Dialer opens the transport. If nil, a WebSocketDialer is used.
	Dialer Dialer
	// Clock schedules reconnection timers. If nil, SystemClock is used.
	Clock Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

type eventKind int

const (
	evConnect eventKind = iota
	evDisconnect
	evOpened
	evClosed
	evFrame
	evRetry
)

// event is the unit of work for the manager's loop. Transport goroutines and
// timers never touch state directly; they post events tagged with the epoch
// of the attempt they belong to.
type event struct {
	kind     eventKind
	epoch    uint64
	identity session.Identity
	url      string
	conn     Conn
	data     []byte
	err      error
	reply    chan error
}

type handlerEntry[F any] struct {
	id int
	fn F
}

// Manager owns the channel lifecycle for one session.
//
// Every state transition and every subscriber callback runs on a single
// loop goroutine, so callbacks observe transitions in order and never run
// concurrently with each other. Callbacks must not call Connect or
// Disconnect synchronously.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	events    chan event
	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	state    State
	attempts int
	identity session.Identity
	conn     Conn
	err      error

	// Owned by the loop goroutine.
	url       string
	epoch     uint64
	timer     Timer
	attemptCx context.Context
	cancel    context.CancelFunc

	subMu     sync.RWMutex
	nextSubID int
	frameSubs []handlerEntry[func([]byte)]
	connSubs  []handlerEntry[func(bool)]
	stateSubs []handlerEntry[func(from, to State)]
}

// NewManager creates a Manager in the Idle state and starts its loop.
// Call Close to release it.
func NewManager(cfg Config) *Manager {
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	} else if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &WebSocketDialer{}
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	m := &Manager{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "connection"),
		events:   make(chan event, eventBufferSize),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		state:    Idle,
	}
	metrics.ConnectionState.Set(float64(Idle))

	go m.run()
	return m
}

// Connect starts the channel for identity. It is a no-op while Connecting or
// Connected. From Reconnecting it dials immediately, keeping the attempt
// count; from Idle or Disconnected it starts afresh.
func (m *Manager) Connect(identity session.Identity) error {
	url, err := ChannelURL(m.cfg.BaseURL, identity.UserID)
	if err != nil {
		return err
	}

	reply := make(chan error, 1)
	if !m.post(event{kind: evConnect, identity: identity, url: url, reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-m.done:
		return ErrClosed
	}
}

// Disconnect tears the channel down and moves to Disconnected. Any pending
// reconnection timer is cancelled before Disconnect returns. Safe to call
// repeatedly.
func (m *Manager) Disconnect() {
	reply := make(chan error, 1)
	if !m.post(event{kind: evDisconnect, reply: reply}) {
		return
	}
	select {
	case <-reply:
	case <-m.done:
	}
}

// Close disconnects and stops the loop. The Manager cannot be reused.
func (m *Manager) Close() {
	m.Disconnect()
	m.closeOnce.Do(func() {
		close(m.done)
	})
	<-m.loopDone
}

// Send writes one frame to the channel. It fails with ErrNotConnected unless
// the state is Connected; nothing is buffered.
func (m *Manager) Send(ctx context.Context, data []byte) error {
	m.mu.Lock()
	state, conn := m.state, m.conn
	m.mu.Unlock()

	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.WriteTimeout)
	defer cancel()

	if err := conn.Write(ctx, data); err != nil {
		// The read side observes the broken channel and drives reconnection.
		return fmt.Errorf("%w: write: %v", ErrTransport, err)
	}
	return nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// AttemptCount returns the number of consecutive reconnection attempts.
func (m *Manager) AttemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Identity returns the identity of the current or last session.
func (m *Manager) Identity() session.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Err returns ErrReconnectionExhausted once automatic reconnection has
// given up, and nil otherwise.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// OnFrame registers fn for every inbound frame, in delivery order.
// Returns a function that removes the subscription.
func (m *Manager) OnFrame(fn func(data []byte)) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.frameSubs = append(m.frameSubs, handlerEntry[func([]byte)]{id: id, fn: fn})
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		m.frameSubs = removeHandler(m.frameSubs, id)
	}
}

// OnConnectivity registers fn for connectivity changes: true when the
// channel opens, false when it is lost and once more when reconnection is
// exhausted. Returns a function that removes the subscription.
func (m *Manager) OnConnectivity(fn func(connected bool)) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.connSubs = append(m.connSubs, handlerEntry[func(bool)]{id: id, fn: fn})
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		m.connSubs = removeHandler(m.connSubs, id)
	}
}

// OnStateChange registers fn for every state transition.
// Returns a function that removes the subscription.
func (m *Manager) OnStateChange(fn func(from, to State)) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.stateSubs = append(m.stateSubs, handlerEntry[func(from, to State)]{id: id, fn: fn})
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		m.stateSubs = removeHandler(m.stateSubs, id)
	}
}

func removeHandler[F any](entries []handlerEntry[F], id int) []handlerEntry[F] {
	out := make([]handlerEntry[F], 0, len(entries))
	for _, e := range entries {
		if e.id != id {
			out = append(out, e)
		}
	}
	return out
}

// post hands an event to the loop. Returns false once the manager is closed.
func (m *Manager) post(ev event) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) run() {
	defer close(m.loopDone)

	for {
		select {
		case ev := <-m.events:
			m.handle(ev)
		case <-m.done:
			m.teardown()
			return
		}
	}
}

func (m *Manager) handle(ev event) {
	switch ev.kind {
	case evConnect:
		m.handleConnect(ev)
		ev.reply <- nil
	case evDisconnect:
		m.handleDisconnect()
		ev.reply <- nil
	case evOpened:
		m.handleOpened(ev)
	case evClosed:
		m.handleClosed(ev)
	case evFrame:
		m.handleFrame(ev)
	case evRetry:
		m.handleRetry(ev)
	}
}

func (m *Manager) handleConnect(ev event) {
	switch m.State() {
	case Connecting, Connected:
		m.logger.Debug("connect ignored", "state", m.State())
		return
	case Reconnecting:
		m.stopTimer()
	default:
		m.mu.Lock()
		m.attempts = 0
		m.err = nil
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.identity = ev.identity
	m.mu.Unlock()
	m.url = ev.url

	m.dial()
}

// dial starts a new attempt. The attempt's epoch invalidates any event still
// in flight from earlier attempts.
func (m *Manager) dial() {
	m.epoch++
	epoch := m.epoch
	url := m.url

	ctx, cancel := context.WithCancel(context.Background())
	m.attemptCx, m.cancel = ctx, cancel

	m.transition(Connecting)

	go func() {
		dialCtx, dialCancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
		conn, err := m.cfg.Dialer.Dial(dialCtx, url)
		dialCancel()
		if err != nil {
			m.post(event{kind: evClosed, epoch: epoch, err: fmt.Errorf("%w: %v", ErrTransport, err)})
			return
		}
		if !m.post(event{kind: evOpened, epoch: epoch, conn: conn}) {
			_ = conn.Close()
		}
	}()
}

func (m *Manager) handleOpened(ev event) {
	if ev.epoch != m.epoch || m.State() != Connecting {
		// A disconnect or newer attempt superseded this dial.
		_ = ev.conn.Close()
		return
	}

	m.mu.Lock()
	m.conn = ev.conn
	m.attempts = 0
	m.mu.Unlock()

	m.transition(Connected)
	m.notifyConnectivity(true)

	go m.readLoop(m.attemptCx, ev.epoch, ev.conn)
}

func (m *Manager) readLoop(ctx context.Context, epoch uint64, conn Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			m.post(event{kind: evClosed, epoch: epoch, err: fmt.Errorf("%w: read: %v", ErrTransport, err)})
			return
		}
		if !m.post(event{kind: evFrame, epoch: epoch, data: data}) {
			return
		}
	}
}

func (m *Manager) handleFrame(ev event) {
	if ev.epoch != m.epoch || m.State() != Connected {
		return
	}

	m.subMu.RLock()
	subs := m.frameSubs
	m.subMu.RUnlock()

	for _, s := range subs {
		s.fn(ev.data)
	}
}

func (m *Manager) handleClosed(ev event) {
	if ev.epoch != m.epoch {
		return
	}
	from := m.State()
	if from != Connecting && from != Connected {
		return
	}

	m.releaseAttempt()

	m.logger.Warn("transport closed", "state", from, "error", ev.err)

	m.mu.Lock()
	attempts := m.attempts
	exhausted := attempts >= m.cfg.MaxAttempts
	if exhausted {
		m.err = ErrReconnectionExhausted
	} else {
		attempts++
		m.attempts = attempts
	}
	m.mu.Unlock()

	if exhausted {
		m.transition(Disconnected)
		m.logger.Error("reconnection exhausted",
			"user_id", m.Identity().UserID,
			"max_attempts", m.cfg.MaxAttempts)
		m.notifyConnectivity(false)
		return
	}

	m.transition(Reconnecting)
	if from == Connected {
		m.notifyConnectivity(false)
	}

	delay := m.cfg.BaseDelay * time.Duration(attempts)
	epoch := m.epoch
	m.timer = m.cfg.Clock.AfterFunc(delay, func() {
		m.post(event{kind: evRetry, epoch: epoch})
	})
	metrics.ReconnectAttempts.Inc()

	m.logger.Warn("reconnect scheduled",
		"attempt", attempts,
		"max_attempts", m.cfg.MaxAttempts,
		"delay", delay)
}

func (m *Manager) handleRetry(ev event) {
	if ev.epoch != m.epoch || m.State() != Reconnecting {
		m.logger.Debug("stale retry ignored", "epoch", ev.epoch)
		return
	}
	m.timer = nil

	m.logger.Info("attempting reconnect",
		"attempt", m.AttemptCount(),
		"max_attempts", m.cfg.MaxAttempts)
	m.dial()
}

func (m *Manager) handleDisconnect() {
	from := m.State()
	if from == Disconnected {
		return
	}

	// Bump the epoch so timers that already fired and transport events in
	// flight are ignored.
	m.epoch++
	m.stopTimer()
	m.releaseAttempt()

	m.transition(Disconnected)
	if from == Connected {
		m.notifyConnectivity(false)
	}
}

// teardown runs when the loop stops; subscribers are not notified.
func (m *Manager) teardown() {
	m.epoch++
	m.stopTimer()
	m.releaseAttempt()
}

func (m *Manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// releaseAttempt cancels the current attempt's context and closes its conn.
func (m *Manager) releaseAttempt() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
		m.attemptCx = nil
	}

	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (m *Manager) transition(to State) {
	m.mu.Lock()
	from := m.state
	m.state = to
	attempts := m.attempts
	m.mu.Unlock()

	if from == to {
		return
	}

	metrics.ConnectionState.Set(float64(to))
	m.logger.Info("connection state changed",
		"from", from,
		"to", to,
		"attempt", attempts)

	m.subMu.RLock()
	subs := m.stateSubs
	m.subMu.RUnlock()

	for _, s := range subs {
		s.fn(from, to)
	}
}

func (m *Manager) notifyConnectivity(connected bool) {
	metrics.ConnectivityChanges.WithLabelValues(strconv.FormatBool(connected)).Inc()

	m.subMu.RLock()
	subs := m.connSubs
	m.subMu.RUnlock()

	for _, s := range subs {
		s.fn(connected)
	}
}
