// Package connection owns the single websocket to the suggestion service.
//
// A Manager dials the service, waits for its connected frame, subscribes to
// the synonyms topic and keeps the link alive, reconnecting under a backoff
// policy when reads fail. Replies are decoded and handed to one listener.
package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/atinylittleshell/quill/pkg/wire"
	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "disconnected"
	}
}

var (
	ErrUnauthorized = errors.New("suggestion service rejected the credentials")
	ErrHandshake    = errors.New("suggestion service handshake failed")
)

// ConnectionError is returned by Connect once the retry policy is exhausted.
type ConnectionError struct {
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

const (
	defaultHandshakeTimeout = 5 * time.Second
	writeTimeout            = 5 * time.Second
	sendBuffer              = 16
)

type Manager struct {
	url              string
	logger           *zap.Logger
	tokens           TokenSource
	newBackOff       func() backoff.BackOff
	handshakeTimeout time.Duration
	dialer           *websocket.Dialer

	mu       sync.Mutex
	state    State
	link     *link
	session  string
	listener func(wire.Message)
	observer func(State)
	cancel   context.CancelFunc
}

type Option func(*Manager)

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithTokenSource(tokens TokenSource) Option {
	return func(m *Manager) {
		m.tokens = tokens
	}
}

// WithBackOff sets the retry policy. The factory is called once per connect
// or reconnect cycle.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(m *Manager) {
		m.newBackOff = newBackOff
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.handshakeTimeout = d
	}
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(m *Manager) {
		m.dialer = dialer
	}
}

// DefaultBackOff retries with exponential delays starting at 250ms, giving up
// after five retries.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return backoff.WithMaxRetries(b, 5)
}

func New(url string, opts ...Option) *Manager {
	m := &Manager{
		url:              url,
		logger:           zap.NewNop(),
		newBackOff:       DefaultBackOff,
		handshakeTimeout: defaultHandshakeTimeout,
		dialer:           websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session is the id the service assigned during the last handshake.
func (m *Manager) Session() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Subscribe registers the listener for replies, replacing any previous one.
// The listener runs on the Manager's read goroutine.
func (m *Manager) Subscribe(listener func(wire.Message)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = listener
}

// OnStateChange registers the observer for state transitions, replacing any
// previous one.
func (m *Manager) OnStateChange(observer func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = observer
}

// Connect dials the service and blocks until the handshake and subscription
// are done or the retry policy gives up. Calling it while a connection is
// being established or is up does nothing.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == Connecting || m.state == Connected {
		m.mu.Unlock()
		return nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	m.setState(Connecting)

	connectCtx, stop := context.WithCancel(ctx)
	defer stop()
	defer context.AfterFunc(runCtx, stop)()

	l, session, err := m.establish(connectCtx)
	if err != nil {
		if runCtx.Err() != nil {
			return fmt.Errorf("connect interrupted: %w", runCtx.Err())
		}
		m.logger.Warn("connection failed", zap.Error(err))
		m.setState(Failed)
		return err
	}

	return m.attach(runCtx, l, session)
}

// Send publishes a lookup for word. It reports false without writing anything
// when the Manager is not connected. A non-zero id is sent along so servers
// that echo it let the caller match the reply.
func (m *Manager) Send(word string, id uint64) bool {
	m.mu.Lock()
	state, l := m.state, m.link
	m.mu.Unlock()

	if state != Connected || l == nil {
		m.logger.Warn("SendWhileDisconnected", zap.String("word", word), zap.Stringer("state", state))
		return false
	}

	frame, err := wire.Publish(wire.TopicSuggest, id, wire.SuggestionRequest{Word: word})
	if err != nil {
		m.logger.Error("connection failed to build request", zap.Error(err))
		return false
	}
	data, err := wire.Encode(frame)
	if err != nil {
		m.logger.Error("connection failed to encode request", zap.Error(err))
		return false
	}

	if !l.enqueue(data) {
		m.logger.Warn("connection send buffer full, dropping request", zap.String("word", word))
		return false
	}

	m.logger.Debug("connection sent request", zap.String("word", word), zap.Uint64("id", id))
	return true
}

// Disconnect closes the websocket, clears the listener and stops any
// reconnection in progress. It is safe to call more than once.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel, l, state := m.cancel, m.link, m.state
	m.cancel = nil
	m.link = nil
	m.listener = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if l != nil {
		l.close()
	}
	if state != Disconnected {
		m.setState(Disconnected)
	}
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	if m.state == state {
		m.mu.Unlock()
		return
	}
	m.state = state
	observer := m.observer
	m.mu.Unlock()

	m.logger.Debug("connection state changed", zap.Stringer("state", state))
	if observer != nil {
		observer(state)
	}
}

// attach makes l the live link unless Disconnect ran in the meantime.
func (m *Manager) attach(runCtx context.Context, l *link, session string) error {
	m.mu.Lock()
	if runCtx.Err() != nil {
		m.mu.Unlock()
		l.close()
		return fmt.Errorf("connect interrupted: %w", runCtx.Err())
	}
	m.link = l
	m.session = session
	m.mu.Unlock()

	m.logger.Info("connection established", zap.String("url", m.url), zap.String("session", session))
	m.setState(Connected)

	go l.writePump(m.logger)
	go m.readLoop(runCtx, l)
	return nil
}

func (m *Manager) establish(ctx context.Context) (*link, string, error) {
	attempts := 0
	var l *link
	var session string

	operation := func() error {
		attempts++
		var err error
		l, session, err = m.dial(ctx)
		return err
	}
	notify := func(err error, next time.Duration) {
		m.logger.Warn("connection attempt failed",
			zap.Int("attempt", attempts),
			zap.Duration("retryIn", next),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(m.newBackOff(), ctx), notify); err != nil {
		return nil, "", &ConnectionError{Attempts: attempts, Err: err}
	}
	return l, session, nil
}

// dial opens the websocket, waits for the connected frame and subscribes to
// the synonyms topic.
func (m *Manager) dial(ctx context.Context) (*link, string, error) {
	header := http.Header{}
	if m.tokens != nil {
		token, err := m.tokens.Token(ctx)
		if err != nil {
			return nil, "", backoff.Permanent(fmt.Errorf("failed to get token: %w", err))
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, resp, err := m.dialer.DialContext(ctx, m.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, "", backoff.Permanent(fmt.Errorf("%w: %s", ErrUnauthorized, resp.Status))
		}
		return nil, "", fmt.Errorf("failed to dial %s: %w", m.url, err)
	}

	session, err := m.handshake(conn)
	if err != nil {
		conn.Close()
		return nil, "", err
	}
	return newLink(conn), session, nil
}

func (m *Manager) handshake(conn *websocket.Conn) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(m.handshakeTimeout)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	frame, err := wire.Decode(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if frame.Type != wire.TypeConnected {
		return "", fmt.Errorf("%w: expected %q frame, got %q", ErrHandshake, wire.TypeConnected, frame.Type)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return "", fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	data, err = wire.Encode(wire.Subscribe(wire.TopicSynonyms))
	if err != nil {
		return "", err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return "", fmt.Errorf("failed to subscribe: %w", err)
	}
	return frame.Session, nil
}

func (m *Manager) readLoop(runCtx context.Context, l *link) {
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			l.close()
			if runCtx.Err() != nil {
				return
			}
			m.logger.Warn("connection lost", zap.Error(err))
			m.reconnect(runCtx, l)
			return
		}
		m.dispatch(data)
	}
}

func (m *Manager) reconnect(runCtx context.Context, dead *link) {
	m.mu.Lock()
	if m.link != dead {
		m.mu.Unlock()
		return
	}
	m.link = nil
	m.mu.Unlock()

	m.setState(Connecting)

	l, session, err := m.establish(runCtx)
	if err != nil {
		if runCtx.Err() != nil {
			return
		}
		m.logger.Error("connection reconnect failed", zap.Error(err))
		m.setState(Failed)
		return
	}
	if err := m.attach(runCtx, l, session); err != nil {
		m.logger.Debug("connection reconnect abandoned", zap.Error(err))
	}
}

func (m *Manager) dispatch(data []byte) {
	frame, err := wire.Decode(data)
	if err != nil {
		m.logger.Warn("connection dropping malformed frame", zap.Error(err))
		return
	}

	switch frame.Type {
	case wire.TypeMessage:
		if frame.Topic != wire.TopicSynonyms {
			m.logger.Debug("connection ignoring message", zap.String("topic", frame.Topic))
			return
		}
		resp, err := wire.DecodeResponse(frame.Body)
		if err != nil {
			m.logger.Warn("connection received malformed response", zap.Uint64("id", frame.ID), zap.Error(err))
			m.deliver(wire.Message{ID: frame.ID, Err: err})
			return
		}
		m.deliver(wire.Message{ID: frame.ID, Response: resp})
	case wire.TypeError:
		m.logger.Warn("connection received error frame", zap.Uint64("id", frame.ID), zap.String("error", frame.Error))
		m.deliver(wire.Failed(frame))
	default:
		m.logger.Debug("connection ignoring frame", zap.String("type", frame.Type))
	}
}

// deliver hands msg to the listener. Failed replies are delivered too so the
// listener can stop waiting for them.
func (m *Manager) deliver(msg wire.Message) {
	m.mu.Lock()
	listener := m.listener
	m.mu.Unlock()
	if listener != nil {
		listener(msg)
	}
}
