// Package realtime keeps a persistent, auto-reconnecting connection to the
// messaging hub and fans server invocations out to registered handlers.
//
// The hub speaks the JSON hub protocol over a WebSocket: a handshake record,
// then records terminated by 0x1e. The client is receive-only; it answers
// with keepalive pings and never invokes server methods.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/mixdesk/internal/bus"
	"github.com/matheus3301/mixdesk/internal/metrics"
)

// State is the connection state of the hub.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Reconnecting State = "RECONNECTING"
)

// Bus event kinds, one per State.
const (
	KindConnecting   = "hub.connecting"
	KindConnected    = "hub.connected"
	KindReconnecting = "hub.reconnecting"
	KindDisconnected = "hub.disconnected"
)

var stateKinds = map[State]string{
	Disconnected: KindDisconnected,
	Connecting:   KindConnecting,
	Connected:    KindConnected,
	Reconnecting: KindReconnecting,
}

// Handler receives the arguments of one server invocation.
type Handler func(args []json.RawMessage)

// Options configures a Hub.
type Options struct {
	URL              string // ws:// or wss:// endpoint
	Keepalive        time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	HandshakeTimeout time.Duration
}

func (o *Options) defaults() {
	if o.Keepalive <= 0 {
		o.Keepalive = 15 * time.Second
	}
	if o.ReconnectInitial <= 0 {
		o.ReconnectInitial = 500 * time.Millisecond
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = 30 * time.Second
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
}

type registration struct {
	id uint64
	fn Handler
}

// Hub is the realtime connection. It is safe for concurrent use.
type Hub struct {
	opts    Options
	dialer  *websocket.Dialer
	bus     *bus.Bus
	logger  *zap.Logger
	metrics *metrics.Metrics

	hmu      sync.RWMutex
	handlers map[string][]registration
	nextID   uint64

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped hub. Cookies in jar authenticate the upgrade request.
func New(opts Options, jar http.CookieJar, b *bus.Bus, logger *zap.Logger, m *metrics.Metrics) *Hub {
	opts.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
			Jar:              jar,
		},
		bus:      b,
		logger:   logger,
		metrics:  m,
		handlers: make(map[string][]registration),
		state:    Disconnected,
	}
}

// Endpoint derives the hub WebSocket URL from the API base URL: same host,
// ws/wss scheme, path replaced by hubPath.
func Endpoint(apiBase *url.URL, hubPath string) string {
	u := *apiBase
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if !strings.HasPrefix(hubPath, "/") {
		hubPath = "/" + hubPath
	}
	u.Path = hubPath
	u.RawPath = ""
	u.RawQuery = ""
	return u.String()
}

// On registers fn for invocations of target (case-insensitive). The returned
// function removes the registration and may be called any number of times.
func (h *Hub) On(target string, fn Handler) (off func()) {
	key := strings.ToLower(target)

	h.hmu.Lock()
	h.nextID++
	id := h.nextID
	h.handlers[key] = append(h.handlers[key], registration{id: id, fn: fn})
	h.hmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.hmu.Lock()
			defer h.hmu.Unlock()
			regs := h.handlers[key]
			for i, r := range regs {
				if r.id == id {
					h.handlers[key] = append(regs[:i:i], regs[i+1:]...)
					break
				}
			}
			if len(h.handlers[key]) == 0 {
				delete(h.handlers, key)
			}
		})
	}
}

// Handlers returns how many handlers are registered for target.
func (h *Hub) Handlers(target string) int {
	h.hmu.RLock()
	defer h.hmu.RUnlock()
	return len(h.handlers[strings.ToLower(target)])
}

// State returns the current connection state.
func (h *Hub) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Hub) setState(s State) {
	h.mu.Lock()
	if h.state == s {
		h.mu.Unlock()
		return
	}
	h.state = s
	h.mu.Unlock()

	h.metrics.HubUp(s == Connected)
	h.logger.Debug("hub state", zap.String("state", string(s)))
	h.bus.Emit(stateKinds[s], s)
}

// Start launches the connection loop. It returns immediately; the loop keeps
// reconnecting until Stop is called or ctx is done. Calling Start on a running
// hub is a no-op.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.run(ctx, h.done)
}

// Stop closes the connection and waits for the loop to exit. Safe to call on
// a stopped hub.
func (h *Hub) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (h *Hub) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer h.setState(Disconnected)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = h.opts.ReconnectInitial
	bo.MaxInterval = h.opts.ReconnectMax

	h.setState(Connecting)
	for {
		err := h.session(ctx, bo)
		if ctx.Err() != nil {
			return
		}

		wait := bo.NextBackOff()
		h.logger.Warn("hub connection lost", zap.Error(err), zap.Duration("retry_in", wait))
		h.setState(Reconnecting)
		h.metrics.HubReconnect()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session dials, handshakes and serves one connection until it fails.
func (h *Hub) session(ctx context.Context, bo *backoff.ExponentialBackOff) error {
	conn, resp, err := h.dialer.DialContext(ctx, h.opts.URL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial hub: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial hub: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := h.handshake(conn); err != nil {
		return err
	}
	bo.Reset()
	h.setState(Connected)
	h.logger.Info("hub connected", zap.String("url", h.opts.URL))

	return h.serve(ctx, conn)
}

func (h *Hub) handshake(conn *websocket.Conn) error {
	deadline := time.Now().Add(h.opts.HandshakeTimeout)
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, handshakeRequest); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}
	_ = conn.SetReadDeadline(deadline)
	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read handshake: %w", err)
	}
	if err := parseHandshake(data); err != nil {
		return err
	}
	// The handshake response may share a payload with the first messages.
	if recs := splitRecords(data); len(recs) > 1 {
		for _, rec := range recs[1:] {
			if err := h.handle(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

var errServerClosed = errors.New("hub closed by server")

// serve reads until the connection fails. Pings are written every keepalive
// interval; the read deadline allows two missed server pings.
func (h *Hub) serve(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		ticker := time.NewTicker(h.opts.Keepalive)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				_ = conn.Close()
				return
			case <-stop:
				return
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(h.opts.Keepalive))
				if err := conn.WriteMessage(websocket.TextMessage, pingFrame); err != nil {
					h.logger.Debug("hub ping failed", zap.Error(err))
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(2 * h.opts.Keepalive))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read hub: %w", err)
		}
		for _, rec := range splitRecords(data) {
			if err := h.handle(rec); err != nil {
				return err
			}
		}
	}
}

func (h *Hub) handle(rec []byte) error {
	var f frame
	if err := json.Unmarshal(rec, &f); err != nil {
		h.logger.Warn("dropping malformed hub record", zap.Error(err))
		return nil
	}
	switch f.Type {
	case typeInvocation:
		h.dispatch(f.Target, f.Arguments)
	case typePing, typeStreamItem, typeCompletion:
	case typeClose:
		if f.Error != "" {
			return fmt.Errorf("%w: %s", errServerClosed, f.Error)
		}
		return errServerClosed
	default:
		h.logger.Debug("ignoring hub record", zap.Int("type", f.Type))
	}
	return nil
}

func (h *Hub) dispatch(target string, args []json.RawMessage) {
	h.hmu.RLock()
	regs := append([]registration(nil), h.handlers[strings.ToLower(target)]...)
	h.hmu.RUnlock()

	h.metrics.LiveEvent(target)
	if len(regs) == 0 {
		h.logger.Debug("no handler for invocation", zap.String("target", target))
		return
	}
	for _, r := range regs {
		r.fn(args)
	}
}
