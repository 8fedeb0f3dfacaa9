// Package livestatus keeps one WebSocket open to the backend's live-status
// endpoint and fans inbound messages out to subscribers.
//
// A connection that closes for any reason other than Disconnect schedules
// exactly one reconnect after ReconnectDelay. Reconnects repeat without limit
// and without backoff.
package livestatus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/browsertest/dashboard/internal/metrics"
)

const (
	ReconnectDelay = 5 * time.Second
	writeTimeout   = 5 * time.Second
)

// ErrDisconnected is returned by Connect when Disconnect ran while dialing.
var ErrDisconnected = errors.New("disconnected while dialing")

// Stopper cancels a scheduled callback. time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d. Tests replace it to drive reconnects by hand.
type AfterFunc func(d time.Duration, f func()) Stopper

func realAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

type Option func(*Conn)

func WithLogger(l *zap.Logger) Option {
	return func(c *Conn) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Conn) {
		if d != nil {
			c.dialer = d
		}
	}
}

func WithAfterFunc(f AfterFunc) Option {
	return func(c *Conn) {
		if f != nil {
			c.afterFunc = f
		}
	}
}

// WithReconnectDelay overrides ReconnectDelay.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.delay = d
		}
	}
}

type Conn struct {
	url       string
	dialer    *websocket.Dialer
	logger    *zap.Logger
	afterFunc AfterFunc
	delay     time.Duration

	writeMu sync.Mutex

	mu         sync.Mutex
	ws         *websocket.Conn
	gen        uint64
	connecting bool
	connected  bool
	reconnect  Stopper
	ctx        context.Context
	last       *Message
	nextSub    int
	subs       map[int]func(Message)
	stateSubs  map[int]func(bool)
}

func New(url string, opts ...Option) *Conn {
	c := &Conn{
		url:       url,
		dialer:    websocket.DefaultDialer,
		logger:    zap.NewNop(),
		afterFunc: realAfterFunc,
		delay:     ReconnectDelay,
		subs:      make(map[int]func(Message)),
		stateSubs: make(map[int]func(bool)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Conn) URL() string {
	return c.url
}

// Connect opens the socket. It is a no-op while a connection is open or being
// dialed, and cancels any pending reconnect first. ctx bounds the dial; once
// ctx is done no further reconnects are attempted.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.ws != nil || c.connecting {
		c.mu.Unlock()
		return nil
	}
	c.cancelReconnectLocked()
	c.gen++
	gen := c.gen
	c.connecting = true
	c.ctx = ctx
	c.mu.Unlock()

	c.logger.Debug("Connecting to live status", zap.String("url", c.url))
	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if ws != nil {
			ws.Close()
		}
		if err != nil {
			return err
		}
		return ErrDisconnected
	}
	c.connecting = false
	if err != nil {
		metrics.LiveConnectsTotal.WithLabelValues("error").Inc()
		c.logger.Warn("Live status connection failed", zap.String("url", c.url), zap.Error(err))
		c.scheduleReconnectLocked(gen)
		c.mu.Unlock()
		return err
	}
	c.ws = ws
	c.connected = true
	c.mu.Unlock()

	metrics.LiveConnectsTotal.WithLabelValues("ok").Inc()
	metrics.LiveConnected.Set(1)
	c.logger.Info("Live status connected", zap.String("url", c.url))
	c.notifyState(true)

	go c.readLoop(ws, gen)
	return nil
}

// Disconnect cancels any pending reconnect and closes the active connection.
// It never schedules a reconnect and is safe to call when already disconnected.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.gen++
	c.cancelReconnectLocked()
	ws := c.ws
	wasConnected := c.connected
	c.ws = nil
	c.connected = false
	c.connecting = false
	c.mu.Unlock()

	if ws != nil {
		c.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		c.writeMu.Unlock()
		ws.Close()
	}
	if wasConnected {
		metrics.LiveConnected.Set(0)
		c.logger.Info("Live status disconnected")
		c.notifyState(false)
	}
}

// Send JSON-encodes payload and writes it while the connection is open.
// When closed the payload is dropped and Send returns nil.
func (c *Conn) Send(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		c.logger.Debug("Live status closed, dropping outbound message")
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Warn("Live status send failed", zap.Error(err))
	}
	return nil
}

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// LastMessage returns the most recent well-formed message, if any.
func (c *Conn) LastMessage() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Message{}, false
	}
	return *c.last, true
}

// Subscribe registers fn for every decoded message. fn runs on the read
// goroutine and must not block. The returned func unsubscribes.
func (c *Conn) Subscribe(fn func(Message)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// OnStateChange registers fn for connected/disconnected transitions.
func (c *Conn) OnStateChange(fn func(connected bool)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.stateSubs[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.stateSubs, id)
		c.mu.Unlock()
	}
}

func (c *Conn) readLoop(ws *websocket.Conn, gen uint64) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}

		msg, err := decodeMessage(data)
		if err != nil {
			metrics.LiveMessagesTotal.WithLabelValues("malformed").Inc()
			c.logger.Warn("Dropping malformed live status message", zap.Error(err), zap.Int("bytes", len(data)))
			continue
		}
		metrics.LiveMessagesTotal.WithLabelValues(msg.Type).Inc()

		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.last = &msg
		subs := make([]func(Message), 0, len(c.subs))
		for _, fn := range c.subs {
			subs = append(subs, fn)
		}
		c.mu.Unlock()

		for _, fn := range subs {
			fn(msg)
		}
	}
}

func (c *Conn) handleClose(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		// closed by Disconnect or superseded by a newer connection
		c.mu.Unlock()
		return
	}
	ws := c.ws
	c.ws = nil
	c.connected = false
	c.scheduleReconnectLocked(gen)
	c.mu.Unlock()

	if ws != nil {
		ws.Close()
	}
	metrics.LiveConnected.Set(0)
	c.logger.Warn("Live status connection closed", zap.Error(err), zap.Duration("reconnect_in", c.delay))
	c.notifyState(false)
}

// scheduleReconnectLocked arms at most one reconnect timer. The timer does
// nothing if Disconnect or Connect ran after it was armed.
func (c *Conn) scheduleReconnectLocked(gen uint64) {
	if c.reconnect != nil {
		return
	}
	metrics.LiveReconnectsScheduledTotal.Inc()
	c.reconnect = c.afterFunc(c.delay, func() {
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.reconnect = nil
		ctx := c.ctx
		c.mu.Unlock()

		if ctx == nil || ctx.Err() != nil {
			return
		}
		_ = c.Connect(ctx)
	})
}

func (c *Conn) cancelReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

func (c *Conn) notifyState(connected bool) {
	c.mu.Lock()
	subs := make([]func(bool), 0, len(c.stateSubs))
	for _, fn := range c.stateSubs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(connected)
	}
}
