// Package signal is the websocket client for the signaling server. It keeps
// one connection open, reconnecting after drops, and turns inbound events into
// orchestrator calls.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("backpressure")

// Handler receives normalized inbound call events.
type Handler interface {
	HandleIncoming(core.IncomingCall)
	HandleRinging(domain.CallID)
	HandleAnswered(domain.CallID)
	HandleRejected(core.ReasonPayload)
	HandleEnded(core.ReasonPayload)
	HandleOffer(core.DescriptionPayload)
	HandleAnswer(core.DescriptionPayload)
	HandleCandidate(core.CandidatePayload)
}

// PresenceSink receives presence events.
type PresenceSink interface {
	Replace([]domain.UserRef)
	SetOnline(domain.UserRef)
	SetOffline(domain.UserID)
	Clear()
}

type Config struct {
	URL            string
	Token          string
	ReadLimit      int64
	PingPeriod     time.Duration
	ReconnectDelay time.Duration
	// IncomingLimit caps call:incoming per caller within IncomingWindow.
	IncomingLimit  int
	IncomingWindow time.Duration
}

// Client implements core.SignalChannel.
type Client struct {
	cfg      Config
	dialer   *websocket.Dialer
	presence PresenceSink
	limiter  *IncomingRateLimiter
	handler  Handler

	mu   sync.RWMutex
	conn *wsConn
}

func NewClient(cfg Config, presence PresenceSink) *Client {
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 64 << 10
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 30 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.IncomingLimit <= 0 {
		cfg.IncomingLimit = 5
	}
	if cfg.IncomingWindow <= 0 {
		cfg.IncomingWindow = time.Minute
	}
	return &Client{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		presence: presence,
		limiter:  NewIncomingRateLimiter(cfg.IncomingLimit, cfg.IncomingWindow, nil),
	}
}

// SetHandler must be called before Run.
func (c *Client) SetHandler(h Handler) { c.handler = h }

func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Send marshals one envelope and queues it. It never blocks: a full queue or
// a missing connection fails with core.ErrTransportUnavailable.
func (c *Client) Send(event string, payload any) error {
	data, err := json.Marshal(envelope{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("%w: not connected", core.ErrTransportUnavailable)
	}
	if err := conn.TrySend(data); err != nil {
		return fmt.Errorf("%w: %v", core.ErrTransportUnavailable, err)
	}
	log.Debug().Str("module", "signal").Str("event", event).Msg("sent")
	return nil
}

// Run keeps a connection open until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.session(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("module", "signal").Dur("retry_in", c.cfg.ReconnectDelay).Msg("signaling disconnected")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	ws, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	ws.SetReadLimit(c.cfg.ReadLimit)

	conn := newWSConn(ws)
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	log.Info().Str("module", "signal").Str("url", c.cfg.URL).Msg("signaling connected")

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
		if c.presence != nil {
			c.presence.Clear()
		}
	}()

	go c.writePump(sctx, conn)
	return c.readPump(sctx, conn)
}

type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{conn: ws, send: make(chan core.Frame, 64)}
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}
