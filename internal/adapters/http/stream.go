package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Dial/internal/app"
	"github.com/dkeye/Dial/internal/app/orch"
	"github.com/dkeye/Dial/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("backpressure")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type streamMessage struct {
	Type  string         `json:"type"`
	State *orch.Snapshot `json:"state,omitempty"`
	Alert *core.Alert    `json:"alert,omitempty"`
}

// viewer is one UI websocket following call state.
type viewer struct {
	id      string
	conn    *websocket.Conn
	send    chan core.Frame
	dropped atomic.Int32

	mu     sync.RWMutex
	closed bool
}

func newViewer(id string, conn *websocket.Conn) *viewer {
	return &viewer{id: id, conn: conn, send: make(chan core.Frame, 32)}
}

func (v *viewer) ID() string   { return v.id }
func (v *viewer) Dropped() int { return int(v.dropped.Load()) }

func (v *viewer) TrySend(f core.Frame) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return errors.New("connection closed")
	}
	select {
	case v.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

func (v *viewer) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	close(v.send)
	_ = v.conn.Close()
}

func (v *viewer) writeLoop(ctx context.Context) {
	defer v.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-v.send:
			if !ok {
				return
			}
			_ = v.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// readLoop only watches for the client going away.
func (v *viewer) readLoop() {
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *handlers) stream(c *gin.Context) {
	id := c.GetString(clientTokenKey)
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
		return
	}
	v := newViewer(id, ws)
	log.Info().Str("module", "adapters.http").Str("viewer", id).Msg("state viewer connected")

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()

	snap := h.calls.Snapshot()
	h.push(v, streamMessage{Type: "state", State: &snap})
	unsubscribe := h.calls.Subscribe(func(u orch.Update) {
		s := u.Snapshot
		h.push(v, streamMessage{Type: "state", State: &s})
		if u.Alert != nil {
			h.push(v, streamMessage{Type: "alert", Alert: u.Alert})
		}
	})
	defer unsubscribe()

	go v.writeLoop(ctx)
	go func() {
		<-ctx.Done()
		v.Close()
	}()
	v.readLoop()
	log.Info().Str("module", "adapters.http").Str("viewer", id).Int("dropped", v.Dropped()).Msg("state viewer gone")
}

// push never blocks; it runs on the orchestrator loop.
func (h *handlers) push(v *viewer, m streamMessage) {
	data, err := json.Marshal(m)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("stream marshal")
		return
	}
	if err := v.TrySend(data); !errors.Is(err, ErrBackpressure) {
		return
	}
	action := app.DropUpdate
	if h.policy != nil {
		action = h.policy.OnBackPressure(v)
	}
	switch action {
	case app.Disconnect:
		log.Warn().Str("module", "adapters.http").Str("viewer", v.ID()).Msg("slow viewer disconnected")
		v.Close()
	case app.DropUpdate:
		v.dropped.Add(1)
	case app.NoAction:
	}
}
