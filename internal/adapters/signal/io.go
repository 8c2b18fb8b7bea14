package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (c *Client) writePump(ctx context.Context, conn *wsConn) {
	ping := time.NewTicker(c.cfg.PingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			conn.Close()
			return
		case data, ok := <-conn.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := conn.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				conn.Close()
				return
			}
			if err := conn.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				conn.Close()
				return
			}
		case <-ping.C:
			if err := c.ping(conn); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("ping failed")
				conn.Close()
				return
			}
		}
	}
}

func (c *Client) readPump(ctx context.Context, conn *wsConn) error {
	c.watchPongs(conn)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		c.dispatch(data)
	}
}
