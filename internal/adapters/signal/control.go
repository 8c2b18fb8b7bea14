package signal

import (
	"time"

	"github.com/gorilla/websocket"
)

// pongWait is how long the read side waits for any traffic, pongs included.
func (c *Client) pongWait() time.Duration {
	return c.cfg.PingPeriod * 10 / 9
}

func (c *Client) watchPongs(conn *wsConn) {
	_ = conn.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	})
}

func (c *Client) ping(conn *wsConn) error {
	return conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
