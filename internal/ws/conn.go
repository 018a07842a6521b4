package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// wsConn adapts a gorilla connection to the realtime.Conn interface. Writes
// are serialized by a mutex; a failed write closes the socket so the read
// loop terminates and drives the full disconnect path.
type wsConn struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSConn(id string, conn *websocket.Conn) *wsConn {
	return &wsConn{id: id, conn: conn}
}

func (c *wsConn) ID() string {
	return c.id
}

func (c *wsConn) Send(event string, payload any) error {
	buf, err := json.Marshal(outboundFrame{Event: event, Data: payload})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, buf); err != nil {
		c.conn.Close()
		return err
	}
	return nil
}
