package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer = 10
	pongWait   = 60 * time.Second
	pingEvery  = 50 * time.Second
	writeWait  = 10 * time.Second
)

type Client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS subscribes the connection to tradeCode. snapshot, when not nil, is sent first.
func ServeWS(w http.ResponseWriter, r *http.Request, hub *Hub, tradeCode string, snapshot []byte) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	if snapshot != nil {
		client.send <- snapshot
	}
	hub.Register(tradeCode, client)
	go client.writePump(hub, tradeCode)
	client.readPump(hub, tradeCode)
}

func (c *Client) close(hub *Hub, tradeCode string) {
	c.once.Do(func() {
		hub.Unregister(tradeCode, c)
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) readPump(hub *Hub, tradeCode string) {
	defer c.close(hub, tradeCode)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *Client) writePump(hub *Hub, tradeCode string) {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		c.close(hub, tradeCode)
	}()
	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
