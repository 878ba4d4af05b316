package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client is one live websocket connection. Read and Write pump the
// connection; Send may be called from any goroutine.
type Client struct {
	id        string
	conn      *websocket.Conn
	log       *log.Logger
	userId    int
	send      chan *Event
	stop      chan struct{}
	closeOnce sync.Once
}

func NewClient(userId int, conn *websocket.Conn, l *log.Logger) *Client {
	id, err := shortid.Generate()
	if err != nil {
		id = "unknown"
	}

	return &Client{
		id:     id,
		conn:   conn,
		log:    l,
		userId: userId,
		send:   make(chan *Event, sendBufferSize),
		stop:   make(chan struct{}),
	}
}

// String identifies the connection and its user in log lines.
func (c *Client) String() string {
	return fmt.Sprintf("%s (user %d)", c.id, c.userId)
}

// Send queues ev without blocking. A full queue closes the client and
// reports ErrSendBufferFull.
func (c *Client) Send(ev *Event) error {
	select {
	case <-c.stop:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- ev:
		return nil
	default:
		c.log.Printf("client %v: send buffer full", c)
		c.Close(websocket.CloseTryAgainLater, "send buffer full")
		return ErrSendBufferFull
	}
}

// Close sends a close frame with code and reason and tears the connection
// down. Only the first call has an effect.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil &&
			!errors.Is(err, websocket.ErrCloseSent) {
			c.log.Printf("client %v: write close: %v", c, err)
		}
		c.teardown()
	})
}

// terminate drops the connection without a close frame.
func (c *Client) terminate() {
	c.closeOnce.Do(c.teardown)
}

func (c *Client) teardown() {
	close(c.stop)
	c.conn.Close()
}

func (c *Client) Done() <-chan struct{} {
	return c.stop
}

// Write delivers queued events and keeps the connection alive with pings
// until the client is closed.
func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-c.send:
			bytes, err := json.Marshal(ev)
			if err != nil {
				c.log.Printf("client %v: failed to serialize event: %v", c, err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				c.terminate()
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				c.terminate()
				return
			}
		}
	}
}

// Read passes every inbound frame to handle until the peer disconnects or
// the client is closed.
func (c *Client) Read(handle func(raw []byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Printf("client %v: read: %v", c, err)
			}
			return
		}

		handle(raw)
	}
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("client %v: write message: %v", c, err)
		}
		return false
	}

	return true
}
