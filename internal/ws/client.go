package ws

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var _ WSClient = (*Client)(nil)

type BaseClient struct {
	Conn *websocket.Conn
	Send chan []byte
}

func NewBaseClient(conn *websocket.Conn) *BaseClient {
	return &BaseClient{
		Conn: conn,
		Send: make(chan []byte, SendBuffer),
	}
}

func (c *BaseClient) GetSend() chan []byte {
	return c.Send
}

func (c *BaseClient) WritePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Client is one application runtime connected to the bridge.
type Client struct {
	*BaseClient
	Hub  WSHub
	id   string
	Name string
}

func NewClient(hub WSHub, conn *websocket.Conn, name string) *Client {
	return &Client{
		BaseClient: NewBaseClient(conn),
		Hub:        hub,
		id:         uuid.NewString(),
		Name:       name,
	}
}

func (c *Client) ID() string { return c.id }

type MessageHandler func(ctx context.Context, raw []byte)

// ReadPump feeds incoming frames to onMessage until the connection fails.
// The context passed to onMessage ends when the pump returns.
func (c *Client) ReadPump(ctx context.Context, onMessage MessageHandler) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			break
		}
		onMessage(ctx, raw)
	}
}
