package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/widget/internal/bridge"
	"github.com/xiaot623/gogo/widget/internal/domain"
	"github.com/xiaot623/gogo/widget/internal/protocol"
)

// errConfig is returned when the service rejects the widget configuration.
var errConfig = errors.New(bridge.ConfigErrorText)

// handler receives every service message except hello_ack.
type handler func(msgType string, data []byte)

// Client is a frame view connected to widgetd.
type Client struct {
	conn      *websocket.Conn
	sessionID string
	handle    handler
	done      chan struct{}
}

// NewClient creates a new client and connects to the server.
func NewClient(addr string, h handler) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &Client{
		conn:   conn,
		handle: h,
		done:   make(chan struct{}),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	close(c.done)
	return c.conn.Close()
}

// SendHello sends the hello and waits for hello_ack. Messages arriving before
// the ack are passed to the handler.
func (c *Client) SendHello(msg protocol.HelloMessage) (*protocol.HelloAckMessage, error) {
	msg.BaseMessage = protocol.NewBase(protocol.TypeHello, "")
	if err := c.conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("write hello: %w", err)
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read hello_ack: %w", err)
		}

		var base protocol.BaseMessage
		if err := json.Unmarshal(data, &base); err != nil {
			return nil, fmt.Errorf("unmarshal hello_ack: %w", err)
		}

		switch base.Type {
		case protocol.TypeHelloAck:
			var ack protocol.HelloAckMessage
			if err := json.Unmarshal(data, &ack); err != nil {
				return nil, fmt.Errorf("unmarshal hello_ack: %w", err)
			}
			c.sessionID = ack.SessionID
			return &ack, nil
		case protocol.TypeConfigError:
			return nil, errConfig
		case protocol.TypeError:
			var errMsg protocol.ErrorMessage
			json.Unmarshal(data, &errMsg)
			return nil, fmt.Errorf("hello failed: %s - %s", errMsg.Code, errMsg.Message)
		default:
			c.handle(base.Type, data)
		}
	}
}

// SendAction sends a message without payload, e.g. open or clear.
func (c *Client) SendAction(msgType string) error {
	return c.conn.WriteJSON(protocol.NewBase(msgType, c.sessionID))
}

// SendText sends visitor input.
func (c *Client) SendText(content string) error {
	return c.conn.WriteJSON(protocol.SendMessage{
		BaseMessage: protocol.NewBase(protocol.TypeSend, c.sessionID),
		Content:     content,
	})
}

// SendKey reports a key press.
func (c *Client) SendKey(key string) error {
	return c.conn.WriteJSON(protocol.KeyMessage{
		BaseMessage: protocol.NewBase(protocol.TypeKey, c.sessionID),
		Key:         key,
	})
}

// SendViewport reports a viewport change.
func (c *Client) SendViewport(vp domain.Viewport) error {
	return c.conn.WriteJSON(protocol.ViewportMessage{
		BaseMessage: protocol.NewBase(protocol.TypeViewport, c.sessionID),
		Width:       vp.Width,
		Height:      vp.Height,
	})
}

// ReadMessages passes service messages to the handler until the connection closes.
func (c *Client) ReadMessages() error {
	for {
		select {
		case <-c.done:
			return nil
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			select {
			case <-c.done:
				return nil
			default:
			}
			return fmt.Errorf("read: %w", err)
		}

		var base protocol.BaseMessage
		if err := json.Unmarshal(data, &base); err != nil {
			continue
		}
		c.handle(base.Type, data)
	}
}

// SessionID returns the session assigned in hello_ack.
func (c *Client) SessionID() string {
	return c.sessionID
}
