// Package ws serves frame views over WebSocket. Each connection is one
// widget activation backed by its own Controller.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/widget/internal/backend"
	"github.com/xiaot623/gogo/widget/internal/bridge"
	"github.com/xiaot623/gogo/widget/internal/config"
	"github.com/xiaot623/gogo/widget/internal/domain"
	"github.com/xiaot623/gogo/widget/internal/hub"
	"github.com/xiaot623/gogo/widget/internal/protocol"
	"github.com/xiaot623/gogo/widget/internal/repository"
	"github.com/xiaot623/gogo/widget/internal/widget"
)

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	backend  backend.Backend
	storage  repository.Storage
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	// mu guards closing and every wg.Add so Shutdown never races a new send.
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, b backend.Backend, storage repository.Storage, logger zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		hub:     h,
		backend: b,
		storage: storage,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Frame pages are served by this service; embed origins are
			// checked when the page is requested.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ErrShuttingDown is returned for sends that arrive after Shutdown began.
var ErrShuttingDown = errors.New("server shutting down")

// Shutdown stops accepting sends and waits for in-flight ones until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight sends: %w", ctx.Err())
	}
}

// track registers an in-flight send. It reports false once Shutdown began.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

// client is the per-connection state.
type client struct {
	server *Server
	conn   *hub.Connection
	logger zerolog.Logger

	mu   sync.Mutex
	ctrl *widget.Controller
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade WebSocket")
		return err
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	cl := &client{
		server: s,
		conn:   conn,
		logger: s.logger.With().Str("conn_id", conn.ID).Logger(),
	}

	go s.writePump(conn)
	go s.readPump(cl)

	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(cl *client) {
	conn := cl.conn
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				cl.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}

		cl.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn().Err(err).Str("conn_id", conn.ID).Msg("Failed to write message")
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (cl *client) handleMessage(data []byte) {
	var baseMsg protocol.BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		cl.sendError(protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	if baseMsg.Type == protocol.TypeHello {
		cl.handleHello(data)
		return
	}

	ctrl := cl.controller()
	if ctrl == nil {
		cl.sendError(protocol.ErrorCodeSessionRequired, "must send hello first")
		return
	}

	var err error
	switch baseMsg.Type {
	case protocol.TypeSend:
		err = cl.handleSend(ctrl, data)
	case protocol.TypeClear:
		err = ctrl.Clear(context.Background())
	case protocol.TypeOpen:
		err = ctrl.Open()
	case protocol.TypeClose:
		err = ctrl.Close()
	case protocol.TypeToggle:
		err = ctrl.Toggle()
	case protocol.TypeKey:
		var msg protocol.KeyMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			cl.sendError(protocol.ErrorCodeInvalidMessage, "invalid key message")
			return
		}
		_, err = ctrl.HandleKey(msg.Key)
	case protocol.TypeViewport:
		var msg protocol.ViewportMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			cl.sendError(protocol.ErrorCodeInvalidMessage, "invalid viewport message")
			return
		}
		err = ctrl.Resize(domain.Viewport{Width: msg.Width, Height: msg.Height})
	default:
		cl.sendError(protocol.ErrorCodeInvalidMessage, "unknown message type: "+baseMsg.Type)
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, widget.ErrInactive):
		cl.sendError(protocol.ErrorCodeConfigError, bridge.ConfigErrorText)
	case errors.Is(err, ErrShuttingDown):
		cl.sendError(protocol.ErrorCodeSendRejected, err.Error())
	default:
		cl.logger.Error().Err(err).Str("type", baseMsg.Type).Msg("Action failed")
		cl.sendError(protocol.ErrorCodeInternalError, err.Error())
	}
}

// handleHello mounts the widget for this connection.
func (cl *client) handleHello(data []byte) {
	var msg protocol.HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		cl.sendError(protocol.ErrorCodeInvalidMessage, "invalid hello message")
		return
	}
	if cl.controller() != nil {
		cl.sendError(protocol.ErrorCodeInvalidMessage, "hello already received")
		return
	}

	s := cl.server
	opts := []widget.Option{
		widget.WithNotifier(cl),
		widget.WithPageContext(msg.Context),
		widget.WithSendTimeout(s.cfg.SendTimeout),
		widget.WithLogger(cl.logger),
	}
	if s.cfg.WelcomeMessage != "" {
		opts = append(opts, widget.WithWelcomeMessage(s.cfg.WelcomeMessage))
	}
	if msg.Viewport != nil {
		opts = append(opts, widget.WithViewport(*msg.Viewport))
	}
	ctrl := widget.New(s.backend, repository.WithScope(s.storage, msg.Scope), opts...)

	cl.mu.Lock()
	cl.ctrl = ctrl
	cl.mu.Unlock()

	if err := ctrl.Mount(context.Background(), msg.Layer()); err != nil {
		cl.send(protocol.ConfigErrorMessage{
			BaseMessage: protocol.NewBase(protocol.TypeConfigError, ""),
			Message:     bridge.ConfigErrorText,
		})
		return
	}

	sessionID := ctrl.SessionID()
	s.hub.BindSession(cl.conn, sessionID)

	cfg := ctrl.Config()
	cl.send(protocol.HelloAckMessage{
		BaseMessage: protocol.NewBase(protocol.TypeHelloAck, sessionID),
		Config:      cfg,
		Theme:       cfg.Theme(),
		IsOpen:      ctrl.State().IsOpen,
	})
	cl.logger.Info().Str("session_id", sessionID).Str("tenant_id", cfg.TenantID).Msg("Hello handshake completed")
}

// handleSend runs the send off the read loop so open/close/key stay responsive.
func (cl *client) handleSend(ctrl *widget.Controller, data []byte) error {
	var msg protocol.SendMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		cl.sendError(protocol.ErrorCodeInvalidMessage, "invalid send message")
		return nil
	}
	if err := ctrl.Ready(); err != nil {
		return err
	}

	if !cl.server.track() {
		return ErrShuttingDown
	}
	go func() {
		defer cl.server.wg.Done()
		ok, err := ctrl.Send(context.Background(), msg.Content)
		if err != nil {
			cl.logger.Error().Err(err).Msg("Send failed")
			return
		}
		if !ok {
			cl.sendError(protocol.ErrorCodeSendRejected, "message is empty or a send is already in flight")
		}
	}()
	return nil
}

func (cl *client) controller() *widget.Controller {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.ctrl
}

func (cl *client) sessionID() string {
	if ctrl := cl.controller(); ctrl != nil {
		return ctrl.SessionID()
	}
	return ""
}

// OnTranscript implements widget.Notifier.
func (cl *client) OnTranscript(msgs []domain.Message) {
	cl.send(protocol.NewTranscript(cl.sessionID(), msgs))
}

// OnState implements widget.Notifier.
func (cl *client) OnState(state widget.State) {
	cl.send(protocol.StateMessage{
		BaseMessage: protocol.NewBase(protocol.TypeState, cl.sessionID()),
		State:       state,
	})
}

// OnFrameMessage implements widget.Notifier.
func (cl *client) OnFrameMessage(frame bridge.FrameMessage) {
	cl.send(protocol.SizeMessage{
		BaseMessage: protocol.NewBase(protocol.TypeSize, cl.sessionID()),
		Frame:       frame,
	})
}

func (cl *client) send(v any) {
	if err := cl.server.hub.SendJSONToConnection(cl.conn, v); err != nil {
		cl.logger.Warn().Err(err).Msg("Failed to queue message")
	}
}

// sendError sends an error message to the connection.
func (cl *client) sendError(code, message string) {
	cl.send(protocol.ErrorMessage{
		BaseMessage: protocol.NewBase(protocol.TypeError, cl.sessionID()),
		Code:        code,
		Message:     message,
	})
}
