// Package gateway is the bundled chat adapter: a WebSocket endpoint that
// feeds inbound frames to the router and writes replies back.
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dbrandt/legate/internal/config"
	"github.com/dbrandt/legate/internal/domain"
	"github.com/dbrandt/legate/internal/logging"
)

// Server accepts adapter connections and relays their messages.
type Server struct {
	cfg     config.GatewayConfig
	handler domain.Handler
	log     *logging.Logger

	upgrader   websocket.Upgrader
	listener   net.Listener
	httpServer *http.Server
}

// New creates a gateway server around the given message handler.
func New(cfg config.GatewayConfig, handler domain.Handler, log *logging.Logger) *Server {
	return &Server{
		cfg:     cfg,
		handler: handler,
		log:     log.Named("gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	host := "127.0.0.1"
	if s.cfg.Bind == "lan" {
		host = "0.0.0.0"
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, s.cfg.Port))
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)
	s.httpServer = &http.Server{Handler: mux}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("gateway server stopped")
		}
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("gateway listening")
	return nil
}

// Addr returns the bound address. Valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"ok":true}`)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("adapter connected")
	c := &adapterConn{conn: conn}
	defer func() {
		conn.Close()
		s.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("adapter disconnected")
	}()

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn().Err(err).Msg("adapter read failed")
			}
			return
		}

		if reason := validateFrame(frame); reason != "" {
			c.send(s.log, Frame{Type: FrameTypeError, ChatID: frame.ChatID, Error: reason})
			continue
		}

		// One goroutine per message: turns for distinct conversations
		// must not queue behind each other on a shared connection.
		go s.relay(r.Context(), c, frame)
	}
}

// authorized checks the optional bearer token.
func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	if strings.EqualFold(auth, "Bearer "+s.cfg.Token) {
		return true
	}
	return r.URL.Query().Get("token") == s.cfg.Token
}

func validateFrame(f Frame) string {
	switch {
	case f.Type != FrameTypeMessage:
		return fmt.Sprintf("unsupported frame type %q", f.Type)
	case f.ChatID == "":
		return "chatId is required"
	case f.ChatType != string(domain.ChatTypeP2P) && f.ChatType != string(domain.ChatTypeGroup):
		return fmt.Sprintf("unsupported chatType %q", f.ChatType)
	case f.ChatType == string(domain.ChatTypeGroup) && f.SenderID == "":
		return "senderId is required for group chats"
	}
	return ""
}

func (s *Server) relay(ctx context.Context, c *adapterConn, frame Frame) {
	reply, err := s.handler.Handle(ctx, domain.InboundMessage{
		ChatType: domain.ChatType(frame.ChatType),
		ChatID:   frame.ChatID,
		SenderID: frame.SenderID,
		Text:     frame.Text,
	})
	if err != nil {
		c.send(s.log, Frame{Type: FrameTypeError, ChatID: frame.ChatID, SenderID: frame.SenderID, Error: err.Error()})
		return
	}
	if reply == "" {
		return
	}
	c.send(s.log, Frame{Type: FrameTypeReply, ChatID: frame.ChatID, SenderID: frame.SenderID, Text: reply})
}

// adapterConn serializes writes on one WebSocket connection.
type adapterConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *adapterConn) send(log *logging.Logger, frame Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(frame); err != nil {
		log.Warn().Err(err).Msg("adapter write failed")
	}
}
