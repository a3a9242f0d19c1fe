package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/neuroplastio/neio-pad/padapi"
	"go.uber.org/zap"
)

// Pads is the controller registry the monitor reports on.
type Pads interface {
	Subscribe(h padapi.Handler, kinds ...padapi.NotificationKind) padapi.Subscription
	Unsubscribe(id padapi.Subscription) bool
	Controllers() []*padapi.Controller
	Position(index int, stick padapi.Stick) (padapi.Position, error)
	ResetPosition(index int, stick padapi.Stick) error
}

// Server serves /ws (notification stream and commands) and /controllers (status).
type Server struct {
	log   *zap.Logger
	pads  Pads
	hub   *Hub
	addr  string
	ready chan struct{}

	upgrader websocket.Upgrader
	listener net.Listener
}

func New(log *zap.Logger, pads Pads, addr string) *Server {
	return &Server{
		log:   log,
		pads:  pads,
		hub:   NewHub(log),
		addr:  addr,
		ready: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local tool, any origin may connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address once the server is ready.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/controllers", s.handleControllers)
	return mux
}

// Start serves until ctx is done. Notifications of every controller are forwarded to
// connected clients while it runs.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener

	sub := s.pads.Subscribe(s.forward)
	defer s.pads.Unsubscribe(sub)

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()
	close(s.ready)
	s.log.Info("Monitor listening", zap.String("addr", s.Addr()))

	select {
	case err := <-errCh:
		return fmt.Errorf("monitor server failed: %w", err)
	case <-ctx.Done():
	}
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to shut down monitor: %w", err)
	}
	return nil
}

// forward runs on the controller's poll goroutine and must not block.
func (s *Server) forward(n padapi.Notification) {
	s.hub.Broadcast(n.Kind().String(), n)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	client := newClient(s.hub, conn)
	s.hub.register(client)
	client.reply(TypeSnapshot, s.Status(), nil)

	go client.writePump()
	go client.readPump(s.handleCommand)
}

func (s *Server) handleCommand(c *Client, msg ClientMessage) {
	switch msg.Type {
	case CommandResetPosition:
		err := s.pads.ResetPosition(msg.Controller, msg.Stick)
		c.reply(TypeAck, msg, err)
	case CommandSnapshot:
		c.reply(TypeSnapshot, s.Status(), nil)
	default:
		c.reply(TypeError, nil, fmt.Errorf("unknown command %q", msg.Type))
	}
}

func (s *Server) handleControllers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Status()); err != nil {
		s.log.Debug("Failed to write status", zap.Error(err))
	}
}

// Status returns the state of every open controller.
func (s *Server) Status() []ControllerStatus {
	ctrls := s.pads.Controllers()
	statuses := make([]ControllerStatus, 0, len(ctrls))
	for _, c := range ctrls {
		status := ControllerStatus{
			Index:    c.Index(),
			Name:     c.Name(),
			Serial:   c.Serial(),
			Profile:  c.Profile().Name,
			State:    c.State().String(),
			Attached: c.Attached(),
			Axes:     map[padapi.AxisID]int16{},
			Buttons:  map[string]bool{},
		}
		if snap, ok := c.Snapshot(); ok {
			status.Axes = snap.Axes
			for id, state := range snap.Buttons {
				status.Buttons[c.Profile().ButtonKey(id)] = state != 0
			}
		}
		status.Left, _ = s.pads.Position(c.Index(), padapi.StickLeft)
		status.Right, _ = s.pads.Position(c.Index(), padapi.StickRight)
		statuses = append(statuses, status)
	}
	return statuses
}
