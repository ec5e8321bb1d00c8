package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/lox/borsa/internal/protocol"
	"github.com/lox/borsa/internal/registry"
)

// Options configures a Server beyond its registry.
type Options struct {
	Clock         quartz.Clock
	ArchiveDir    string // empty disables the standings archive
	RoomTTL       time.Duration
	SweepInterval time.Duration
}

// Server represents the WebSocket server
type Server struct {
	upgrader    websocket.Upgrader
	registry    *registry.Registry
	clock       quartz.Clock
	opts        Options
	logger      *log.Logger
	mu          sync.RWMutex
	connections map[*Connection]bool
	stats       *Stats
	httpServer  *http.Server
}

// NewServer creates a new WebSocket server around reg
func NewServer(reg *registry.Registry, logger *log.Logger, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.RoomTTL <= 0 {
		opts.RoomTTL = defaultRoomTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}

	return &Server{
		upgrader: websocket.Upgrader{
			// Rooms are protected by their code only, so any origin may connect
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		registry:    reg,
		clock:       opts.Clock,
		opts:        opts,
		logger:      logger.WithPrefix("server"),
		connections: make(map[*Connection]bool),
		stats:       newStats(opts.Clock.Now()),
	}
}

// Handler returns the HTTP handler serving /ws, /health and /stats
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

// Run serves on addr and sweeps expired rooms until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Starting WebSocket server", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return s.sweepLoop(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown stops accepting connections and closes every open one
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close() // Ignore close errors during shutdown
	}

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// sweepLoop removes expired rooms on every tick of the clock
func (s *Server) sweepLoop(ctx context.Context) error {
	w := s.clock.TickerFunc(ctx, s.opts.SweepInterval, func() error {
		if n := s.registry.Sweep(s.clock.Now(), s.opts.RoomTTL); n > 0 {
			s.logger.Info("Swept expired rooms", "removed", n, "remaining", s.registry.Len())
		}
		return nil
	}, "sweeper")

	err := w.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// handleWebSocket handles WebSocket upgrade requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, s)
	s.register(client)

	// HELLO is queued before the read pump starts so it is always the first frame.
	if err := client.SendMessage(protocol.TypeHello, protocol.Hello{ServerTime: s.clock.Now().UnixMilli()}); err != nil {
		s.logger.Debug("Failed to greet client", "error", err)
	}
	client.Start()

	// Connection cleanup is handled by the connection itself
	go func() {
		<-client.Done()
		s.unregister(client)
	}()
}

func (s *Server) register(conn *Connection) {
	s.mu.Lock()
	s.connections[conn] = true
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Info("Client connected", "total", total)
}

// unregister drops the connection and marks its player disconnected, as if
// it had sent LEAVE.
func (s *Server) unregister(conn *Connection) {
	s.mu.Lock()
	delete(s.connections, conn)
	total := len(s.connections)
	s.mu.Unlock()

	s.detach(conn)
	s.logger.Info("Client disconnected", "total", total)
}

type healthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	conns := len(s.connections)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(healthResponse{ // Ignore write errors for health check
		Status:      "ok",
		Rooms:       s.registry.Len(),
		Connections: conns,
	})
}

// handleStats serves activity counters
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.stats.Snapshot(s.clock.Now())
	snap.Rooms = s.registry.Len()
	snap.Connections = s.ConnectionCount()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

// roomConnections returns every connection bound to the room.
func (s *Server) roomConnections(code string) []*Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Connection
	for conn := range s.connections {
		if room, _ := conn.Binding(); room == code {
			out = append(out, conn)
		}
	}
	return out
}

// ConnectionCount returns the number of open connections
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}
