package push

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/studylink/match-app/internal/messaging"
	"github.com/studylink/match-app/internal/metrics"
	"github.com/studylink/match-app/internal/session"
)

// ServerConfig holds tunable parameters for the notification server.
type ServerConfig struct {
	ListenAddr     string        // address to listen on, e.g. ":8081"
	MaxConnections int           // hard cap on total sockets
	WriteTimeout   time.Duration // timeout for WebSocket write operations
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8081",
		MaxConnections: 10000,
		WriteTimeout:   10 * time.Second,
	}
}

// conn is one notification socket held by an authenticated user.
type conn struct {
	id      string
	userID  string
	netConn net.Conn
	writeMu sync.Mutex
}

// write sends a WebSocket text frame. The mutex serializes concurrent
// writers (NATS callbacks) on the same socket.
func (c *conn) write(data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if timeout > 0 {
		_ = c.netConn.SetWriteDeadline(time.Now().Add(timeout))
		defer c.netConn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteServerMessage(c.netConn, ws.OpText, data)
}

// Server accepts WebSocket connections from authenticated clients and
// forwards each user's notify.<id> NATS messages to their open sockets.
// One goroutine per connection; the read loop only watches for close.
type Server struct {
	config   ServerConfig
	sessions *session.Store
	nats     *messaging.NATSClient

	mu    sync.RWMutex
	conns map[string]*conn // conn id -> conn

	httpServer *http.Server
	startedAt  time.Time
}

// NewServer creates a notification server over the given session store and
// NATS client.
func NewServer(config ServerConfig, sessions *session.Store, nats *messaging.NATSClient) *Server {
	return &Server{
		config:   config,
		sessions: sessions,
		nats:     nats,
		conns:    make(map[string]*conn),
	}
}

// Start begins accepting WebSocket connections and blocks on the HTTP
// listener.
func (s *Server) Start() error {
	s.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: mux,
	}

	log.Printf("[push] server listening on %s (max_conns=%d)",
		s.config.ListenAddr, s.config.MaxConnections)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("push: http server error: %w", err)
	}
	return nil
}

// handleUpgrade authenticates the request by its token query parameter,
// upgrades it to a WebSocket, and wires the user's NATS notify subject to
// the socket.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	sess, err := s.sessions.Get(ctx, token)
	cancel()
	if err != nil {
		log.Printf("[push] session lookup failed: %v", err)
		http.Error(w, "session lookup failed", http.StatusInternalServerError)
		return
	}
	if sess == nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	netConn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("[push] upgrade failed: %v", err)
		return
	}

	c := &conn{
		id:      uuid.New().String(),
		userID:  sess.UserID,
		netConn: netConn,
	}

	s.mu.Lock()
	s.conns[c.id] = c
	total := len(s.conns)
	s.mu.Unlock()
	metrics.NotifyConnections.Inc()

	err = s.nats.SubscribeNotify(c.userID, c.id, func(data []byte) {
		if err := c.write(data, s.config.WriteTimeout); err != nil {
			log.Printf("[push] write to user=%s failed: %v", c.userID, err)
			s.remove(c)
		}
	})
	if err != nil {
		log.Printf("[push] subscribe notify for user=%s: %v", c.userID, err)
		s.remove(c)
		return
	}

	log.Printf("[push] new connection user=%s conn=%s (total=%d)", c.userID, c.id, total)

	go s.readLoop(c)
}

// readLoop consumes frames from the client. Clients don't send data on the
// notification socket; the loop exists to answer control frames and detect
// the close.
func (s *Server) readLoop(c *conn) {
	defer s.remove(c)

	for {
		header, reader, err := wsutil.NextReader(c.netConn, ws.StateServerSide)
		if err != nil {
			return
		}
		if header.OpCode.IsControl() {
			if header.OpCode == ws.OpClose {
				return
			}
			continue
		}
		// Clients don't send data here; discard anything that arrives.
		if _, err := io.Copy(io.Discard, reader); err != nil {
			return
		}
	}
}

// remove closes a connection, unsubscribes its NATS subscription, and drops
// it from the registry. Safe to call more than once per connection.
func (s *Server) remove(c *conn) {
	s.mu.Lock()
	_, ok := s.conns[c.id]
	if ok {
		delete(s.conns, c.id)
	}
	total := len(s.conns)
	s.mu.Unlock()

	if !ok {
		return
	}

	if err := s.nats.UnsubscribeNotify(c.id); err != nil {
		log.Printf("[push] unsubscribe conn=%s: %v", c.id, err)
	}
	_ = c.netConn.Close()
	metrics.NotifyConnections.Dec()

	log.Printf("[push] connection closed user=%s conn=%s (total=%d)", c.userID, c.id, total)
}

func (s *Server) count() int {
	s.mu.RLock()
	n := len(s.conns)
	s.mu.RUnlock()
	return n
}

// handleHealth responds with the server's health status as JSON.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","connections":%d,"uptime":"%s"}`,
		s.count(), time.Since(s.startedAt).Round(time.Second))
}

// Shutdown stops the HTTP listener and closes all open sockets.
func (s *Server) Shutdown() error {
	log.Println("[push] shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("[push] http shutdown error: %v", err)
	}

	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		s.remove(c)
	}

	log.Printf("[push] server stopped, all connections closed")
	return nil
}
