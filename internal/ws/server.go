// Package ws handles WebSocket connection management: upgrading HTTP
// connections, running admission control, maintaining the registry of
// admitted clients, and dispatching incoming messages to handlers.
package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/parroquiasbdebarinas-lang/Server/internal/metrics"
	"github.com/parroquiasbdebarinas-lang/Server/internal/protocol"
)

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	ListenAddr     string        // address to listen on, e.g. ":8080"
	WorkerPoolSize int           // max concurrent read-worker goroutines
	MaxConnections int           // hard cap on total connections
	ReadTimeout    time.Duration // timeout for WebSocket read operations
	WriteTimeout   time.Duration // timeout for WebSocket write operations
	AdminToken     string        // shared secret granting the admin role; empty disables admin
	TrustProxy     bool          // honor X-Forwarded-For (single trusted proxy hop only)
}

// DefaultServerConfig returns a ServerConfig with sensible production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8080",
		WorkerPoolSize: 256,
		MaxConnections: 100000,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// AdmitFunc is the admission check run for every new connection before any
// frame is sent to the client. It returns whether the address is allowed and,
// if not, the user-facing rejection notice.
type AdmitFunc func(ctx context.Context, addr string) (allowed bool, notice string, err error)

// Server is the WebSocket server built on gobwas/ws and Linux epoll. It
// upgrades HTTP connections, runs the admission gate, registers admitted
// connections for I/O readiness notifications, and dispatches ready
// connections to a bounded worker pool for frame reading.
type Server struct {
	config     ServerConfig
	epoll      *Epoll
	conns      *ConnectionManager
	admit      AdmitFunc
	workerPool chan struct{}                        // semaphore limiting concurrent read workers
	onMessage  func(conn *Connection, data []byte) // message handler callback
	onConnect  func(conn *Connection)              // called after a connection is admitted
	httpServer *http.Server
	done       chan struct{}
	startedAt  time.Time
	closeOnce  sync.Once
}

// NewServer creates a Server with the given configuration, admission check,
// and message callback. The onMessage function is called from a worker
// goroutine whenever a complete WebSocket text frame is received.
func NewServer(config ServerConfig, admit AdmitFunc, onMessage func(conn *Connection, data []byte)) *Server {
	return &Server{
		config:     config,
		conns:      NewConnectionManager(),
		admit:      admit,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		onMessage:  onMessage,
		done:       make(chan struct{}),
	}
}

// SetOnConnect registers a callback invoked after a connection has been
// admitted and registered. The gate wiring uses it to deliver the recent
// history window.
func (s *Server) SetOnConnect(fn func(conn *Connection)) {
	s.onConnect = fn
}

// Start initializes the epoll instance, configures the HTTP server, and
// begins accepting WebSocket connections. It starts the epoll event loop in
// a background goroutine and blocks on http.Server.ListenAndServe.
func (s *Server) Start() error {
	var err error
	s.epoll, err = NewEpoll()
	if err != nil {
		return fmt.Errorf("ws: failed to create epoll: %w", err)
	}

	s.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: mux,
	}

	go s.startEventLoop()

	StartHeartbeat(s, DefaultHeartbeatConfig())

	log.Printf("ws: server listening on %s (workers=%d, max_conns=%d, trust_proxy=%v)",
		s.config.ListenAddr, s.config.WorkerPoolSize, s.config.MaxConnections, s.config.TrustProxy)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ws: http server error: %w", err)
	}
	return nil
}

// handleUpgrade upgrades an HTTP request to a WebSocket connection and runs
// the admission gate. The gate must finish (including its store round trips)
// before any frame is written; a rejected client receives only the banned
// notice and is closed without ever being registered.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	// Address and role are resolved from the request before the upgrade
	// consumes it.
	addr := ResolveClientAddr(r, s.config.TrustProxy)
	role := s.resolveRole(r)

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	allowed, notice, err := s.admit(ctx, addr)
	cancel()
	if err != nil {
		// The recommended policy for ban-store outages is fail-open: log and
		// admit rather than locking everyone out.
		log.Printf("ws: admission check failed for %s (failing open): %v", addr, err)
		allowed = true
	}
	if !allowed {
		metrics.AdmissionsTotal.WithLabelValues("rejected").Inc()
		payload, _ := protocol.NewServerMessage(protocol.TypeBanned, protocol.BannedMsg{Reason: notice})
		_ = wsutil.WriteServerMessage(conn, ws.OpText, payload)
		conn.Close()
		log.Printf("ws: rejected connection from %s", addr)
		return
	}

	c := &Connection{
		ID:         uuid.New().String(),
		Conn:       conn,
		Fd:         socketFD(conn),
		RemoteAddr: addr,
		Role:       role,
		CreatedAt:  time.Now(),
		LastPing:   time.Now(),
	}

	s.conns.Add(c)
	if err := s.epoll.Add(conn); err != nil {
		log.Printf("ws: epoll add failed for %s: %v", c.ID, err)
		s.conns.Remove(c.ID)
		return
	}

	metrics.AdmissionsTotal.WithLabelValues("admitted").Inc()
	s.broadcastUserCount()

	if s.onConnect != nil {
		s.onConnect(c)
	}

	log.Printf("ws: new connection id=%s addr=%s role=%s (total=%d)", c.ID, addr, role, s.conns.Count())
}

// resolveRole grants the admin role when the request presents the configured
// admin token, via the "token" query parameter or the X-Admin-Token header.
// An empty configured token disables the admin role entirely.
func (s *Server) resolveRole(r *http.Request) string {
	if s.config.AdminToken == "" {
		return RoleUser
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("X-Admin-Token")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.config.AdminToken)) == 1 {
		return RoleAdmin
	}
	return RoleUser
}

// broadcastUserCount tells every admitted connection the current presence
// count. Called on every admission and removal.
func (s *Server) broadcastUserCount() {
	count := s.conns.Count()
	metrics.ConnectionsTotal.Set(float64(count))

	payload, err := protocol.NewServerMessage(protocol.TypeUserCount, protocol.UserCountMsg{Count: count})
	if err != nil {
		log.Printf("ws: failed to build user count: %v", err)
		return
	}
	s.conns.Broadcast(payload)
}

// handleHealth responds with the server's health status as JSON, including
// the current connection count and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// startEventLoop runs the epoll wait loop. For each batch of ready
// connections, it dispatches each to a worker goroutine (bounded by the
// worker pool semaphore) that reads and processes the WebSocket frame.
func (s *Server) startEventLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conns, err := s.epoll.Wait()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				// EINTR is expected during signal handling.
				if isEINTR(err) {
					continue
				}
				log.Printf("ws: epoll wait error: %v", err)
				continue
			}
		}

		for _, conn := range conns {
			conn := conn // capture for goroutine

			// Acquire a worker slot (blocks if pool is full).
			s.workerPool <- struct{}{}

			go func() {
				defer func() { <-s.workerPool }()
				s.handleConn(conn)
			}()
		}
	}
}

// handleConn reads a single WebSocket frame from a ready connection using
// wsutil.NextReader so that control frames (ping, pong) are handled without
// blocking on a data frame that may never arrive. If the read fails the
// connection is removed from epoll and the connection manager.
func (s *Server) handleConn(netConn net.Conn) {
	c := s.conns.GetByConn(netConn)
	if c == nil {
		return
	}

	// Guard against duplicate dispatch from level-triggered epoll.
	if !atomic.CompareAndSwapInt32(&c.processing, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&c.processing, 0)

	if s.config.ReadTimeout > 0 {
		_ = netConn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	header, reader, err := wsutil.NextReader(netConn, ws.StateServerSide)
	if err != nil {
		// A read timeout means no data was available (stale epoll dispatch).
		// The heartbeat handles dead connections.
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return
		}
		s.RemoveConnection(c)
		return
	}

	_ = netConn.SetReadDeadline(time.Time{})

	// Any frame proves the connection is alive.
	c.LastPing = time.Now()

	if header.OpCode.IsControl() {
		if header.OpCode == ws.OpClose {
			s.RemoveConnection(c)
		}
		return
	}

	data := make([]byte, header.Length)
	if header.Length > 0 {
		_, err = io.ReadFull(reader, data)
		if err != nil {
			s.RemoveConnection(c)
			return
		}
	}

	if len(data) == 0 {
		return
	}

	if s.onMessage != nil {
		s.onMessage(c, data)
	}
}

// RemoveConnection removes a connection from both epoll and the connection
// manager, closes the underlying network connection, and re-broadcasts the
// presence count. It is exported so that the heartbeat monitor and the
// moderation layer can evict connections.
func (s *Server) RemoveConnection(c *Connection) {
	_ = s.epoll.Remove(c.Conn)

	// Only proceed if the connection was actually in the manager, so racing
	// removers (read error + heartbeat timeout) don't double-clean.
	if !s.conns.Remove(c.ID) {
		return
	}

	s.broadcastUserCount()

	log.Printf("ws: connection closed id=%s addr=%s (total=%d)", c.ID, c.RemoteAddr, s.conns.Count())
}

// DisconnectByAddr force-closes every admitted connection whose resolved
// address matches addr, writing notice first. It runs synchronously and
// returns the number of connections closed, so callers can order it before
// any follow-up broadcast.
func (s *Server) DisconnectByAddr(addr string, notice []byte) int {
	conns := s.conns.AllByAddr(addr)
	for _, c := range conns {
		if len(notice) > 0 {
			_ = c.WriteMessage(notice)
		}
		s.RemoveConnection(c)
	}
	if len(conns) > 0 {
		log.Printf("ws: disconnected %d connection(s) for addr=%s", len(conns), addr)
	}
	return len(conns)
}

// SendMessage writes a WebSocket text frame to the connection identified by
// connID. It is goroutine-safe thanks to the per-connection write mutex.
func (s *Server) SendMessage(connID string, data []byte) error {
	c := s.conns.Get(connID)
	if c == nil {
		return fmt.Errorf("ws: connection %s not found", connID)
	}

	if s.config.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}

	err := c.WriteMessage(data)

	// Clear the write deadline so it doesn't affect future writes.
	_ = c.Conn.SetWriteDeadline(time.Time{})

	return err
}

// Connections returns the ConnectionManager for external access to
// connection state (e.g., by the heartbeat or the broadcast bus delivery).
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Shutdown performs a graceful shutdown of the server. It stops the HTTP
// listener, signals the event loop to exit, closes all active connections,
// and cleans up the epoll instance.
func (s *Server) Shutdown() error {
	log.Println("ws: shutting down server...")

	s.closeOnce.Do(func() { close(s.done) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("ws: http shutdown error: %v", err)
		}
	}

	for _, c := range s.conns.All() {
		_ = s.epoll.Remove(c.Conn)
		c.Close()
	}

	if s.epoll != nil {
		_ = s.epoll.Close()
	}

	log.Printf("ws: server stopped, all connections closed")
	return nil
}

// isEINTR checks if the error is a syscall interrupted error (EINTR),
// which is expected during signal handling and should be retried.
func isEINTR(err error) bool {
	if err == nil {
		return false
	}
	return err.Error() == "interrupted system call" ||
		err.Error() == "errno 4"
}
