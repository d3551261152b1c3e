// Package testserver is a scriptable stand-in for the orchestrator backend:
// it upgrades stream connections, pushes patch batches and control signals
// on demand, and serves cursor-paginated log history. Tests drive it
// directly; it makes no scheduling decisions of its own.
package testserver

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/taskdeck/deckstream/pkg/api"
)

// Server is one fake backend instance.
type Server struct {
	httpSrv  *httptest.Server
	upgrader websocket.Upgrader
	streamID string
	token    string

	mu            sync.Mutex
	conns         map[*websocket.Conn]struct{}
	totalConns    int
	maxConcurrent int
	logs          []api.LogEntry
}

// New starts a fake backend. Callers own Close.
func New() *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		streamID: uuid.NewString(),
		conns:    make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/processes/", s.route)
	s.httpSrv = httptest.NewServer(mux)
	return s
}

// URL returns the backend's http base URL.
func (s *Server) URL() string { return s.httpSrv.URL }

// SetToken makes the backend require the given bearer token.
func (s *Server) SetToken(token string) { s.token = token }

// SetHistory replaces the process's full log history. Entries must be
// ascending by sequence.
func (s *Server) SetHistory(entries []api.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append([]api.LogEntry(nil), entries...)
}

// Close shuts the backend down.
func (s *Server) Close() {
	s.CloseConnections()
	s.httpSrv.Close()
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
		api.WriteErrorResponse(w, api.StatusUnauthorized, "invalid token")
		return
	}

	switch {
	case strings.HasSuffix(r.URL.Path, "/stream"):
		s.handleStream(w, r)
	case strings.HasSuffix(r.URL.Path, "/logs"):
		s.handleLogs(w, r)
	default:
		api.WriteErrorResponse(w, api.StatusNotFound, "no such route: %s", r.URL.Path)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.totalConns++
	if len(s.conns) > s.maxConcurrent {
		s.maxConcurrent = len(s.conns)
	}
	s.mu.Unlock()

	// Drain inbound frames so close handshakes complete.
	go func() {
		defer s.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// PushPatch broadcasts a JsonPatch message with the given operations.
func (s *Server) PushPatch(ops ...map[string]any) {
	s.broadcast(map[string]any{"JsonPatch": ops})
}

// PushFinished broadcasts the terminal completion signal.
func (s *Server) PushFinished() {
	s.broadcast(map[string]any{"finished": true})
}

// PushRefreshRequired broadcasts the missed-state signal.
func (s *Server) PushRefreshRequired(reason string) {
	s.broadcast(map[string]any{"refresh_required": map[string]any{"reason": reason}})
}

// PushRaw broadcasts an arbitrary text frame.
func (s *Server) PushRaw(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
}

// Ping sends a control ping on every connection; for the client this counts
// as liveness traffic.
func (s *Server) Ping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(5*time.Second))
	}
}

// CloseConnections drops every connection without a close handshake; the
// client sees an abnormal closure.
func (s *Server) CloseConnections() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

// CloseClean performs a normal (code 1000) close handshake on every
// connection.
func (s *Server) CloseClean() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(5*time.Second))
		conn.Close()
	}
}

// ConnCount returns the number of currently open connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// TotalConns returns how many connections were ever accepted.
func (s *Server) TotalConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalConns
}

// MaxConcurrent returns the peak number of simultaneously open connections.
func (s *Server) MaxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxConcurrent
}

// WaitConn blocks until at least one connection is open or the timeout
// elapses; it reports whether a connection arrived.
func (s *Server) WaitConn(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.ConnCount() > 0 {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func (s *Server) broadcast(msg map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.WriteJSON(msg)
	}
}

// handleLogs serves cursor-paginated history. Cursors are opaque
// "streamID:index" tokens; a cursor from another stream generation is
// rejected.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 100
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			api.WriteErrorResponse(w, api.StatusInvalidRequest, "invalid limit %q", v)
			return
		}
		limit = n
	}
	backward := query.Get("direction") != "forward"

	s.mu.Lock()
	logs := s.logs
	s.mu.Unlock()
	n := len(logs)

	// The cursor marks the boundary of what the caller already has.
	bound := n
	if !backward {
		bound = 0
	}
	if raw := query.Get("cursor"); raw != "" {
		id, idx, err := parseCursor(raw)
		if err != nil || id != s.streamID || idx > n {
			api.WriteErrorResponse(w, api.StatusInvalidRequest, "invalid cursor %q", raw)
			return
		}
		bound = idx
	}

	var page api.LogPage
	total := int64(n)
	page.TotalCount = &total
	if backward {
		start := bound - limit
		if start < 0 {
			start = 0
		}
		page.Entries = logs[start:bound]
		page.HasMore = start > 0
		if page.HasMore {
			page.NextCursor = fmt.Sprintf("%s:%d", s.streamID, start)
		}
	} else {
		end := bound + limit
		if end > n {
			end = n
		}
		page.Entries = logs[bound:end]
		page.HasMore = end < n
		if page.HasMore {
			page.NextCursor = fmt.Sprintf("%s:%d", s.streamID, end)
		}
	}

	api.WriteSuccessResponse(w, page)
}

func parseCursor(raw string) (string, int, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
		return "", 0, fmt.Errorf("invalid cursor format")
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil || idx < 0 {
		return "", 0, fmt.Errorf("invalid cursor index")
	}
	return parts[0], idx, nil
}
