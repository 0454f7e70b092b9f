// internal/transport/mcp/http.go
package mcp

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	SessionHeader  = "Mcp-Session-Id"
	maxRequestBody = 1 << 20

	DefaultSessionTTL  = 30 * time.Minute
	DefaultMaxSessions = 1024
)

// HTTPHandler binds a Server to POST requests. A session id is issued on initialize and
// must be echoed on later requests; DELETE ends the session. Sessions idle for longer than
// the TTL expire, and when the table is full the least recently used session is evicted.
type HTTPHandler struct {
	server      *Server
	ttl         time.Duration
	maxSessions int
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]time.Time // last seen
}

type HTTPOption func(*HTTPHandler)

func WithSessionTTL(ttl time.Duration) HTTPOption {
	return func(h *HTTPHandler) {
		if ttl > 0 {
			h.ttl = ttl
		}
	}
}

func WithMaxSessions(n int) HTTPOption {
	return func(h *HTTPHandler) {
		if n > 0 {
			h.maxSessions = n
		}
	}
}

func NewHTTPHandler(server *Server, opts ...HTTPOption) *HTTPHandler {
	h := &HTTPHandler{
		server:      server,
		ttl:         DefaultSessionTTL,
		maxSessions: DefaultMaxSessions,
		now:         time.Now,
		sessions:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if id := r.Header.Get(SessionHeader); id != "" && !h.known(id) {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	resp := h.server.HandleMessage(r.Context(), body)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if isInitialize(body) {
		w.Header().Set(SessionHeader, h.issue())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}

func (h *HTTPHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(SessionHeader)
	if id == "" || !h.known(id) {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// known reports whether id is a live session and refreshes its idle timer.
func (h *HTTPHandler) known(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen, ok := h.sessions[id]
	if !ok {
		return false
	}
	now := h.now()
	if now.Sub(seen) > h.ttl {
		delete(h.sessions, id)
		return false
	}
	h.sessions[id] = now
	return true
}

func (h *HTTPHandler) issue() string {
	id := uuid.New().String()
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	for sid, seen := range h.sessions {
		if now.Sub(seen) > h.ttl {
			delete(h.sessions, sid)
		}
	}
	for len(h.sessions) >= h.maxSessions {
		h.evictOldest()
	}
	h.sessions[id] = now
	return id
}

func (h *HTTPHandler) evictOldest() {
	var oldestID string
	var oldest time.Time
	for sid, seen := range h.sessions {
		if oldestID == "" || seen.Before(oldest) {
			oldestID, oldest = sid, seen
		}
	}
	delete(h.sessions, oldestID)
}

// SessionCount is the number of sessions currently held.
func (h *HTTPHandler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func isInitialize(body []byte) bool {
	var msg struct {
		Method string `json:"method"`
	}
	return json.Unmarshal(body, &msg) == nil && msg.Method == "initialize"
}
