// Package network exposes the viewer over local HTTP: render state,
// statistics, move and session commands, and a websocket render feed.
package network

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/decred/slog"
	"github.com/pacroyale/viewer/pkg/input"
	"github.com/pacroyale/viewer/pkg/protocol"
	"github.com/pacroyale/viewer/pkg/state"
)

// ViewAPI is the part of the game view the HTTP surface drives
type ViewAPI interface {
	Render() state.RenderState
	GetStats() map[string]interface{}
	Move(dir protocol.Direction) input.Result
	NextSession() int64
	PreviousSession() int64
	SelectSession(id int64) error
	CreateNextSession(ctx context.Context) error
	Join(ctx context.Context) error
}

// HTTPServer serves the local surface. Handlers left nil answer 501.
type HTTPServer struct {
	bindAddr string
	port     int
	viewerID string
	mux      *http.ServeMux
	server   *http.Server
	listener net.Listener
	log      slog.Logger

	Hub *Hub

	StateHandler   http.HandlerFunc
	StatsHandler   http.HandlerFunc
	MoveHandler    http.HandlerFunc
	SessionHandler http.HandlerFunc
}

// NewHTTPServer creates a server for bindAddr:port. Port 0 picks a free
// port on Start.
func NewHTTPServer(viewerID, bindAddr string, port int, log slog.Logger) *HTTPServer {
	if log == nil {
		log = slog.Disabled
	}
	mux := http.NewServeMux()

	s := &HTTPServer{
		bindAddr: bindAddr,
		port:     port,
		viewerID: viewerID,
		mux:      mux,
		log:      log,
		Hub:      NewHub(log),
		server: &http.Server{
			Addr:              net.JoinHostPort(bindAddr, strconv.Itoa(port)),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *HTTPServer) setupRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/state", s.wrap("STATE", "State handler", func() http.HandlerFunc { return s.StateHandler }))
	s.mux.HandleFunc("/stats", s.wrap("STATS", "Stats handler", func() http.HandlerFunc { return s.StatsHandler }))
	s.mux.HandleFunc("/move", s.wrap("MOVE", "Move handler", func() http.HandlerFunc { return s.MoveHandler }))
	s.mux.HandleFunc("/session", s.wrap("SESSION", "Session handler", func() http.HandlerFunc { return s.SessionHandler }))
	s.mux.HandleFunc("/ws", s.Hub.ServeWS)
}

// Bind points every handler at a view
func (s *HTTPServer) Bind(view ViewAPI) {
	s.StateHandler = StateHandler(view)
	s.StatsHandler = StatsHandler(view, s)
	s.MoveHandler = MoveHandler(view)
	s.SessionHandler = SessionHandler(view)
}

// Start listens and serves until Stop. It returns once the listener is
// bound; serve errors are logged.
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.log.Infof("HTTP server started on %s", ln.Addr())

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("HTTP server failed: %v", err)
		}
	}()
	return nil
}

// Stop shuts down the HTTP server
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.log.Infof("Stopping HTTP server on port %d", s.port)
	return s.server.Shutdown(ctx)
}

// Port returns the bound port, known after Start
func (s *HTTPServer) Port() int { return s.port }

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"viewer_id": s.viewerID,
		"status":    "healthy",
		"port":      s.port,
	})
}

// wrap tags the response and dispatches to the handler returned by get,
// or 501 when it is unset
func (s *HTTPServer) wrap(kind, feature string, get func() http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Message-Type", kind)
		w.Header().Set("X-Viewer-ID", s.viewerID)
		if h := get(); h != nil {
			h(w, r)
			return
		}
		writeJSON(w, http.StatusNotImplemented, map[string]interface{}{
			"error":   "Not implemented",
			"feature": feature,
		})
	}
}

// GetStats returns HTTP server statistics
func (s *HTTPServer) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"http_port": s.port,
		"viewer_id": s.viewerID,
		"ws":        s.Hub.GetStats(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
