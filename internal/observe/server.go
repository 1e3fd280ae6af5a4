// Package observe implements an opt-in, loopback-only debug endpoint that
// mirrors pane lifecycle events over WebSocket for local dashboards. It is
// additive tooling, never part of the control-plane contract itself, and is
// only started when CRUX_DEBUG_WS_ADDR is set.
package observe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ehrlich-b/crux/internal/protocol"
	"github.com/ehrlich-b/crux/internal/registry"
)

// pollInterval controls how often connected dashboards are sent newly
// buffered pane events.
const pollInterval = 250 * time.Millisecond

// Server serves a single /events WebSocket endpoint on a loopback TCP
// listener, streaming pane lifecycle events as they are buffered.
type Server struct {
	addr   string
	reg    *registry.Registry
	events *registry.EventHub
	logger *slog.Logger
}

// NewServer returns a Server bound to addr (a host:port loopback address,
// e.g. "127.0.0.1:9999").
func NewServer(addr string, reg *registry.Registry, events *registry.EventHub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, reg: reg, events: events, logger: logger}
}

// ListenAndServe binds addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"ok":true,"panes":%d}`, s.reg.Len())
	})

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("observe listen %s: %w", s.addr, err)
	}

	srv := &http.Server{Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"localhost*", "127.0.0.1*"}})
	if err != nil {
		s.logger.Warn("observe: websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	subID := registry.SubscriberID(uuid.NewString())
	s.events.Subscribe(subID, nil)
	defer s.events.Unsubscribe(subID)

	ctx := r.Context()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return
		case <-ticker.C:
			drained := s.events.Drain(subID)
			if len(drained) == 0 {
				continue
			}
			if err := s.writeEvents(ctx, conn, drained); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeEvents(ctx context.Context, conn *websocket.Conn, events []protocol.PaneEvent) error {
	data, err := json.Marshal(events)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
