package ipc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/crux/internal/registry"
)

// maxConnections bounds concurrent client connections; a peer beyond this
// limit is rejected immediately rather than queued.
const maxConnections = 64

// Server accepts client connections on a Unix domain socket, verifies peer
// credentials, and hands each connection to handleClient under a bounded
// concurrency limit.
type Server struct {
	socketPath string
	cmdCh      chan<- Command
	logger     *slog.Logger
	sem        *semaphore.Weighted
	events     *registry.EventHub
}

// NewServer returns a server that will listen at socketPath and forward
// decoded requests onto cmdCh. events is used to unsubscribe a connection's
// event interest set when it disconnects.
func NewServer(socketPath string, cmdCh chan<- Command, logger *slog.Logger, events *registry.EventHub) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		cmdCh:      cmdCh,
		logger:     logger,
		sem:        semaphore.NewWeighted(maxConnections),
		events:     events,
	}
}

// ListenAndServe binds the socket and accepts connections until ctx is
// cancelled. On cancellation it stops accepting, lets in-flight clients
// finish, and removes the socket file.
func (s *Server) ListenAndServe(ctx context.Context) error {
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen unix %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	defer os.Remove(s.socketPath)

	s.logger.Info("ipc server listening", "socket", s.socketPath)

	acceptDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	go func() {
		defer close(acceptDone)
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
				s.logger.Error("accept error", "error", err)
				continue
			}
			s.acceptConn(ctx, conn)
		}
	}()

	<-ctx.Done()
	<-acceptDone
	return nil
}

// acceptConn verifies the peer's UID, acquires a connection permit, and
// spawns the per-client handler. Rejections close the connection
// immediately without consuming a permit.
func (s *Server) acceptConn(ctx context.Context, conn net.Conn) {
	uconn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return
	}
	if !s.peerUIDMatches(uconn) {
		conn.Close()
		return
	}
	if !s.sem.TryAcquire(1) {
		s.logger.Warn("connection limit reached, rejecting client")
		conn.Close()
		return
	}

	connID := uuid.NewString()
	connLogger := s.logger.With("conn_id", connID)
	go func() {
		defer s.sem.Release(1)
		clientCtx, cancel := context.WithTimeout(ctx, clientSessionTimeout)
		defer cancel()
		connLogger.Info("client connected")
		handleClient(clientCtx, conn, s.cmdCh, connLogger, connID, s.events)
		connLogger.Info("client disconnected")
	}()
}

// peerUIDMatches verifies the connecting process shares our UID via
// SO_PEERCRED, rejecting any mismatch.
func (s *Server) peerUIDMatches(conn *net.UnixConn) bool {
	raw, err := conn.SyscallConn()
	if err != nil {
		s.logger.Warn("failed to inspect client connection", "error", err)
		return false
	}

	var cred *unix.Ucred
	var credErr error
	ctlErr := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctlErr != nil || credErr != nil {
		s.logger.Warn("failed to get peer credentials", "error", firstNonNil(ctlErr, credErr))
		return false
	}

	myUID := uint32(os.Getuid())
	if cred.Uid != myUID {
		s.logger.Warn("rejected connection from mismatched uid", "peer_uid", cred.Uid)
		return false
	}
	return true
}

func firstNonNil(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// waitForSocketRemoved is used by tests to avoid racing the listener's
// cleanup goroutine.
func waitForSocketRemoved(path string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err != nil {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}
