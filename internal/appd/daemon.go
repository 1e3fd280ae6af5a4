// Package appd wires together the pane registry, the IPC control plane, and
// the optional observability bridge into a single supervised process, and
// owns its signal-driven shutdown sequence.
package appd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ehrlich-b/crux/internal/ipc"
	"github.com/ehrlich-b/crux/internal/observe"
	"github.com/ehrlich-b/crux/internal/registry"
	"github.com/ehrlich-b/crux/internal/session"
)

// shutdownGrace is how long Run waits after signalling cancellation for
// in-flight clients and panes to wind down before returning.
const shutdownGrace = time.Second

// Config holds the daemon's environment-derived settings.
type Config struct {
	SocketPath  string
	SessionPath string
	DebugWSAddr string // empty disables the observability bridge
	Logger      *slog.Logger
}

// Daemon owns the registry's single owner goroutine, the IPC server, and the
// optional debug WebSocket bridge for the lifetime of one process.
type Daemon struct {
	cfg       Config
	Registry  *registry.Registry
	Sessions  *session.Store
	events    *registry.EventHub
	ipcServer *ipc.Server
	observe   *observe.Server
}

// New constructs a Daemon, opening the session store at cfg.SessionPath.
func New(cfg Config) (*Daemon, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	sessions, err := session.Open(cfg.SessionPath)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	reg := registry.New()
	events := registry.NewEventHub()
	cmdCh := ipc.NewCommandChannel()

	d := &Daemon{
		cfg:      cfg,
		Registry: reg,
		Sessions: sessions,
		events:   events,
	}
	d.ipcServer = ipc.NewServer(cfg.SocketPath, cmdCh, cfg.Logger, events)
	if cfg.DebugWSAddr != "" {
		d.observe = observe.NewServer(cfg.DebugWSAddr, reg, events, cfg.Logger)
	}

	go ipc.RunDispatchLoop(cmdCh, reg, sessions, events)
	return d, nil
}

// Run blocks until SIGTERM/SIGINT is received or a component fails,
// returning after a brief grace period for in-flight work to wind down.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.Sessions.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	numGoroutines := 1
	if d.observe != nil {
		numGoroutines = 2
	}
	errCh := make(chan error, numGoroutines)

	go func() {
		d.cfg.Logger.Info("ipc server listening", "socket", d.cfg.SocketPath)
		errCh <- d.ipcServer.ListenAndServe(ctx)
	}()

	if d.observe != nil {
		go func() {
			d.cfg.Logger.Info("observability bridge listening", "addr", d.cfg.DebugWSAddr)
			errCh <- d.observe.ListenAndServe(ctx)
		}()
	}

	d.cfg.Logger.Info("crux daemon started", "socket", d.cfg.SocketPath)

	select {
	case sig := <-sigCh:
		d.cfg.Logger.Info("received signal, shutting down", "signal", sig)
		cancel()
		time.Sleep(shutdownGrace)
	case err := <-errCh:
		cancel()
		if err != nil && err != context.Canceled {
			return fmt.Errorf("daemon error: %w", err)
		}
	}

	return nil
}
