// Command crux is the control-plane daemon: it owns the pane registry, the
// IPC socket, session persistence, and the optional debug WebSocket bridge.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/crux/internal/appd"
	"github.com/ehrlich-b/crux/internal/ipc"
	"github.com/ehrlich-b/crux/internal/logger"
	"github.com/ehrlich-b/crux/internal/session"
)

func main() {
	var socketFlag string
	var sessionFlag string
	var logLevelFlag string
	var logFileFlag string
	var debugWSFlag string

	root := &cobra.Command{
		Use:   "crux",
		Short: "crux terminal control-plane daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(logLevelFlag, logFileFlag); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			socketPath := socketFlag
			if socketPath == "" {
				socketPath = ipc.SocketPath()
			}
			sessionPath := sessionFlag
			if sessionPath == "" {
				sessionPath = session.DefaultPath()
			}

			d, err := appd.New(appd.Config{
				SocketPath:  socketPath,
				SessionPath: sessionPath,
				DebugWSAddr: debugWSFlag,
				Logger:      logger.Log,
			})
			if err != nil {
				return fmt.Errorf("start daemon: %w", err)
			}
			return d.Run(context.Background())
		},
	}

	root.Flags().StringVar(&socketFlag, "socket", os.Getenv("CRUX_SOCKET"), "control socket path (default: discovered per-pid path)")
	root.Flags().StringVar(&sessionFlag, "session-db", "", "session store path (default: $XDG_STATE_HOME/crux/sessions.db)")
	root.Flags().StringVar(&logLevelFlag, "log-level", envOrDefault("CRUX_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	root.Flags().StringVar(&logFileFlag, "log-file", os.Getenv("CRUX_LOG_FILE"), "additional log file path")
	root.Flags().StringVar(&debugWSFlag, "debug-ws-addr", os.Getenv("CRUX_DEBUG_WS_ADDR"), "loopback addr for the debug WebSocket bridge (empty disables it)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
