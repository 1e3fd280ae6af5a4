// Command cruxctl is a thin synchronous client for a running crux daemon:
// one subcommand for most control-plane methods, plus attach. There is no
// subcommand for crux:window/create, crux:clipboard/*, crux:ime/* or
// crux:events/subscribe.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ehrlich-b/crux/internal/ipc/client"
	"github.com/ehrlich-b/crux/internal/protocol"
)

func main() {
	root := &cobra.Command{
		Use:   "cruxctl",
		Short: "control a running crux daemon",
	}

	root.AddCommand(
		handshakeCmd(),
		splitCmd(),
		sendTextCmd(),
		getTextCmd(),
		getSnapshotCmd(),
		getSelectionCmd(),
		listCmd(),
		resizeCmd(),
		activateCmd(),
		closeCmd(),
		windowListCmd(),
		sessionSaveCmd(),
		sessionLoadCmd(),
		eventsPollCmd(),
		attachCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// connect discovers and dials a running instance, or retries a handful of
// times when wait is true (the handshake subcommand passes true; useful
// right after spawning the daemon).
func connect(wait bool) *client.Client {
	var c *client.Client
	var err error
	if wait {
		c, err = client.ConnectWithRetry(10)
	} else {
		c, err = client.Connect()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "cruxctl: %v\n", err)
		os.Exit(1)
	}
	return c
}

func call[R any](c *client.Client, method string, params any) R {
	raw, err := c.Call(method, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cruxctl: %s: %v\n", method, err)
		os.Exit(1)
	}
	var result R
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			fmt.Fprintf(os.Stderr, "cruxctl: %s: decode result: %v\n", method, err)
			os.Exit(1)
		}
	}
	return result
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		enc.SetIndent("", "  ")
	}
	enc.Encode(v)
}

func parsePaneID(s string) *protocol.PaneID {
	if s == "" {
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cruxctl: invalid pane id %q: %v\n", s, err)
		os.Exit(1)
	}
	id := protocol.PaneID(n)
	return &id
}

func handshakeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "handshake",
		Short: "negotiate capabilities with the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := connect(true)
			defer c.Close()
			result := call[protocol.HandshakeResult](c, protocol.MethodHandshake, protocol.HandshakeParams{
				ClientName:      "cruxctl",
				ClientVersion:   "0.1.0",
				ProtocolVersion: protocol.ProtocolVersion,
			})
			printJSON(result)
			return nil
		},
	}
}

func splitCmd() *cobra.Command {
	var paneFlag, dirFlag, cwdFlag string
	c2 := &cobra.Command{
		Use:   "split [-- command args...]",
		Short: "split a pane and spawn a shell in it",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := connect(false)
			defer c.Close()
			params := protocol.SplitPaneParams{
				TargetPaneID: parsePaneID(paneFlag),
				Direction:    protocol.SplitDirection(dirFlag),
				Command:      args,
			}
			if cwdFlag != "" {
				params.Cwd = &cwdFlag
			}
			result := call[protocol.SplitPaneResult](c, protocol.MethodPaneSplit, params)
			printJSON(result)
			return nil
		},
	}
	c2.Flags().StringVar(&paneFlag, "pane", "", "parent pane id (default: active pane)")
	c2.Flags().StringVar(&dirFlag, "direction", string(protocol.SplitRight), "split direction (right, left, top, bottom)")
	c2.Flags().StringVar(&cwdFlag, "cwd", "", "working directory for the new pane")
	return c2
}

func sendTextCmd() *cobra.Command {
	var paneFlag string
	var bracketed bool
	c2 := &cobra.Command{
		Use:   "send-text <text>",
		Short: "write text to a pane",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := connect(false)
			defer c.Close()
			result := call[protocol.SendTextResult](c, protocol.MethodPaneSendText, protocol.SendTextParams{
				PaneID:         parsePaneID(paneFlag),
				Text:           args[0],
				BracketedPaste: bracketed,
			})
			printJSON(result)
			return nil
		},
	}
	c2.Flags().StringVar(&paneFlag, "pane", "", "target pane id (default: active pane)")
	c2.Flags().BoolVar(&bracketed, "bracketed-paste", false, "wrap the text in bracketed paste escapes")
	return c2
}

func getTextCmd() *cobra.Command {
	var paneFlag string
	c2 := &cobra.Command{
		Use:   "get-text",
		Short: "print a pane's visible lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := connect(false)
			defer c.Close()
			result := call[protocol.GetTextResult](c, protocol.MethodPaneGetText, protocol.GetTextParams{
				PaneID: parsePaneID(paneFlag),
			})
			for _, line := range result.Lines {
				fmt.Println(line)
			}
			return nil
		},
	}
	c2.Flags().StringVar(&paneFlag, "pane", "", "target pane id (default: active pane)")
	return c2
}

func getSnapshotCmd() *cobra.Command {
	var paneFlag string
	c2 := &cobra.Command{
		Use:   "get-snapshot",
		Short: "print a pane's full render state as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := connect(false)
			defer c.Close()
			result := call[protocol.GetSnapshotResult](c, protocol.MethodPaneGetSnapshot, protocol.GetSnapshotParams{
				PaneID: parsePaneID(paneFlag),
			})
			printJSON(result)
			return nil
		},
	}
	c2.Flags().StringVar(&paneFlag, "pane", "", "target pane id (default: active pane)")
	return c2
}

func getSelectionCmd() *cobra.Command {
	var paneFlag string
	c2 := &cobra.Command{
		Use:   "get-selection",
		Short: "print a pane's current selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := connect(false)
			defer c.Close()
			result := call[protocol.GetSelectionResult](c, protocol.MethodPaneGetSelection, protocol.GetSelectionParams{
				PaneID: parsePaneID(paneFlag),
			})
			if !result.HasSelection {
				fmt.Println("(no selection)")
				return nil
			}
			fmt.Println(*result.Text)
			return nil
		},
	}
	c2.Flags().StringVar(&paneFlag, "pane", "", "target pane id (default: active pane)")
	return c2
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list open panes",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := connect(false)
			defer c.Close()
			result := call[protocol.ListPanesResult](c, protocol.MethodPaneList, nil)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PANE\tSIZE\tACTIVE\tTITLE\tCWD")
			for _, p := range result.Panes {
				cwd := ""
				if p.Cwd != nil {
					cwd = *p.Cwd
				}
				fmt.Fprintf(w, "%s\t%dx%d\t%v\t%s\t%s\n", p.PaneID, p.Size.Cols, p.Size.Rows, p.IsActive, p.Title, cwd)
			}
			w.Flush()
			return nil
		},
	}
}

func resizeCmd() *cobra.Command {
	var width, height uint32
	c2 := &cobra.Command{
		Use:   "resize <pane-id>",
		Short: "resize a pane",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := connect(false)
			defer c.Close()
			params := protocol.ResizePaneParams{PaneID: *parsePaneID(args[0])}
			if cmd.Flags().Changed("width") {
				w := float32(width)
				params.Width = &w
			}
			if cmd.Flags().Changed("height") {
				h := float32(height)
				params.Height = &h
			}
			call[json.RawMessage](c, protocol.MethodPaneResize, params)
			return nil
		},
	}
	c2.Flags().Uint32Var(&width, "width", 0, "new column count")
	c2.Flags().Uint32Var(&height, "height", 0, "new row count")
	return c2
}

func activateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <pane-id>",
		Short: "mark a pane as the active pane",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := connect(false)
			defer c.Close()
			call[json.RawMessage](c, protocol.MethodPaneActivate, protocol.ActivatePaneParams{PaneID: *parsePaneID(args[0])})
			return nil
		},
	}
}

func closeCmd() *cobra.Command {
	var force bool
	c2 := &cobra.Command{
		Use:   "close <pane-id>",
		Short: "close a pane",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := connect(false)
			defer c.Close()
			call[json.RawMessage](c, protocol.MethodPaneClose, protocol.ClosePaneParams{PaneID: *parsePaneID(args[0]), Force: force})
			return nil
		},
	}
	c2.Flags().BoolVar(&force, "force", false, "close even if a process is still running")
	return c2
}

func windowListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "window-list",
		Short: "list windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := connect(false)
			defer c.Close()
			result := call[protocol.WindowListResult](c, protocol.MethodWindowList, nil)
			printJSON(result)
			return nil
		},
	}
}

func sessionSaveCmd() *cobra.Command {
	var path string
	c2 := &cobra.Command{
		Use:   "session-save",
		Short: "persist the current pane layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := connect(false)
			defer c.Close()
			params := protocol.SessionSaveParams{}
			if path != "" {
				params.Path = &path
			}
			result := call[protocol.SessionSaveResult](c, protocol.MethodSessionSave, params)
			fmt.Println(result.Path)
			return nil
		},
	}
	c2.Flags().StringVar(&path, "path", "", "session key (default: \"default\")")
	return c2
}

func sessionLoadCmd() *cobra.Command {
	var path string
	c2 := &cobra.Command{
		Use:   "session-load",
		Short: "report the pane count of a saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := connect(false)
			defer c.Close()
			params := protocol.SessionLoadParams{}
			if path != "" {
				params.Path = &path
			}
			result := call[protocol.SessionLoadResult](c, protocol.MethodSessionLoad, params)
			fmt.Println(result.PaneCount)
			return nil
		},
	}
	c2.Flags().StringVar(&path, "path", "", "session key (default: \"default\")")
	return c2
}

func eventsPollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events-poll",
		Short: "drain buffered pane lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := connect(false)
			defer c.Close()
			result := call[protocol.EventsPollResult](c, protocol.MethodEventsPoll, protocol.EventsPollParams{})
			printJSON(result.Events)
			return nil
		},
	}
}

// attachCmd puts the local terminal in raw mode and drives a pane
// interactively: keystrokes are forwarded with send-text, SIGWINCH resizes
// the pane, and the pane's rendered lines are redrawn on a short poll.
func attachCmd() *cobra.Command {
	var paneFlag string
	c2 := &cobra.Command{
		Use:   "attach",
		Short: "attach the local terminal to a pane",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := connect(false)
			defer c.Close()
			paneID := parsePaneID(paneFlag)

			fd := int(os.Stdin.Fd())
			if !term.IsTerminal(fd) {
				return fmt.Errorf("stdin is not a terminal")
			}
			oldState, err := term.MakeRaw(fd)
			if err != nil {
				return fmt.Errorf("enter raw mode: %w", err)
			}
			defer term.Restore(fd, oldState)

			if w, h, err := term.GetSize(fd); err == nil {
				width, height := float32(w), float32(h)
				call[json.RawMessage](c, protocol.MethodPaneResize, protocol.ResizePaneParams{PaneID: *paneID, Width: &width, Height: &height})
			}

			winchCh := make(chan os.Signal, 1)
			signal.Notify(winchCh, syscall.SIGWINCH)
			defer signal.Stop(winchCh)
			go func() {
				for range winchCh {
					if w, h, err := term.GetSize(fd); err == nil {
						width, height := float32(w), float32(h)
						c.Call(protocol.MethodPaneResize, protocol.ResizePaneParams{PaneID: *paneID, Width: &width, Height: &height})
					}
				}
			}()

			done := make(chan struct{})
			go func() {
				defer close(done)
				buf := make([]byte, 4096)
				for {
					n, err := os.Stdin.Read(buf)
					if n > 0 {
						text := string(buf[:n])
						c.Call(protocol.MethodPaneSendText, protocol.SendTextParams{PaneID: paneID, Text: text})
					}
					if err != nil {
						return
					}
				}
			}()

			ticker := time.NewTicker(50 * time.Millisecond)
			defer ticker.Stop()
			var lastSeen int
			for {
				select {
				case <-done:
					return nil
				case <-ticker.C:
					raw, err := c.Call(protocol.MethodPaneGetText, protocol.GetTextParams{PaneID: paneID})
					if err != nil {
						return err
					}
					var result protocol.GetTextResult
					if err := json.Unmarshal(raw, &result); err != nil {
						continue
					}
					if len(result.Lines) == lastSeen {
						continue
					}
					lastSeen = len(result.Lines)
					fmt.Print("\x1b[H\x1b[2J")
					for _, line := range result.Lines {
						fmt.Print(line, "\r\n")
					}
				}
			}
		},
	}
	c2.Flags().StringVar(&paneFlag, "pane", "", "target pane id (default: active pane)")
	return c2
}
