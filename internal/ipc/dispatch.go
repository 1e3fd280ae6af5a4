package ipc

import (
	"fmt"
	"os"

	"github.com/ehrlich-b/crux/internal/protocol"
	"github.com/ehrlich-b/crux/internal/registry"
	"github.com/ehrlich-b/crux/internal/session"
	"github.com/ehrlich-b/crux/internal/term"
)

// RunDispatchLoop is the registry's owner goroutine: it serialises every
// command arriving on cmdCh, executes it against reg, and sends back exactly
// one Result. This is the only goroutine permitted to mutate reg.
func RunDispatchLoop(cmdCh <-chan Command, reg *registry.Registry, sessions *session.Store, events *registry.EventHub) {
	for cmd := range cmdCh {
		value, err := dispatch(cmd, reg, sessions, events)
		cmd.Reply <- Result{Value: value, Err: err}
	}
}

func dispatch(cmd Command, reg *registry.Registry, sessions *session.Store, events *registry.EventHub) (any, error) {
	switch cmd.Method {
	case protocol.MethodHandshake:
		return handleHandshake(cmd)
	case protocol.MethodPaneSplit:
		return handleSplitPane(cmd, reg, events)
	case protocol.MethodPaneSendText:
		return handleSendText(cmd, reg)
	case protocol.MethodPaneGetText:
		return handleGetText(cmd, reg)
	case protocol.MethodPaneGetSnapshot:
		return handleGetSnapshot(cmd, reg)
	case protocol.MethodPaneGetSelection:
		return handleGetSelection(cmd, reg)
	case protocol.MethodPaneList:
		return handleListPanes(reg)
	case protocol.MethodPaneResize:
		return nil, handleResizePane(cmd, reg)
	case protocol.MethodPaneActivate:
		return nil, handleActivatePane(cmd, reg)
	case protocol.MethodPaneClose:
		return nil, handleClosePane(cmd, reg, events)
	case protocol.MethodWindowCreate:
		return handleWindowCreate()
	case protocol.MethodWindowList:
		return handleWindowList(reg)
	case protocol.MethodSessionSave:
		return handleSessionSave(cmd, reg, sessions)
	case protocol.MethodSessionLoad:
		return handleSessionLoad(cmd, sessions)
	case protocol.MethodClipboardRead:
		return nil, fmt.Errorf("clipboard not supported on this platform")
	case protocol.MethodClipboardWrite:
		return nil, fmt.Errorf("clipboard not supported on this platform")
	case protocol.MethodImeGetState:
		return protocol.ImeStateResult{Composing: false}, nil
	case protocol.MethodImeSetInputSource:
		return nil, fmt.Errorf("IME switching not supported on this platform")
	case protocol.MethodEventsSubscribe:
		return nil, handleEventsSubscribe(cmd, events)
	case protocol.MethodEventsPoll:
		return protocol.EventsPollResult{Events: events.Drain(registry.SubscriberID(cmd.ConnID))}, nil
	default:
		return nil, &UnknownMethodError{Method: cmd.Method}
	}
}

// UnknownMethodError is returned for a method outside protocol.KnownMethods.
type UnknownMethodError struct{ Method string }

func (e *UnknownMethodError) Error() string { return "unknown method: " + e.Method }

func handleHandshake(cmd Command) (protocol.HandshakeResult, error) {
	if _, err := decodeParams[protocol.HandshakeParams](cmd.Params); err != nil {
		return protocol.HandshakeResult{}, &ParamsError{Method: cmd.Method, Cause: err}
	}
	return protocol.HandshakeResult{
		ServerName:            "crux",
		ServerVersion:         "0.1.0",
		ProtocolVersion:       protocol.ProtocolVersion,
		SupportedCapabilities: []string{"pane"},
	}, nil
}

func handleSplitPane(cmd Command, reg *registry.Registry, events *registry.EventHub) (protocol.SplitPaneResult, error) {
	params, err := decodeParams[protocol.SplitPaneParams](cmd.Params)
	if err != nil {
		return protocol.SplitPaneResult{}, &ParamsError{Method: cmd.Method, Cause: err}
	}

	parentID := params.TargetPaneID
	if parentID == nil {
		if active, ok := reg.ActivePaneID(); ok {
			parentID = &active
		}
	}

	cols, rows := 80, 24
	if parentID != nil {
		if parent, ok := reg.Get(*parentID); ok {
			cols, rows = parent.Pane.Content().Cols, parent.Pane.Content().Rows
		}
	}

	cwd := ""
	if params.Cwd != nil {
		cwd = *params.Cwd
	}
	shell, args, err := shellCommand(params.Command)
	if err != nil {
		return protocol.SplitPaneResult{}, fmt.Errorf("spawn pane: %w", err)
	}
	env := envSlice(params.Env)

	pane, err := term.Spawn(term.SpawnConfig{Shell: shell, Args: args, Dir: cwd, Env: env, Cols: cols, Rows: rows})
	if err != nil {
		return protocol.SplitPaneResult{}, fmt.Errorf("spawn pane: %w", err)
	}

	id := reg.AllocatePaneID()
	reg.Insert(&registry.Entry{PaneID: id, ParentID: parentID, Pane: pane})
	events.Emit(protocol.PaneEvent{Type: protocol.PaneEventCreated, PaneID: id})

	return protocol.SplitPaneResult{
		PaneID:   id,
		WindowID: protocol.WindowID(0),
		TabID:    protocol.TabID(0),
		Size:     protocol.PaneSize{Rows: uint32(rows), Cols: uint32(cols)},
	}, nil
}

func handleSendText(cmd Command, reg *registry.Registry) (protocol.SendTextResult, error) {
	params, err := decodeParams[protocol.SendTextParams](cmd.Params)
	if err != nil {
		return protocol.SendTextResult{}, &ParamsError{Method: cmd.Method, Cause: err}
	}
	entry, err := reg.Resolve(params.PaneID)
	if err != nil {
		return protocol.SendTextResult{}, err
	}
	payload := []byte(params.Text)
	if params.BracketedPaste {
		payload = append([]byte("\x1b[200~"), append(payload, []byte("\x1b[201~")...)...)
	}
	n, err := entry.Pane.Write(payload)
	if err != nil {
		return protocol.SendTextResult{}, fmt.Errorf("write to pane: %w", err)
	}
	return protocol.SendTextResult{BytesWritten: n}, nil
}

func handleGetText(cmd Command, reg *registry.Registry) (protocol.GetTextResult, error) {
	params, err := decodeParams[protocol.GetTextParams](cmd.Params)
	if err != nil {
		return protocol.GetTextResult{}, &ParamsError{Method: cmd.Method, Cause: err}
	}
	entry, err := reg.Resolve(params.PaneID)
	if err != nil {
		return protocol.GetTextResult{}, err
	}
	snap := entry.Pane.Content()
	lines := snap.Lines
	first := int32(0)
	if params.StartLine != nil || params.EndLine != nil {
		start, end := int32(0), int32(len(lines))
		if params.StartLine != nil {
			start = *params.StartLine
		}
		if params.EndLine != nil {
			end = *params.EndLine
		}
		if start < 0 {
			start = 0
		}
		if end > int32(len(lines)) {
			end = int32(len(lines))
		}
		if start > end {
			start = end
		}
		lines = lines[start:end]
		first = start
	}
	return protocol.GetTextResult{
		Lines:     lines,
		FirstLine: first,
		CursorRow: uint32(snap.CursorRow),
		CursorCol: uint32(snap.CursorCol),
	}, nil
}

func handleGetSnapshot(cmd Command, reg *registry.Registry) (protocol.GetSnapshotResult, error) {
	params, err := decodeParams[protocol.GetSnapshotParams](cmd.Params)
	if err != nil {
		return protocol.GetSnapshotResult{}, &ParamsError{Method: cmd.Method, Cause: err}
	}
	entry, err := reg.Resolve(params.PaneID)
	if err != nil {
		return protocol.GetSnapshotResult{}, err
	}
	snap := entry.Pane.FullSnapshot()
	var title, cwd *string
	if entry.Title != "" {
		t := entry.Title
		title = &t
	}
	cwd = entry.Cwd
	return protocol.GetSnapshotResult{
		Lines:         snap.Lines,
		Rows:          uint32(snap.Rows),
		Cols:          uint32(snap.Cols),
		CursorRow:     int32(snap.CursorRow),
		CursorCol:     uint32(snap.CursorCol),
		CursorShape:   cursorShapeName(snap.CursorShape),
		DisplayOffset: uint32(snap.DisplayOffset),
		HasSelection:  snap.HasSelection,
		Title:         title,
		Cwd:           cwd,
	}, nil
}

func handleGetSelection(cmd Command, reg *registry.Registry) (protocol.GetSelectionResult, error) {
	params, err := decodeParams[protocol.GetSelectionParams](cmd.Params)
	if err != nil {
		return protocol.GetSelectionResult{}, &ParamsError{Method: cmd.Method, Cause: err}
	}
	entry, err := reg.Resolve(params.PaneID)
	if err != nil {
		return protocol.GetSelectionResult{}, err
	}
	snap := entry.Pane.Content()
	if !snap.HasSelection {
		return protocol.GetSelectionResult{HasSelection: false}, nil
	}
	text := snap.SelectionText
	return protocol.GetSelectionResult{Text: &text, HasSelection: true}, nil
}

func handleListPanes(reg *registry.Registry) (protocol.ListPanesResult, error) {
	entries := reg.List()
	panes := make([]protocol.PaneInfo, 0, len(entries))
	activeID, hasActive := reg.ActivePaneID()
	for _, e := range entries {
		snap := e.Pane.Content()
		pid := uint32(e.Pane.ChildPID())
		panes = append(panes, protocol.PaneInfo{
			PaneID:   e.PaneID,
			WindowID: protocol.WindowID(0),
			TabID:    protocol.TabID(0),
			Size:     protocol.PaneSize{Rows: uint32(snap.Rows), Cols: uint32(snap.Cols)},
			Title:    e.Title,
			Cwd:      e.Cwd,
			IsActive: hasActive && activeID == e.PaneID,
			IsZoomed: e.IsZoomed,
			CursorX:  uint32(snap.CursorCol),
			CursorY:  uint32(snap.CursorRow),
			PID:      &pid,
		})
	}
	return protocol.ListPanesResult{Panes: panes}, nil
}

func handleResizePane(cmd Command, reg *registry.Registry) error {
	params, err := decodeParams[protocol.ResizePaneParams](cmd.Params)
	if err != nil {
		return &ParamsError{Method: cmd.Method, Cause: err}
	}
	if params.Width == nil && params.Height == nil {
		return &ParamsError{Method: cmd.Method, Cause: fmt.Errorf("at least one of width or height must be specified")}
	}
	entry, ok := reg.Get(params.PaneID)
	if !ok {
		return &registry.ErrPaneNotFound{ID: params.PaneID}
	}
	cols, rows := entry.Pane.Content().Cols, entry.Pane.Content().Rows
	if params.Width != nil {
		cols = int(*params.Width)
	}
	if params.Height != nil {
		rows = int(*params.Height)
	}
	return entry.Pane.Resize(cols, rows)
}

func handleActivatePane(cmd Command, reg *registry.Registry) error {
	params, err := decodeParams[protocol.ActivatePaneParams](cmd.Params)
	if err != nil {
		return &ParamsError{Method: cmd.Method, Cause: err}
	}
	return reg.Activate(params.PaneID)
}

func handleClosePane(cmd Command, reg *registry.Registry, events *registry.EventHub) error {
	params, err := decodeParams[protocol.ClosePaneParams](cmd.Params)
	if err != nil {
		return &ParamsError{Method: cmd.Method, Cause: err}
	}
	entry, ok := reg.Get(params.PaneID)
	if !ok {
		return &registry.ErrPaneNotFound{ID: params.PaneID}
	}
	if !params.Force && entry.Pane.IsRunning() {
		return fmt.Errorf("pane %s has a running process, use force: true to close", params.PaneID)
	}
	reg.Remove(params.PaneID)
	entry.Pane.Close()
	events.Emit(protocol.PaneEvent{Type: protocol.PaneEventClosed, PaneID: params.PaneID})
	return nil
}

// handleEventsSubscribe registers the calling connection's interest set in
// the event hub, replacing any filter it previously registered. An empty or
// absent Events list subscribes to every PaneEventType.
func handleEventsSubscribe(cmd Command, events *registry.EventHub) error {
	params, err := decodeParams[protocol.EventsSubscribeParams](cmd.Params)
	if err != nil {
		return &ParamsError{Method: cmd.Method, Cause: err}
	}
	events.Subscribe(registry.SubscriberID(cmd.ConnID), params.Events)
	return nil
}

func handleWindowCreate() (protocol.WindowCreateResult, error) {
	return protocol.WindowCreateResult{WindowID: protocol.WindowID(0)}, nil
}

func handleWindowList(reg *registry.Registry) (protocol.WindowListResult, error) {
	return protocol.WindowListResult{Windows: []protocol.WindowInfo{{
		WindowID:  protocol.WindowID(0),
		Title:     "Crux",
		PaneCount: uint32(reg.Len()),
		IsFocused: true,
	}}}, nil
}

func handleSessionSave(cmd Command, reg *registry.Registry, sessions *session.Store) (protocol.SessionSaveResult, error) {
	params, err := decodeParams[protocol.SessionSaveParams](cmd.Params)
	if err != nil {
		return protocol.SessionSaveResult{}, &ParamsError{Method: cmd.Method, Cause: err}
	}
	path, err := sessions.Save(params.Path, session.SnapshotRegistry(reg))
	if err != nil {
		return protocol.SessionSaveResult{}, fmt.Errorf("save session: %w", err)
	}
	return protocol.SessionSaveResult{Path: path}, nil
}

func handleSessionLoad(cmd Command, sessions *session.Store) (protocol.SessionLoadResult, error) {
	params, err := decodeParams[protocol.SessionLoadParams](cmd.Params)
	if err != nil {
		return protocol.SessionLoadResult{}, &ParamsError{Method: cmd.Method, Cause: err}
	}
	snap, err := sessions.Load(params.Path)
	if err != nil {
		return protocol.SessionLoadResult{}, fmt.Errorf("load session: %w", err)
	}
	return protocol.SessionLoadResult{PaneCount: uint32(len(snap.Panes))}, nil
}

func cursorShapeName(shape term.CursorShape) string {
	switch shape {
	case term.CursorUnderline:
		return "underline"
	case term.CursorBar:
		return "bar"
	default:
		return "block"
	}
}

// shellCommand distinguishes "no command vector given" (nil slice, falls
// back to the configured shell) from "command vector explicitly empty"
// (non-nil zero-length slice, a fatal spawn error) — json.Unmarshal leaves
// an absent "command" key as nil but an empty "command": [] as a non-nil
// empty slice, so the distinction survives decoding.
func shellCommand(command []string) (string, []string, error) {
	if command == nil {
		return defaultShell(), nil, nil
	}
	if len(command) == 0 {
		return "", nil, fmt.Errorf("command vector must not be empty")
	}
	return command[0], command[1:], nil
}

// defaultShell returns the pane's fallback command when no command vector is
// given: the user's configured login shell, or /bin/sh if SHELL is unset.
func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
