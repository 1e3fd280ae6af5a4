package ipc

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ehrlich-b/crux/internal/protocol"
	"github.com/ehrlich-b/crux/internal/registry"
	"github.com/ehrlich-b/crux/internal/session"
)

func testDispatch(t *testing.T, method string, params any) (any, error) {
	t.Helper()
	reg := registry.New()
	sessions, err := session.Open(":memory:")
	if err != nil {
		t.Fatalf("open session store: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })
	events := registry.NewEventHub()

	var raw json.RawMessage
	if params != nil {
		raw, _ = json.Marshal(params)
	}
	return dispatch(Command{Method: method, Params: raw}, reg, sessions, events)
}

func TestDispatchHandshake(t *testing.T) {
	result, err := testDispatch(t, protocol.MethodHandshake, protocol.HandshakeParams{ClientName: "test-client"})
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	hs, ok := result.(protocol.HandshakeResult)
	if !ok {
		t.Fatalf("result type = %T", result)
	}
	if hs.ProtocolVersion != protocol.ProtocolVersion {
		t.Errorf("protocol version = %q", hs.ProtocolVersion)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	_, err := testDispatch(t, "crux:not-a-method", nil)
	if err == nil {
		t.Fatal("expected error for unknown method")
	}
	var unknown *UnknownMethodError
	if _, ok := err.(*UnknownMethodError); !ok {
		t.Fatalf("error type = %T, want *UnknownMethodError (%v)", err, unknown)
	}
}

func TestDispatchSplitSendGetClose(t *testing.T) {
	reg := registry.New()
	sessions, err := session.Open(":memory:")
	if err != nil {
		t.Fatalf("open session store: %v", err)
	}
	defer sessions.Close()
	events := registry.NewEventHub()

	run := func(method string, params any) (any, error) {
		var raw json.RawMessage
		if params != nil {
			raw, _ = json.Marshal(params)
		}
		return dispatch(Command{Method: method, Params: raw}, reg, sessions, events)
	}

	splitRes, err := run(protocol.MethodPaneSplit, protocol.SplitPaneParams{Command: []string{"/bin/sh", "-c", "cat"}})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	split := splitRes.(protocol.SplitPaneResult)
	if split.PaneID == 0 {
		t.Fatal("expected nonzero pane id")
	}

	if _, err := run(protocol.MethodPaneSendText, protocol.SendTextParams{PaneID: &split.PaneID, Text: "hello\n"}); err != nil {
		t.Fatalf("send text: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var found bool
	for time.Now().Before(deadline) {
		textRes, err := run(protocol.MethodPaneGetText, protocol.GetTextParams{PaneID: &split.PaneID})
		if err != nil {
			t.Fatalf("get text: %v", err)
		}
		text := textRes.(protocol.GetTextResult)
		for _, line := range text.Lines {
			if len(line) > 0 && containsSub(line, "hello") {
				found = true
			}
		}
		if found {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !found {
		t.Fatal("expected echoed text to appear in pane content")
	}

	listRes, err := run(protocol.MethodPaneList, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listRes.(protocol.ListPanesResult).Panes) != 1 {
		t.Fatalf("expected 1 pane listed")
	}

	if _, err := run(protocol.MethodPaneClose, protocol.ClosePaneParams{PaneID: split.PaneID, Force: true}); err != nil {
		t.Fatalf("close: %v", err)
	}

	listRes2, _ := run(protocol.MethodPaneList, nil)
	if len(listRes2.(protocol.ListPanesResult).Panes) != 0 {
		t.Fatal("expected pane removed from registry after close")
	}
}

func TestDispatchClosePaneRefusedWithoutForce(t *testing.T) {
	reg := registry.New()
	sessions, _ := session.Open(":memory:")
	defer sessions.Close()
	events := registry.NewEventHub()

	raw, _ := json.Marshal(protocol.SplitPaneParams{Command: []string{"/bin/sh", "-c", "sleep 5"}})
	splitVal, err := dispatch(Command{Method: protocol.MethodPaneSplit, Params: raw}, reg, sessions, events)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	split := splitVal.(protocol.SplitPaneResult)

	closeRaw, _ := json.Marshal(protocol.ClosePaneParams{PaneID: split.PaneID})
	_, err = dispatch(Command{Method: protocol.MethodPaneClose, Params: closeRaw}, reg, sessions, events)
	if err == nil {
		t.Fatal("expected close to be refused while process is running")
	}

	forceRaw, _ := json.Marshal(protocol.ClosePaneParams{PaneID: split.PaneID, Force: true})
	if _, err := dispatch(Command{Method: protocol.MethodPaneClose, Params: forceRaw}, reg, sessions, events); err != nil {
		t.Fatalf("forced close: %v", err)
	}
}

func TestDispatchResolveWithNoPanesErrors(t *testing.T) {
	_, err := testDispatch(t, protocol.MethodPaneGetText, protocol.GetTextParams{})
	if err == nil {
		t.Fatal("expected error resolving a pane against an empty registry")
	}
}

func TestShellCommandNilUsesDefaultShell(t *testing.T) {
	shell, args, err := shellCommand(nil)
	if err != nil {
		t.Fatalf("shellCommand(nil): %v", err)
	}
	if shell == "" || args != nil {
		t.Fatalf("shellCommand(nil) = (%q, %v), want a default shell with no args", shell, args)
	}
}

func TestShellCommandExplicitEmptyIsFatal(t *testing.T) {
	if _, _, err := shellCommand([]string{}); err == nil {
		t.Fatal("expected an explicitly empty command vector to error")
	}
}

func TestShellCommandSplitsExecutableAndArgs(t *testing.T) {
	shell, args, err := shellCommand([]string{"/bin/sh", "-c", "echo hi"})
	if err != nil {
		t.Fatalf("shellCommand: %v", err)
	}
	if shell != "/bin/sh" {
		t.Fatalf("shell = %q, want /bin/sh", shell)
	}
	if len(args) != 2 || args[0] != "-c" || args[1] != "echo hi" {
		t.Fatalf("args = %v", args)
	}
}

func TestDispatchSplitWithExplicitEmptyCommandErrors(t *testing.T) {
	raw := json.RawMessage(`{"command": []}`)
	reg := registry.New()
	sessions, err := session.Open(":memory:")
	if err != nil {
		t.Fatalf("open session store: %v", err)
	}
	defer sessions.Close()
	events := registry.NewEventHub()

	if _, err := dispatch(Command{Method: protocol.MethodPaneSplit, Params: raw}, reg, sessions, events); err == nil {
		t.Fatal("expected split with an explicitly empty command vector to fail")
	}
}

func containsSub(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
