package ipc

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ehrlich-b/crux/internal/protocol"
	"github.com/ehrlich-b/crux/internal/registry"
)

func startTestServer(t *testing.T) (sockPath string, cmdCh chan Command, cancel context.CancelFunc) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "crux-test.sock")
	cmdCh = NewCommandChannel()
	srv := NewServer(sock, cmdCh, nil, registry.NewEventHub())

	ctx, cancelFn := context.WithCancel(context.Background())
	ready := make(chan struct{})
	go func() {
		go func() {
			for {
				if _, err := os.Stat(sock); err == nil {
					close(ready)
					return
				}
				time.Sleep(5 * time.Millisecond)
			}
		}()
		srv.ListenAndServe(ctx)
	}()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		cancelFn()
		t.Fatal("server did not start in time")
	}

	t.Cleanup(cancelFn)
	return sock, cmdCh, cancelFn
}

func TestServerAcceptsConnectionAndRoutesFrame(t *testing.T) {
	sock, cmdCh, _ := startTestServer(t)

	go func() {
		cmd := <-cmdCh
		cmd.Reply <- Result{Value: protocol.HandshakeResult{ServerName: "crux", ProtocolVersion: protocol.ProtocolVersion}}
	}()

	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	id := protocol.NewNumberID(1)
	req, err := protocol.NewRequest(id, protocol.MethodHandshake, protocol.HandshakeParams{ClientName: "test"})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	raw, _ := json.Marshal(req)
	framed, err := protocol.Encode(raw)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := conn.Write(framed); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_, payload, err := protocol.Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	var resp protocol.Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error response: %+v", resp.Error)
	}
}

func TestServerRejectsUnknownMethod(t *testing.T) {
	sock, _, _ := startTestServer(t)

	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	id := protocol.NewNumberID(1)
	req, _ := protocol.NewRequest(id, "crux:not-a-real-method", nil)
	raw, _ := json.Marshal(req)
	framed, _ := protocol.Encode(raw)
	conn.Write(framed)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_, payload, _ := protocol.Decode(buf[:n])
	var resp protocol.Response
	json.Unmarshal(payload, &resp)
	if resp.Error == nil || resp.Error.Code != protocol.ErrCodeMethodNotFound {
		t.Fatalf("expected MethodNotFound, got %+v", resp.Error)
	}
}

func TestServerRemovesSocketOnShutdown(t *testing.T) {
	sock, _, cancel := startTestServer(t)
	cancel()
	if !waitForSocketRemoved(sock, 2*time.Second) {
		t.Fatal("expected socket file to be removed after shutdown")
	}
}
