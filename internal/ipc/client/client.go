// Package client implements a synchronous IPC client for talking to a
// running Crux instance over its Unix control socket. It exists so CLI tools
// and an MCP bridge can issue one request at a time without depending on
// the server's internal packages.
package client

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ehrlich-b/crux/internal/ipc"
	"github.com/ehrlich-b/crux/internal/protocol"
)

// readBufSize is the chunk size used when accumulating a response frame.
const readBufSize = 65536

// readTimeout bounds how long a single call waits for a complete response.
const readTimeout = 30 * time.Second

// Client is a thread-safe synchronous JSON-RPC client: Call serializes
// access to the connection and the request id counter so it can be shared
// across goroutines.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	nextID uint64
}

// Connect discovers a running instance's socket (via $CRUX_SOCKET or
// directory scan) and connects to it.
func Connect() (*Client, error) {
	path, err := findSocket()
	if err != nil {
		return nil, err
	}
	return ConnectTo(path)
}

// ConnectTo dials a specific socket path.
func ConnectTo(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", path, err)
	}
	return &Client{conn: conn, nextID: 1}, nil
}

// ConnectWithRetry retries Connect up to maxAttempts times. Between
// attempts it watches the socket's runtime directory for a new entry via
// fsnotify rather than sleeping blindly, falling back to exponential
// backoff (starting at 100ms, capped at 5s) if the watch itself fails or
// times out.
func ConnectWithRetry(maxAttempts int) (*Client, error) {
	delay := 100 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		c, err := Connect()
		if err == nil {
			return c, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		if !waitForNewSocket(delay) {
			time.Sleep(delay)
		}
		delay *= 2
		if delay > 5*time.Second {
			delay = 5 * time.Second
		}
	}
	return nil, lastErr
}

// waitForNewSocket watches the runtime directory for a gui-sock-* file to
// appear, returning true as soon as one does (or the directory already has
// one). It returns false if the watch could not be set up or timed out,
// leaving the caller to fall back to a plain sleep.
func waitForNewSocket(timeout time.Duration) bool {
	dir := ipc.RuntimeDirForDiscovery()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return false
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return false
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return false
	}

	if _, ok := ipc.DiscoverSocket(); ok {
		return true
	}

	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return false
			}
			if ev.Op&(fsnotify.Create) != 0 && strings.HasPrefix(filepath.Base(ev.Name), "gui-sock-") {
				return true
			}
		case <-watcher.Errors:
			return false
		case <-deadline:
			return false
		}
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// Call sends a JSON-RPC request for method with the given params and
// returns the raw JSON result, unmarshalling server errors into an *Error.
func (c *Client) Call(method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := protocol.NewNumberID(c.nextID)
	c.nextID++

	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	framed, err := protocol.Encode(raw)
	if err != nil {
		return nil, fmt.Errorf("frame request: %w", err)
	}

	if _, err := c.conn.Write(framed); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	buf := make([]byte, readBufSize)
	var pending []byte
	for {
		n, err := c.conn.Read(buf)
		if n == 0 && err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		pending = append(pending, buf[:n]...)

		consumed, payload, decodeErr := protocol.Decode(pending)
		if decodeErr != nil {
			return nil, fmt.Errorf("decode response: %w", decodeErr)
		}
		if consumed == 0 {
			if err != nil {
				return nil, fmt.Errorf("read response: %w", err)
			}
			continue
		}

		var resp protocol.Response
		if err := json.Unmarshal(payload, &resp); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		if resp.Error != nil {
			return nil, &Error{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp.Result, nil
	}
}

// Error is a JSON-RPC error returned by the server.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("server error %d: %s", e.Code, e.Message) }

// findSocket resolves the socket to dial: an existing $CRUX_SOCKET path, or
// whatever ipc.DiscoverSocket finds by scanning the runtime directory.
func findSocket() (string, error) {
	if explicit := os.Getenv("CRUX_SOCKET"); explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
	}
	if path, ok := ipc.DiscoverSocket(); ok {
		return path, nil
	}
	return "", fmt.Errorf("no running crux instance found, is crux running?")
}
