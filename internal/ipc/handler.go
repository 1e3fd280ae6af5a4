package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/ehrlich-b/crux/internal/protocol"
	"github.com/ehrlich-b/crux/internal/registry"
)

// clientReadBufSize is the chunk size read from the connection on each pass;
// frames accumulate in pending until protocol.Decode can carve a complete one
// off the front.
const clientReadBufSize = 8192

// clientReadTimeout bounds a single read call; a peer that goes silent
// mid-frame is dropped rather than pinning a goroutine forever.
const clientReadTimeout = 30 * time.Second

// clientSessionTimeout bounds a client connection's total lifetime
// regardless of activity.
const clientSessionTimeout = 5 * time.Minute

// handleClient owns one accepted connection for its whole lifetime: it reads
// frames, dispatches each decoded request onto cmdCh, and writes back a
// framed JSON-RPC response. It returns when the connection closes, errors,
// or the session/read timeout elapses.
func handleClient(ctx context.Context, conn net.Conn, cmdCh chan<- Command, logger *slog.Logger, connID string, events *registry.EventHub) {
	defer conn.Close()
	defer events.Unsubscribe(registry.SubscriberID(connID))

	deadline := time.Now().Add(clientSessionTimeout)
	var pending []byte
	buf := make([]byte, clientReadBufSize)

	for {
		if time.Now().After(deadline) {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		readDeadline := time.Now().Add(clientReadTimeout)
		if readDeadline.After(deadline) {
			readDeadline = deadline
		}
		conn.SetReadDeadline(readDeadline)

		n, err := conn.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				consumed, payload, decodeErr := protocol.Decode(pending)
				if decodeErr != nil {
					logger.Warn("oversized frame, closing connection", "error", decodeErr)
					return
				}
				if consumed == 0 {
					break
				}
				pending = pending[consumed:]
				resp := processFrame(ctx, payload, cmdCh, connID)
				if resp == nil {
					continue // notification: no reply frame
				}
				if writeErr := writeResponse(conn, resp); writeErr != nil {
					logger.Warn("write response failed", "error", writeErr)
					return
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return
			}
			logger.Warn("client read failed", "error", err)
			return
		}
	}
}

// processFrame decodes one JSON-RPC request out of payload, dispatches it,
// and returns the response to send. It returns nil for notifications, which
// never receive a reply frame.
func processFrame(ctx context.Context, payload []byte, cmdCh chan<- Command, connID string) *protocol.Response {
	var req protocol.Request
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		resp := protocol.ErrorResponse(protocol.NewNumberID(0), protocol.ErrCodeParseError, fmt.Sprintf("parse error: %v", err), nil)
		return resp
	}

	id := protocol.NullID
	if req.ID != nil {
		id = *req.ID
	}

	if !protocol.KnownMethods[req.Method] {
		if req.IsNotification() {
			return nil
		}
		return protocol.ErrorResponse(id, protocol.ErrCodeMethodNotFound, "method not found: "+req.Method, nil)
	}

	result, err := dispatchRequest(ctx, cmdCh, req, connID)
	if req.IsNotification() {
		return nil
	}
	if err != nil {
		return errorResponseFor(id, req.Method, err)
	}
	resp, respErr := protocol.SuccessResponse(id, result)
	if respErr != nil {
		return protocol.ErrorResponse(id, protocol.ErrCodeInternalError, "encode result: "+respErr.Error(), nil)
	}
	return resp
}

// dispatchRequest sends req onto cmdCh as a Command and awaits its Result.
// It returns an error if the dispatcher is unreachable (server shutting
// down), the reply channel closes without a result (handler dropped), or
// the dispatched command itself failed.
func dispatchRequest(ctx context.Context, cmdCh chan<- Command, req protocol.Request, connID string) (any, error) {
	reply := make(chan Result, 1)
	cmd := Command{Method: req.Method, Params: req.Params, ConnID: connID, Reply: reply}

	select {
	case cmdCh <- cmd:
	case <-ctx.Done():
		return nil, fmt.Errorf("server shutting down")
	}

	select {
	case res, ok := <-reply:
		if !ok {
			return nil, fmt.Errorf("handler dropped")
		}
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("server shutting down")
	}
}

// errorResponseFor maps a dispatch error to the appropriate JSON-RPC error
// code: domain errors get their dedicated codes, params errors get
// InvalidParams, everything else is an internal error.
func errorResponseFor(id protocol.ID, method string, err error) *protocol.Response {
	var notFound *registry.ErrPaneNotFound
	var paramsErr *ParamsError
	switch {
	case errors.As(err, &notFound):
		return protocol.ErrorResponse(id, protocol.ErrCodePaneNotFound, err.Error(), nil)
	case errors.Is(err, registry.ErrNoActivePane):
		return protocol.ErrorResponse(id, protocol.ErrCodePaneNotFound, err.Error(), nil)
	case errors.As(err, &paramsErr):
		return protocol.ErrorResponse(id, protocol.ErrCodeInvalidParams, err.Error(), nil)
	default:
		return protocol.ErrorResponse(id, protocol.ErrCodeInternalError, err.Error(), nil)
	}
}

func writeResponse(conn net.Conn, resp *protocol.Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	framed, err := protocol.Encode(raw)
	if err != nil {
		return fmt.Errorf("frame response: %w", err)
	}
	_, err = conn.Write(framed)
	return err
}
