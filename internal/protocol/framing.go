// Package protocol implements the wire format shared by the Crux IPC server
// and its clients: a 4-byte length-prefixed frame carrying a JSON-RPC 2.0
// message.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxFrameSize is the largest payload this protocol will ever encode or
// accept. It exists to bound memory use against a malicious or buggy peer.
const MaxFrameSize = 16 * 1024 * 1024

const frameHeaderSize = 4

// ErrMessageTooLarge is returned by Encode when the payload exceeds
// MaxFrameSize, and by Decode when a frame header declares a length beyond
// MaxFrameSize.
var ErrMessageTooLarge = errors.New("protocol: message exceeds max frame size")

// Encode prepends a 4-byte big-endian length prefix to msg.
func Encode(msg []byte) ([]byte, error) {
	if len(msg) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(msg))
	}
	out := make([]byte, frameHeaderSize+len(msg))
	binary.BigEndian.PutUint32(out, uint32(len(msg)))
	copy(out[frameHeaderSize:], msg)
	return out, nil
}

// Decode inspects buf for one complete length-prefixed frame.
//
// It returns (0, nil, nil) when buf does not yet contain a full frame ("need
// more data" — the header itself may be absent or the declared payload may
// not have fully arrived). It returns (consumed, payload, nil) when a frame
// is complete, where consumed is the number of bytes (header + payload) the
// caller should drop from the front of its buffer. It returns a non-nil
// error only when the header itself declares an oversized frame; in that
// case the caller should close the connection rather than keep waiting.
//
// Decode never blocks and never copies data before a full frame is
// available; the returned payload is a fresh copy safe to retain after the
// caller reuses or discards buf.
func Decode(buf []byte) (consumed int, payload []byte, err error) {
	if len(buf) < frameHeaderSize {
		return 0, nil, nil
	}
	length := binary.BigEndian.Uint32(buf[:frameHeaderSize])
	if length > MaxFrameSize {
		return 0, nil, fmt.Errorf("%w: header declares %d bytes", ErrMessageTooLarge, length)
	}
	total := frameHeaderSize + int(length)
	if len(buf) < total {
		return 0, nil, nil
	}
	out := make([]byte, length)
	copy(out, buf[frameHeaderSize:total])
	return total, out, nil
}
