package scanner

import (
	"log/slog"

	"golang.org/x/time/rate"
)

// maxAccumulatorSize bounds a single in-flight Kitty graphics payload. A
// payload that grows beyond this without terminating is treated as
// malformed and discarded rather than allowed to consume unbounded memory.
const maxAccumulatorSize = 64 * 1024 * 1024

// malformedWarnRate caps how often a pane logs the oversized-sequence
// warning below: a TUI app stuck resending garbage graphics escapes
// shouldn't be able to flood the log at PTY-read speed.
const malformedWarnRate = rate.Limit(1) // 1/sec, burst 1

type kittyState int

const (
	kittyGround kittyState = iota
	kittyEscSeen
	kittyInPayload
	kittyPayloadEscSeen
)

// KittyGraphicsScanner recognises Kitty terminal graphics protocol APC
// sequences ("ESC _ G ... ESC \") that can span multiple PTY reads. Unlike
// the OSC scanners, it must carry state across calls to Scan since an image
// payload can be many times larger than a single read.
type KittyGraphicsScanner struct {
	state       kittyState
	accumulator []byte
	warnLimiter *rate.Limiter
}

// NewKittyGraphicsScanner returns a scanner ready to process the first PTY
// read of a session.
func NewKittyGraphicsScanner() *KittyGraphicsScanner {
	return &KittyGraphicsScanner{warnLimiter: rate.NewLimiter(malformedWarnRate, 1)}
}

// IsAccumulating reports whether the scanner is mid-payload, i.e. has seen
// an opening "ESC _ G" but not yet the closing "ESC \".
func (s *KittyGraphicsScanner) IsAccumulating() bool {
	return s.state == kittyInPayload || s.state == kittyPayloadEscSeen
}

// Reset discards any in-flight payload and returns the scanner to its
// initial state. Used after a malformed or oversized sequence.
func (s *KittyGraphicsScanner) Reset() {
	s.state = kittyGround
	s.accumulator = nil
}

// Scan consumes buf, updating internal state across calls, and returns one
// Event per complete Kitty graphics sequence found. Bytes belonging to an
// in-flight but not-yet-terminated payload are retained internally and
// folded into the event produced by a later Scan call.
func (s *KittyGraphicsScanner) Scan(buf []byte) []Event {
	var events []Event
	i := 0
	for i < len(buf) {
		b := buf[i]
		switch s.state {
		case kittyGround:
			if b == escByte {
				s.state = kittyEscSeen
			}
			i++

		case kittyEscSeen:
			if b != '_' {
				s.state = kittyGround
				i++
				continue
			}
			if i+1 >= len(buf) {
				// No lookahead available to confirm "G" follows; treat
				// conservatively as not a graphics sequence rather than
				// hold state across the buffer boundary.
				s.state = kittyGround
				i++
				continue
			}
			if buf[i+1] == 'G' {
				s.state = kittyInPayload
				s.accumulator = s.accumulator[:0]
				i += 2
			} else {
				s.state = kittyGround
				i++
			}

		case kittyInPayload:
			if b == escByte {
				s.state = kittyPayloadEscSeen
				i++
				continue
			}
			if len(s.accumulator) >= maxAccumulatorSize {
				if s.warnLimiter.Allow() {
					slog.Warn("kitty graphics accumulator exceeded max size, discarding malformed sequence")
				}
				s.Reset()
				i++
				continue
			}
			s.accumulator = append(s.accumulator, b)
			i++

		case kittyPayloadEscSeen:
			switch b {
			case stBackslash:
				if ev, ok := s.emit(); ok {
					events = append(events, ev)
				}
				s.state = kittyGround
				i++
			case '_':
				s.accumulator = s.accumulator[:0]
				if i+1 < len(buf) && buf[i+1] == 'G' {
					s.state = kittyInPayload
					i += 2
				} else {
					s.state = kittyGround
					i++
				}
			default:
				s.accumulator = append(s.accumulator, escByte, b)
				s.state = kittyInPayload
				i++
			}
		}
	}
	return events
}

// emit produces a Graphics event from the accumulated payload, or reports
// ok=false if the accumulator is empty (an immediately-terminated "ESC _ G
// ESC \" sequence carries no content and is not surfaced as an event).
func (s *KittyGraphicsScanner) emit() (Event, bool) {
	if len(s.accumulator) == 0 {
		return Event{}, false
	}
	payload := s.accumulator
	s.accumulator = nil
	return Event{Kind: KindGraphics, GraphicsProtocol: GraphicsKitty, GraphicsPayload: payload}, true
}

// ScanKittyGraphicsSpan locates one complete, self-contained Kitty graphics
// sequence within buf and returns the byte range it occupies, including the
// "ESC _ G" introducer and "ESC \" terminator. It is a stateless
// convenience for callers that already know a full sequence lies within a
// single buffer (e.g. tests), and does not handle sequences split across
// reads the way KittyGraphicsScanner does.
func ScanKittyGraphicsSpan(buf []byte) (start, end int, ok bool) {
	if len(buf) < 6 {
		return 0, 0, false
	}
	for i := 0; i+2 < len(buf); i++ {
		if buf[i] != escByte || buf[i+1] != '_' || buf[i+2] != 'G' {
			continue
		}
		for j := i + 3; j+1 < len(buf); j++ {
			if buf[j] == escByte && buf[j+1] == stBackslash {
				return i, j + 2, true
			}
		}
		return 0, 0, false
	}
	return 0, 0, false
}
