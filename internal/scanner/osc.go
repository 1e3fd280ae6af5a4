package scanner

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	escByte = 0x1b
	oscIntroducer = ']'
	belByte = 0x07
	stBackslash = '\\'
)

// findStringTerminator scans buf starting at start for an OSC string
// terminator: either BEL (0x07) or the two-byte form ESC \. It returns the
// offset of the terminator's first byte as end, and the index of the byte
// immediately following the terminator as nextI. ok is false if no
// terminator is found before the end of buf.
//
// The OSC 7/133/52 scanners below and the iTerm2 graphics scanner all call
// this helper to find the end of their payloads.
func findStringTerminator(buf []byte, start int) (end, nextI int, ok bool) {
	for i := start; i < len(buf); i++ {
		switch buf[i] {
		case belByte:
			return i, i + 1, true
		case escByte:
			if i+1 < len(buf) && buf[i+1] == stBackslash {
				return i, i + 2, true
			}
		}
	}
	return 0, 0, false
}

// ParseOSC7URI extracts a filesystem path from an OSC 7 "file://host/path"
// URI. The host component is accepted but discarded; only the path after
// the first slash following the file:// prefix is returned, percent-decoded.
// It returns ok=false if the URI does not carry the file:// scheme, has no
// path component, or contains a path that is not valid UTF-8 once decoded.
func ParseOSC7URI(uri string) (path string, ok bool) {
	const prefix = "file://"
	rest, found := strings.CutPrefix(uri, prefix)
	if !found {
		return "", false
	}
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return "", false
	}
	encoded := rest[slash:]
	decoded, err := percentDecode(encoded)
	if err != nil || !utf8.ValidString(decoded) {
		return "", false
	}
	return decoded, true
}

// percentDecode decodes %XX escapes byte-by-byte, passing through any byte
// whose escape is malformed (not strict RFC 3986 decoding — matches the
// permissive behaviour the original cwd-tracking scanner relies on).
func percentDecode(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String(), nil
}

// ScanOSC7 performs a single stateless pass over buf, emitting a
// KindCwdChanged event for every complete, well-formed OSC 7 sequence
// found. Sequences that are truncated at the end of buf (the string
// terminator never arrives within this read) are silently skipped rather
// than buffered: OSC 7 payloads are short enough, and PTY reads frequent
// enough, that a split sequence is vanishingly rare and not worth the
// complexity of cross-read state.
func ScanOSC7(buf []byte) []Event {
	var events []Event
	i := 0
	for i+4 < len(buf) {
		if buf[i] != escByte || buf[i+1] != oscIntroducer {
			i++
			continue
		}
		if buf[i+2] != '7' || buf[i+3] != ';' {
			i += 2
			continue
		}
		payloadStart := i + 4
		end, next, ok := findStringTerminator(buf, payloadStart)
		if !ok {
			i += 2
			continue
		}
		uri := string(buf[payloadStart:end])
		if path, ok := ParseOSC7URI(uri); ok {
			events = append(events, Event{Kind: KindCwdChanged, CwdPath: path})
		}
		i = next
	}
	return events
}

// ScanOSC133 performs a single stateless pass over buf, emitting prompt-mark
// events for OSC 133 shell-integration sequences (A=prompt start, B=input
// start, C=output start, D=command finished, optionally carrying an exit
// code as "D;<code>").
func ScanOSC133(buf []byte) []Event {
	var events []Event
	i := 0
	for i+6 < len(buf) {
		if buf[i] != escByte || buf[i+1] != oscIntroducer {
			i++
			continue
		}
		if buf[i+2] != '1' || buf[i+3] != '3' || buf[i+4] != '3' || buf[i+5] != ';' {
			i += 2
			continue
		}
		payloadStart := i + 6
		end, next, ok := findStringTerminator(buf, payloadStart)
		if !ok {
			i += 2
			continue
		}
		payload := string(buf[payloadStart:end])
		if ev, ok := parseOSC133Payload(payload); ok {
			events = append(events, ev)
		}
		i = next
	}
	return events
}

func parseOSC133Payload(payload string) (Event, bool) {
	if payload == "" {
		return Event{}, false
	}
	switch payload[0] {
	case 'A':
		return Event{Kind: KindPromptMark, Mark: ZonePrompt}, true
	case 'B':
		return Event{Kind: KindPromptMark, Mark: ZoneInput}, true
	case 'C':
		return Event{Kind: KindPromptMark, Mark: ZoneOutput}, true
	case 'D':
		ev := Event{Kind: KindPromptMark, Mark: ZoneOutput}
		if rest, ok := strings.CutPrefix(payload, "D;"); ok {
			if code, err := strconv.ParseInt(rest, 10, 32); err == nil {
				c := int32(code)
				ev.ExitCode = &c
			}
		}
		return ev, true
	default:
		return Event{}, false
	}
}

// ScanOSC52 performs a single stateless pass over buf, emitting a
// KindClipboardSet event for every complete OSC 52 sequence
// ("ESC ] 52 ; <selection> ; <base64-or-?> ST") found. The selection
// parameter is not interpreted here; the caller decides whether to honour
// the write based on pane policy. A "?" read request carries no clipboard
// content to store and emits no event.
//
// This scanner has no counterpart in the original byte-scanning code: the
// reference implementation delegated OSC 52 handling to its VT library's
// native clipboard callback. It is written here using the identical
// introducer/terminator scanning idiom as ScanOSC7 and ScanOSC133 above.
func ScanOSC52(buf []byte) []Event {
	var events []Event
	i := 0
	for i+5 < len(buf) {
		if buf[i] != escByte || buf[i+1] != oscIntroducer {
			i++
			continue
		}
		if buf[i+2] != '5' || buf[i+3] != '2' || buf[i+4] != ';' {
			i += 2
			continue
		}
		payloadStart := i + 5
		end, next, ok := findStringTerminator(buf, payloadStart)
		if !ok {
			i += 2
			continue
		}
		payload := buf[payloadStart:end]
		parts := strings.SplitN(string(payload), ";", 2)
		if len(parts) == 2 && parts[1] != "?" {
			events = append(events, Event{Kind: KindClipboardSet, ClipboardData: []byte(parts[1])})
		}
		i = next
	}
	return events
}
