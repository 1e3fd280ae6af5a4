// Package scanner implements the stateless and stateful byte-stream
// recognisers that pre-filter PTY output for OSC 7 (cwd), OSC 133 (prompt
// marking), OSC 52 (clipboard), Kitty APC graphics, and iTerm2 OSC 1337
// graphics before the remaining bytes reach the VT parser.
package scanner

// Kind distinguishes the side-channel events a scanner can emit.
type Kind int

const (
	KindCwdChanged Kind = iota
	KindPromptMark
	KindClipboardSet
	KindGraphics
)

// ZoneType is the semantic zone a prompt-mark event opens or closes.
type ZoneType int

const (
	ZonePrompt ZoneType = iota
	ZoneInput
	ZoneOutput
)

// GraphicsProtocol identifies which inline-image protocol produced a
// Graphics event's payload.
type GraphicsProtocol int

const (
	GraphicsKitty GraphicsProtocol = iota
	GraphicsIterm2
)

// Event is a side-channel notification produced by scanning PTY bytes,
// ahead of (and in addition to) feeding those bytes to the VT parser.
type Event struct {
	Kind Kind

	// KindCwdChanged
	CwdPath string

	// KindPromptMark
	Mark     ZoneType
	ExitCode *int32

	// KindClipboardSet
	ClipboardData []byte

	// KindGraphics
	GraphicsProtocol GraphicsProtocol
	GraphicsPayload  []byte
}
