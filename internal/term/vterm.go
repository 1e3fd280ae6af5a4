package term

import (
	"strings"
	"sync"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/vt"
)

const maxScrollbackLines = 10000

// Snapshot is a self-contained, structured description of a pane's current
// content: rendered grid rows, cursor, and selection state. Unlike a raw
// ANSI replay blob, callers can consume the rows directly without a VT
// parser of their own — the IPC layer hands this straight back as
// crux:pane/get-snapshot's result.
type Snapshot struct {
	Lines         []string
	Rows          int
	Cols          int
	CursorRow     int
	CursorCol     int
	CursorVisible bool
	CursorShape   CursorShape
	DisplayOffset int
	HasSelection  bool
	SelectionText string
}

// VTerm wraps charmbracelet/x/vt with scrollback capture via the ScrollOut
// callback and a structured content snapshot for the IPC layer. All
// methods are thread-safe; callbacks fire from inside Write, where the
// lock is already held.
type VTerm struct {
	emu        *vt.Emulator
	scrollback []string
	sbHead     int
	sbLen      int

	mu           sync.Mutex
	altScreen    bool
	cursorHidden bool
	cursorShape  CursorShape
	cols, rows   int
}

// NewVTerm creates a VTerm with the given dimensions.
func NewVTerm(cols, rows int) *VTerm {
	v := &VTerm{
		emu:        vt.NewEmulator(cols, rows),
		scrollback: make([]string, maxScrollbackLines),
		cols:       cols,
		rows:       rows,
	}
	v.emu.SetCallbacks(vt.Callbacks{
		ScrollOut: func(lines []uv.Line) {
			if v.altScreen {
				return
			}
			for _, line := range lines {
				rendered := line.Render()
				if v.sbLen == len(v.scrollback) {
					v.scrollback[v.sbHead] = ""
				}
				v.scrollback[v.sbHead] = rendered
				v.sbHead = (v.sbHead + 1) % len(v.scrollback)
				if v.sbLen < len(v.scrollback) {
					v.sbLen++
				}
			}
		},
		ScrollbackClear: func() {
			for i := range v.scrollback {
				v.scrollback[i] = ""
			}
			v.sbLen = 0
			v.sbHead = 0
		},
		AltScreen: func(on bool) {
			v.altScreen = on
		},
		CursorVisibility: func(visible bool) {
			v.cursorHidden = !visible
		},
	})
	return v
}

// Write feeds PTY output to the emulator. The scanner pipeline (OSC 7/133/52,
// Kitty, iTerm2) runs over the same bytes before they reach here; Write
// itself only ever sees bytes the VT parser should interpret.
func (v *VTerm) Write(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.emu.Write(p)
}

// Resize changes the terminal dimensions.
func (v *VTerm) Resize(cols, rows int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.emu.Resize(cols, rows)
	v.cols = cols
	v.rows = rows
}

// Size returns the current grid dimensions.
func (v *VTerm) Size() (cols, rows int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cols, v.rows
}

// Content produces a structured snapshot of the current grid and cursor,
// without any scrollback history.
func (v *VTerm) Content() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.contentLocked()
}

func (v *VTerm) contentLocked() Snapshot {
	rendered := v.emu.Render()
	lines := splitGridLines(rendered, v.rows)
	pos := v.emu.CursorPosition()
	return Snapshot{
		Lines:         lines,
		Rows:          v.rows,
		Cols:          v.cols,
		CursorRow:     pos.Y,
		CursorCol:     pos.X,
		CursorVisible: !v.cursorHidden,
		CursorShape:   v.cursorShape,
	}
}

// FullSnapshot produces a structured snapshot that also includes scrollback
// history ahead of the current grid, for clients reconnecting to a pane
// that has already produced output (crux:pane/get-snapshot with history).
func (v *VTerm) FullSnapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	snap := v.contentLocked()
	history := v.scrollbackLinesLocked()
	if len(history) == 0 {
		return snap
	}
	snap.Lines = append(history, snap.Lines...)
	snap.DisplayOffset = len(history)
	return snap
}

// ScrollbackLen returns the number of scrollback lines currently stored.
func (v *VTerm) ScrollbackLen() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sbLen
}

// Close releases the emulator's resources.
func (v *VTerm) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.emu.Close()
}

func (v *VTerm) scrollbackLinesLocked() []string {
	if v.sbLen == 0 {
		return nil
	}
	lines := make([]string, v.sbLen)
	start := (v.sbHead - v.sbLen + len(v.scrollback)) % len(v.scrollback)
	for i := 0; i < v.sbLen; i++ {
		lines[i] = v.scrollback[(start+i)%len(v.scrollback)]
	}
	return lines
}

// splitGridLines splits a rendered multi-row grid into exactly want rows,
// padding with empty rows if the renderer produced fewer (e.g. an emulator
// freshly resized larger than its current content).
func splitGridLines(rendered string, want int) []string {
	rows := strings.Split(rendered, "\r\n")
	if len(rows) == 1 {
		rows = strings.Split(rendered, "\n")
	}
	for len(rows) < want {
		rows = append(rows, "")
	}
	if len(rows) > want {
		rows = rows[:want]
	}
	return rows
}
