package term

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/ehrlich-b/crux/internal/scanner"
)

const (
	teardownPollInterval = 50 * time.Millisecond
	teardownPollCount    = 10 // 10 * 50ms = 500ms budget before SIGKILL

	wakeupBatchTimeout  = 4 * time.Millisecond
	wakeupBatchMaxBytes = 4096
)

// BuildVersion is stamped into TERM_PROGRAM_VERSION for spawned children. It
// is a var rather than a const so a future release process can set it via
// -ldflags.
var BuildVersion = "dev"

// termEnv builds the terminal identification environment every pane child
// inherits: TERM names xterm-crux when that terminfo entry is installed and
// discoverable, otherwise the safe xterm-256color fallback.
func termEnv() []string {
	term := "xterm-256color"
	if ensureTerminfoInstalled() {
		term = cruxTermName
	} else {
		slog.Warn("xterm-crux terminfo unavailable, falling back to xterm-256color")
	}
	return []string{
		"TERM=" + term,
		"COLORTERM=truecolor",
		"TERM_PROGRAM=Crux",
		"TERM_PROGRAM_VERSION=" + BuildVersion,
	}
}

// mergeEnv overlays overrides onto base by key, letting caller-provided
// entries win over the defaults while preserving any override key that
// base does not set.
func mergeEnv(base, overrides []string) []string {
	idx := make(map[string]int, len(base))
	out := make([]string, len(base))
	copy(out, base)
	for i, kv := range out {
		if k, _, ok := splitEnvKV(kv); ok {
			idx[k] = i
		}
	}
	for _, kv := range overrides {
		k, _, ok := splitEnvKV(kv)
		if !ok {
			out = append(out, kv)
			continue
		}
		if i, exists := idx[k]; exists {
			out[i] = kv
		} else {
			idx[k] = len(out)
			out = append(out, kv)
		}
	}
	return out
}

func splitEnvKV(kv string) (key, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

// SpawnConfig describes a pane's child process.
type SpawnConfig struct {
	Shell string
	Args  []string
	Dir   string
	Env   []string
	Cols  int
	Rows  int
}

// Pane owns one PTY-backed child process: its VT emulator, its scanner
// pipeline (OSC 7/133/52, Kitty, iTerm2), and the event stream produced by
// both. Events is buffered (256 entries); once it is full, further events
// are dropped with a logged warning, so callers must drain it to see them
// all.
type Pane struct {
	vterm *VTerm
	cmd   *exec.Cmd
	ptmx  *os.File

	kitty  *scanner.KittyGraphicsScanner
	events chan Event

	mu       sync.Mutex
	exitCode int
	exited   chan struct{}
}

// Spawn starts the child process under a PTY and begins the reader
// goroutine. The returned Pane's Events channel receives notifications
// until the child process exits, at which point the wait goroutine emits
// EventProcessExit and closes the channel.
func Spawn(cfg SpawnConfig) (*Pane, error) {
	if cfg.Shell == "" {
		return nil, fmt.Errorf("spawn: empty shell path")
	}

	cmd := exec.Command(cfg.Shell, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = mergeEnv(mergeEnv(os.Environ(), termEnv()), cfg.Env)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGHUP)
	}

	size := &pty.Winsize{Cols: uint16(cfg.Cols), Rows: uint16(cfg.Rows)}
	ptmx, err := pty.StartWithSize(cmd, size)
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	p := &Pane{
		vterm:  NewVTerm(cfg.Cols, cfg.Rows),
		cmd:    cmd,
		ptmx:   ptmx,
		kitty:  scanner.NewKittyGraphicsScanner(),
		events: make(chan Event, 256),
		exited: make(chan struct{}),
	}

	go p.readLoop()
	go p.waitLoop()

	return p, nil
}

// Events returns the pane's notification stream.
func (p *Pane) Events() <-chan Event { return p.events }

// Write sends bytes to the child's stdin (PTY master write side).
func (p *Pane) Write(data []byte) (int, error) {
	return p.ptmx.Write(data)
}

// Resize changes the PTY and VT emulator dimensions together.
func (p *Pane) Resize(cols, rows int) error {
	if err := pty.Setsize(p.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	p.vterm.Resize(cols, rows)
	return nil
}

// Content returns the pane's current structured snapshot.
func (p *Pane) Content() Snapshot { return p.vterm.Content() }

// FullSnapshot returns the pane's structured snapshot including scrollback.
func (p *Pane) FullSnapshot() Snapshot { return p.vterm.FullSnapshot() }

// IsRunning reports whether the child process has not yet exited.
func (p *Pane) IsRunning() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// ChildPID returns the child process's PID.
func (p *Pane) ChildPID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// readLoop reads PTY output, feeds the scanners and VT emulator, and emits
// EventWakeup no more than once per wakeupBatchTimeout or wakeupBatchMaxBytes
// accumulated bytes, whichever comes first, so a chatty child doesn't flood
// the owner with a repaint per syscall read.
func (p *Pane) readLoop() {
	buf := make([]byte, 4096)
	pendingBytes := 0
	lastWakeup := time.Now()

	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			p.scanAndForward(data)
			if _, werr := p.vterm.Write(data); werr != nil {
				slog.Warn("vterm write failed", "error", werr)
			}
			pendingBytes += n

			now := time.Now()
			if now.Sub(lastWakeup) >= wakeupBatchTimeout || pendingBytes >= wakeupBatchMaxBytes {
				p.emit(Event{Kind: EventWakeup})
				lastWakeup = now
				pendingBytes = 0
			}
		}
		if err != nil {
			if pendingBytes > 0 {
				p.emit(Event{Kind: EventWakeup})
			}
			return
		}
	}
}

// scanAndForward runs every stream scanner over data and forwards any
// resulting events. Scanner failures never propagate: a malformed sequence
// is dropped so the reader loop keeps making forward progress on the rest
// of the stream. Only the Kitty scanner logs a warning (rate-limited, for
// an oversized payload); the OSC and iTerm2 scanners drop without logging.
func (p *Pane) scanAndForward(data []byte) {
	for _, ev := range scanner.ScanOSC7(data) {
		p.emit(Event{Kind: EventCwdChanged, CwdPath: ev.CwdPath})
	}
	for _, ev := range scanner.ScanOSC133(data) {
		zoneType := SemanticZoneType(ev.Mark)
		p.emit(Event{Kind: EventPromptMark, Mark: zoneType, MarkExitCode: ev.ExitCode})
	}
	for _, ev := range scanner.ScanOSC52(data) {
		p.emit(Event{Kind: EventClipboardSet, ClipboardData: string(ev.ClipboardData)})
	}
	for _, ev := range scanner.ScanIterm2Graphics(data) {
		p.emit(Event{Kind: EventGraphics, GraphicsProtocol: GraphicsIterm2, GraphicsPayload: ev.GraphicsPayload})
	}
	for _, ev := range p.kitty.Scan(data) {
		p.emit(Event{Kind: EventGraphics, GraphicsProtocol: GraphicsKitty, GraphicsPayload: ev.GraphicsPayload})
	}
}

func (p *Pane) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		slog.Warn("pane event channel full, dropping event", "kind", ev.Kind)
	}
}

func (p *Pane) waitLoop() {
	err := p.cmd.Wait()
	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = 1
		}
	}
	p.mu.Lock()
	p.exitCode = code
	p.mu.Unlock()
	close(p.exited)
	p.ptmx.Close()
	p.emit(Event{Kind: EventProcessExit, ExitCode: int32(code)})
	close(p.events)
}

// Shutdown sends SIGHUP, polls every 50ms up to a 500ms budget, then forces
// SIGKILL if the process is still alive, waiting for the wait goroutine to
// observe the exit before returning. It does not wait for the reader
// goroutine to finish.
func (p *Pane) Shutdown(ctx context.Context) error {
	if p.cmd.Process == nil {
		return nil
	}
	p.cmd.Process.Signal(syscall.SIGHUP)

	for i := 0; i < teardownPollCount; i++ {
		select {
		case <-p.exited:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(teardownPollInterval):
		}
	}

	select {
	case <-p.exited:
		return nil
	default:
	}

	p.cmd.Process.Kill()

	select {
	case <-p.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the VT emulator's resources. Callers should Shutdown the
// child process first.
func (p *Pane) Close() error {
	return p.vterm.Close()
}
