package term

import (
	_ "embed"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

//go:embed terminfo/crux.terminfo
var cruxTerminfoSrc string

const cruxTermName = "xterm-crux"

// ensureTerminfoInstalled checks whether xterm-crux is discoverable and, if
// not, compiles the embedded source into $HOME/.terminfo with tic. It never
// fails the caller: a missing tic binary or a failed compile just means the
// pane falls back to xterm-256color.
func ensureTerminfoInstalled() bool {
	if terminfoAvailable(cruxTermName) {
		return true
	}

	tmp, err := os.CreateTemp("", "crux-terminfo-*.src")
	if err != nil {
		slog.Warn("failed to stage terminfo source", "error", err)
		return false
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(cruxTerminfoSrc); err != nil {
		tmp.Close()
		slog.Warn("failed to write terminfo source", "error", err)
		return false
	}
	tmp.Close()

	cmd := exec.Command("tic", "-x", "-e", "xterm-crux,crux,crux-direct", tmp.Name())
	if out, err := cmd.CombinedOutput(); err != nil {
		slog.Warn("tic failed, falling back to xterm-256color", "error", err, "output", string(out))
		return false
	}

	if !terminfoAvailable(cruxTermName) {
		slog.Warn("tic succeeded but xterm-crux still not discoverable")
		return false
	}
	return true
}

// terminfoAvailable searches the standard terminfo lookup chain: $TERMINFO,
// each entry of $TERMINFO_DIRS, $HOME/.terminfo, and the system directory,
// trying both the first-letter and hex-code subdirectory conventions.
func terminfoAvailable(name string) bool {
	if name == "" {
		return false
	}
	letterDir := string(name[0])
	hexDir := hexByte(name[0])

	if dir := os.Getenv("TERMINFO"); dir != "" {
		if existsIn(dir, letterDir, hexDir, name) {
			return true
		}
	}

	if dirs := os.Getenv("TERMINFO_DIRS"); dirs != "" {
		for _, dir := range splitPath(dirs) {
			if dir == "" {
				dir = "/usr/share/terminfo"
			}
			if existsIn(dir, letterDir, hexDir, name) {
				return true
			}
		}
	}

	if home := os.Getenv("HOME"); home != "" {
		if existsIn(filepath.Join(home, ".terminfo"), letterDir, hexDir, name) {
			return true
		}
	}

	return existsIn("/usr/share/terminfo", letterDir, hexDir, name)
}

func existsIn(base, letterDir, hexDir, name string) bool {
	if _, err := os.Stat(filepath.Join(base, letterDir, name)); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(base, hexDir, name)); err == nil {
		return true
	}
	return false
}

func hexByte(b byte) string {
	const hex = "0123456789abcdef"
	return string([]byte{hex[b>>4], hex[b&0x0f]})
}

func splitPath(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
