package ipc

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// SocketEnv is a snapshot of the environment variables socket resolution
// depends on, captured once at the call boundary so the resolution
// functions below are pure and testable without mutating the real
// environment.
type SocketEnv struct {
	CruxSocket    string
	HasCruxSocket bool

	XDGRuntimeDir    string
	HasXDGRuntimeDir bool
}

// SocketEnvFromEnv captures the current process environment into a
// SocketEnv snapshot.
func SocketEnvFromEnv() SocketEnv {
	cruxSocket, hasCruxSocket := os.LookupEnv("CRUX_SOCKET")
	xdgRuntimeDir, hasXDGRuntimeDir := os.LookupEnv("XDG_RUNTIME_DIR")
	return SocketEnv{
		CruxSocket:       cruxSocket,
		HasCruxSocket:    hasCruxSocket && cruxSocket != "",
		XDGRuntimeDir:    xdgRuntimeDir,
		HasXDGRuntimeDir: hasXDGRuntimeDir && xdgRuntimeDir != "",
	}
}

// SocketPath resolves this instance's control socket path and ensures its
// parent directory exists with restricted (0700) permissions.
//
// Priority: $CRUX_SOCKET, else $XDG_RUNTIME_DIR/crux/gui-sock-$PID, else
// /tmp/crux-$UID/gui-sock-$PID.
func SocketPath() string {
	env := SocketEnvFromEnv()
	path := resolveSocketPath(env, os.Getpid(), os.Getuid())

	if !env.HasCruxSocket {
		dir := resolveRuntimeDir(env, os.Getuid())
		if err := os.MkdirAll(dir, 0o700); err != nil {
			fmt.Fprintf(os.Stderr, "crux: failed to create socket directory %s: %v\n", dir, err)
		} else {
			os.Chmod(dir, 0o700)
		}
	}
	return path
}

// resolveSocketPath is pure: given an environment snapshot, pid, and uid, it
// computes the socket path with no filesystem side effects.
func resolveSocketPath(env SocketEnv, pid, uid int) string {
	if env.HasCruxSocket {
		return env.CruxSocket
	}
	dir := resolveRuntimeDir(env, uid)
	return filepath.Join(dir, fmt.Sprintf("gui-sock-%d", pid))
}

// resolveRuntimeDir is pure: $XDG_RUNTIME_DIR/crux, or /tmp/crux-$UID when
// XDG_RUNTIME_DIR is unset.
func resolveRuntimeDir(env SocketEnv, uid int) string {
	if env.HasXDGRuntimeDir {
		return filepath.Join(env.XDGRuntimeDir, "crux")
	}
	return fmt.Sprintf("/tmp/crux-%d", uid)
}

// RuntimeDirForDiscovery exposes the resolved runtime directory to the
// client package, which needs it to watch for a new socket file rather
// than poll.
func RuntimeDirForDiscovery() string {
	return resolveRuntimeDir(SocketEnvFromEnv(), os.Getuid())
}

// DiscoverSocket locates a running server's socket for CLI clients: it
// honours $CRUX_SOCKET when that path exists, otherwise it scans the
// runtime directory for the most recently modified gui-sock-* entry.
func DiscoverSocket() (string, bool) {
	return discoverSocketWith(SocketEnvFromEnv(), os.Getuid())
}

// discoverSocketWith resolves discovery from an explicit environment
// snapshot and uid, isolating the only two filesystem probes discovery
// inherently requires (stat the override, read the runtime directory) from
// environment access.
func discoverSocketWith(env SocketEnv, uid int) (string, bool) {
	if env.HasCruxSocket {
		if _, err := os.Stat(env.CruxSocket); err == nil {
			return env.CruxSocket, true
		}
	}
	return scanSocketDir(resolveRuntimeDir(env, uid))
}

func scanSocketDir(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var candidates []candidate
	for _, entry := range entries {
		name := entry.Name()
		if len(name) < len("gui-sock-") || name[:len("gui-sock-")] != "gui-sock-" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{path: filepath.Join(dir, name), modTime: info.ModTime().UnixNano()})
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime > candidates[j].modTime })
	return candidates[0].path, true
}
