package term

import (
	"context"
	"testing"
	"time"
)

func spawnShell(t *testing.T, args ...string) *Pane {
	t.Helper()
	cfg := SpawnConfig{Shell: "/bin/sh", Args: args, Cols: 80, Rows: 24}
	p, err := Spawn(cfg)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		p.Shutdown(ctx)
		p.Close()
	})
	return p
}

func waitForContent(t *testing.T, p *Pane, want string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		snap := p.Content()
		for _, line := range snap.Lines {
			if contains(line, want) {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in pane content", want)
}

func contains(haystack, needle string) bool {
	return len(needle) == 0 || (len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestSpawnEchoesOutput(t *testing.T) {
	p := spawnShell(t, "-c", "echo hello-pane")
	waitForContent(t, p, "hello-pane", 2*time.Second)
}

func TestSpawnWriteToStdin(t *testing.T) {
	p := spawnShell(t, "-c", "cat")
	if _, err := p.Write([]byte("ping\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitForContent(t, p, "ping", 2*time.Second)
}

func TestSpawnProcessExitEvent(t *testing.T) {
	p := spawnShell(t, "-c", "exit 3")
	for ev := range p.Events() {
		if ev.Kind == EventProcessExit {
			if ev.ExitCode != 3 {
				t.Fatalf("exit code = %d, want 3", ev.ExitCode)
			}
			return
		}
	}
	t.Fatal("never observed EventProcessExit")
}

func TestSpawnResize(t *testing.T) {
	p := spawnShell(t, "-c", "cat")
	if err := p.Resize(100, 30); err != nil {
		t.Fatalf("resize: %v", err)
	}
	snap := p.Content()
	if snap.Cols != 100 || snap.Rows != 30 {
		t.Fatalf("content dims = %dx%d", snap.Cols, snap.Rows)
	}
}

func TestPaneIsRunningBeforeAndAfterExit(t *testing.T) {
	p := spawnShell(t, "-c", "sleep 5")
	if !p.IsRunning() {
		t.Fatal("expected pane to be running immediately after spawn")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if p.IsRunning() {
		t.Fatal("expected pane to report not running after shutdown")
	}
}

func TestCwdChangedEventFromOSC7(t *testing.T) {
	p := spawnShell(t, "-c", "printf '\\033]7;file://host/tmp/example\\007'; sleep 1")
	for ev := range p.Events() {
		if ev.Kind == EventCwdChanged {
			if ev.CwdPath != "/tmp/example" {
				t.Fatalf("cwd path = %q", ev.CwdPath)
			}
			return
		}
	}
	t.Fatal("never observed EventCwdChanged")
}
