package term

import "testing"

func TestTerminfoAvailableFindsXterm256Color(t *testing.T) {
	if !terminfoAvailable("xterm-256color") {
		t.Skip("xterm-256color terminfo not installed on this system")
	}
}

func TestTerminfoAvailableRejectsUnknownName(t *testing.T) {
	if terminfoAvailable("definitely-not-a-real-terminal-xyz") {
		t.Fatal("expected unknown terminfo name to be unavailable")
	}
}

func TestSplitPathHandlesEmptyEntries(t *testing.T) {
	got := splitPath("/a:/b::/c")
	want := []string{"/a", "/b", "", "/c"}
	if len(got) != len(want) {
		t.Fatalf("splitPath(...) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitPath(...)[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMergeEnvChainsThreeLevels(t *testing.T) {
	osEnv := []string{"PATH=/usr/bin", "TERM=dumb"}
	defaults := []string{"TERM=xterm-256color", "COLORTERM=truecolor"}
	overlay := []string{"COLORTERM=24bit"}

	got := mergeEnv(mergeEnv(osEnv, defaults), overlay)
	want := map[string]string{"PATH": "/usr/bin", "TERM": "xterm-256color", "COLORTERM": "24bit"}
	if len(got) != len(want) {
		t.Fatalf("mergeEnv chain = %v, want %d entries", got, len(want))
	}
	for _, kv := range got {
		k, v, ok := splitEnvKV(kv)
		if !ok || want[k] != v {
			t.Fatalf("mergeEnv chain key %q = %q, want %q", k, v, want[k])
		}
	}
}

func TestMergeEnvOverridesBase(t *testing.T) {
	base := []string{"TERM=xterm-256color", "COLORTERM=truecolor"}
	overrides := []string{"TERM=xterm-crux", "EXTRA=1"}
	got := mergeEnv(base, overrides)

	want := map[string]string{"TERM": "xterm-crux", "COLORTERM": "truecolor", "EXTRA": "1"}
	if len(got) != len(want) {
		t.Fatalf("mergeEnv(...) = %v, want %d entries", got, len(want))
	}
	for _, kv := range got {
		k, v, ok := splitEnvKV(kv)
		if !ok {
			t.Fatalf("malformed env entry %q", kv)
		}
		if want[k] != v {
			t.Fatalf("mergeEnv key %q = %q, want %q", k, v, want[k])
		}
	}
}
