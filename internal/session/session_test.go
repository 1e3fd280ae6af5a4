package session

import (
	"testing"

	"github.com/ehrlich-b/crux/internal/protocol"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadDefaultPath(t *testing.T) {
	s := openTestStore(t)
	cwd := "/home/user/project"
	snap := Snapshot{Panes: []PaneSnapshot{
		{PaneID: protocol.PaneID(1), Title: "shell", Cwd: &cwd, Rows: 24, Cols: 80},
	}}

	path, err := s.Save(nil, snap)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if path != "default" {
		t.Errorf("path = %q, want default", path)
	}

	loaded, err := s.Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Panes) != 1 {
		t.Fatalf("panes = %d, want 1", len(loaded.Panes))
	}
	if loaded.Panes[0].Title != "shell" {
		t.Errorf("title = %q, want shell", loaded.Panes[0].Title)
	}
	if loaded.Panes[0].Cwd == nil || *loaded.Panes[0].Cwd != cwd {
		t.Errorf("cwd mismatch")
	}
}

func TestSaveAndLoadNamedPath(t *testing.T) {
	s := openTestStore(t)
	named := "work-layout"
	snap := Snapshot{Panes: []PaneSnapshot{{PaneID: protocol.PaneID(2), Title: "logs", Rows: 30, Cols: 120}}}

	if _, err := s.Save(&named, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := s.Load(&named)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Panes) != 1 || loaded.Panes[0].Title != "logs" {
		t.Fatalf("unexpected snapshot: %+v", loaded)
	}
}

func TestLoadMissingPathErrors(t *testing.T) {
	s := openTestStore(t)
	missing := "never-saved"
	if _, err := s.Load(&missing); err == nil {
		t.Fatal("expected error loading nonexistent session")
	}
}

func TestSaveOverwritesExistingPath(t *testing.T) {
	s := openTestStore(t)
	named := "layout"
	first := Snapshot{Panes: []PaneSnapshot{{PaneID: protocol.PaneID(1), Title: "first"}}}
	second := Snapshot{Panes: []PaneSnapshot{{PaneID: protocol.PaneID(1), Title: "second"}, {PaneID: protocol.PaneID(2), Title: "third"}}}

	if _, err := s.Save(&named, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if _, err := s.Save(&named, second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	loaded, err := s.Load(&named)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Panes) != 2 {
		t.Fatalf("panes = %d, want 2", len(loaded.Panes))
	}
}
