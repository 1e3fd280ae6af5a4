// Package registry owns the pane tree: terminal handles, parent links, and
// the single active-pane pointer a headless server substitutes for window
// focus. Every method here is meant to be called from one owner goroutine —
// the same goroutine that drains the IPC command channel — so the registry
// itself holds no lock of its own.
package registry

import (
	"fmt"
	"sort"

	"github.com/ehrlich-b/crux/internal/graphics"
	"github.com/ehrlich-b/crux/internal/protocol"
	"github.com/ehrlich-b/crux/internal/term"
)

// ErrPaneNotFound is returned by lookups for an unknown pane id.
type ErrPaneNotFound struct{ ID protocol.PaneID }

func (e *ErrPaneNotFound) Error() string { return fmt.Sprintf("pane %s not found", e.ID) }

// ErrNoActivePane is returned when resolving an omitted pane id against an
// empty registry.
var ErrNoActivePane = fmt.Errorf("no active pane")

// Entry is one pane's externally visible state plus its terminal handle.
type Entry struct {
	PaneID   protocol.PaneID
	ParentID *protocol.PaneID
	Pane     *term.Pane
	Title    string
	Cwd      *string
	IsZoomed bool
}

// Registry is the single-window pane tree plus the shared graphics store
// backing every pane's Kitty/iTerm2 image placements.
type Registry struct {
	entries    map[protocol.PaneID]*Entry
	order      []protocol.PaneID
	activeID   protocol.PaneID
	hasActive  bool
	nextPaneID uint64

	Images *graphics.Store
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[protocol.PaneID]*Entry),
		Images:  graphics.NewStore(),
	}
}

// AllocatePaneID returns the next pane id, skipping 0 (reserved for
// "unspecified").
func (r *Registry) AllocatePaneID() protocol.PaneID {
	r.nextPaneID++
	return protocol.PaneID(r.nextPaneID)
}

// Insert adds a newly created pane to the registry. The first pane ever
// inserted becomes active by default.
func (r *Registry) Insert(e *Entry) {
	r.entries[e.PaneID] = e
	r.order = append(r.order, e.PaneID)
	if !r.hasActive {
		r.activeID = e.PaneID
		r.hasActive = true
	}
}

// Remove deletes a pane and any parent links pointing at or from it.
func (r *Registry) Remove(id protocol.PaneID) {
	delete(r.entries, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for _, e := range r.entries {
		if e.ParentID != nil && *e.ParentID == id {
			e.ParentID = nil
		}
	}
	if r.hasActive && r.activeID == id {
		r.hasActive = false
		if len(r.order) > 0 {
			r.activeID = r.order[0]
			r.hasActive = true
		}
	}
}

// Get returns the pane with the given id, if any.
func (r *Registry) Get(id protocol.PaneID) (*Entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// Activate sets the focused pane. Returns ErrPaneNotFound if id is unknown.
func (r *Registry) Activate(id protocol.PaneID) error {
	if _, ok := r.entries[id]; !ok {
		return &ErrPaneNotFound{ID: id}
	}
	r.activeID = id
	r.hasActive = true
	return nil
}

// ActivePaneID returns the focused pane, if one exists.
func (r *Registry) ActivePaneID() (protocol.PaneID, bool) {
	return r.activeID, r.hasActive
}

// Resolve returns the entry for id, or the active pane (or the first pane in
// stable PaneID order) when id is nil. Matches the omitted-pane-id fallback
// used by every pane-scoped method: focused pane, else first pane, else
// PaneNotFound / "no active pane".
func (r *Registry) Resolve(id *protocol.PaneID) (*Entry, error) {
	if id != nil {
		e, ok := r.entries[*id]
		if !ok {
			return nil, &ErrPaneNotFound{ID: *id}
		}
		return e, nil
	}
	if r.hasActive {
		if e, ok := r.entries[r.activeID]; ok {
			return e, nil
		}
	}
	if len(r.order) > 0 {
		return r.entries[r.order[0]], nil
	}
	return nil, ErrNoActivePane
}

// List returns every entry in stable PaneID-ascending order.
func (r *Registry) List() []*Entry {
	ids := make([]protocol.PaneID, len(r.order))
	copy(ids, r.order)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.entries[id])
	}
	return out
}

// Len returns the number of panes currently registered.
func (r *Registry) Len() int { return len(r.entries) }
