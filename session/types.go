// Package session is the tabkeeper core: capturing the live window/tab/group
// arrangement into durable snapshots, restoring snapshots into a live
// browser with identity reconciliation, and a bounded undo log of prior
// arrangements.
//
// Two correlation strategies run through this package and must not be
// confused. Live IDs (target IDs, group handles) are meaningful only within
// the browser instance that issued them, so anything crossing a
// capture/restore boundary correlates by URL instead. The undo log replays
// against the same still-running instance and therefore tries live IDs
// first, with URL as fallback.
package session

import (
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/tabkeeper/browser"
)

// Name prefixes marking system-generated snapshots subject to retention.
const (
	AutoSavePrefix = "Auto-save ("
	RecoveryPrefix = "Recovery ("
)

// Snapshot is a durable record of the whole arrangement: windows, tabs,
// groups, their attributes and membership. Pure data.
type Snapshot struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Timestamp int64          `json:"timestamp"` // unix milliseconds
	Windows   []WindowRecord `json:"windows"`
	// Groups is flattened across windows; membership is recorded by URL
	// because live IDs do not survive a restore.
	Groups []GroupRecord `json:"groups,omitempty"`
}

// WindowRecord is one captured window. OriginalID is meaningful only within
// the capturing environment and is discarded on restore.
type WindowRecord struct {
	OriginalID browser.WindowID `json:"original_id"`
	Tabs       []TabRecord      `json:"tabs"`
}

// TabRecord is one captured tab. URL is required; tabs with non-restorable
// schemes are excluded at capture time and never round-trip.
type TabRecord struct {
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Pinned bool   `json:"pinned,omitempty"`
	Active bool   `json:"active,omitempty"`
	// OriginalGroupID correlates membership at capture time only.
	OriginalGroupID browser.GroupID `json:"original_group_id,omitempty"`
}

// GroupRecord is one captured group. OriginalID is capture-time identity,
// discarded on restore; TabURLs is the restorable membership.
type GroupRecord struct {
	OriginalID browser.GroupID `json:"original_id"`
	Title      string          `json:"title"`
	Color      string          `json:"color"`
	Collapsed  bool            `json:"collapsed,omitempty"`
	TabURLs    []string        `json:"tab_urls"`
}

// TabCount returns the number of tab records across all windows.
func (s *Snapshot) TabCount() int {
	n := 0
	for _, w := range s.Windows {
		n += len(w.Tabs)
	}
	return n
}

// Validate checks the snapshot invariant: at least one tab across its
// windows, or at least one group.
func (s *Snapshot) Validate() error {
	if s.TabCount() == 0 && len(s.Groups) == 0 {
		return fmt.Errorf("%w: snapshot %q has no tabs and no groups", ErrInvalidSession, s.Name)
	}
	return nil
}

// Export serialises a snapshot as a standalone JSON document. There is no
// framing beyond the snapshot model itself.
func Export(s *Snapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// ImportSnapshot parses a JSON document produced by Export and validates it.
func ImportSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// UndoEntry records the full arrangement immediately before a mutating
// action. Unlike a persisted Snapshot it retains live entity IDs, because it
// is replayed against the same still-running browser instance.
type UndoEntry struct {
	ActionType string       `json:"action_type"`
	Timestamp  int64        `json:"timestamp"` // unix milliseconds
	Windows    []UndoWindow `json:"windows"`
}

// UndoWindow is the pre-action grouping state of one live window. A window
// with zero groups is still recorded: undoing an action that grouped its
// tabs must return it to the ungrouped state.
type UndoWindow struct {
	WindowID browser.WindowID `json:"window_id"`
	Groups   []UndoGroup      `json:"groups"`
}

// UndoGroup is one pre-action group with its live members.
type UndoGroup struct {
	Title     string    `json:"title"`
	Color     string    `json:"color"`
	Collapsed bool      `json:"collapsed,omitempty"`
	Tabs      []UndoTab `json:"tabs"`
}

// UndoTab carries both correlation keys: the live ID (tried first) and the
// URL (fallback when the tab was closed and recreated in between).
type UndoTab struct {
	ID  browser.TabID `json:"id"`
	URL string        `json:"url"`
}
