// Package browser is the only layer that touches the live tab/window/group
// hierarchy. Everything above it works against the Env interface, so the
// session engine can be driven by a real Chrome over CDP or by an in-memory
// fake in tests.
package browser

import "context"

// WindowID identifies a live browser window. Valid only for the lifetime of
// the browser instance that issued it.
type WindowID int64

// TabID identifies a live tab (a CDP target). Valid only within the issuing
// browser instance.
type TabID string

// GroupID identifies a live tab group. Valid only within the issuing
// browser instance.
type GroupID string

// Window is a live browser window.
type Window struct {
	ID WindowID `json:"id"`
}

// Tab is a live tab as observed at one instant. URL may be empty while the
// tab is still loading; PendingURL then carries the navigation target.
type Tab struct {
	ID         TabID    `json:"id"`
	WindowID   WindowID `json:"window_id"`
	Index      int      `json:"index"`
	URL        string   `json:"url"`
	PendingURL string   `json:"pending_url,omitempty"`
	Title      string   `json:"title,omitempty"`
	Pinned     bool     `json:"pinned"`
	Active     bool     `json:"active"`
	GroupID    GroupID  `json:"group_id,omitempty"`
}

// Group is a live tab group's metadata.
type Group struct {
	ID        GroupID  `json:"id"`
	WindowID  WindowID `json:"window_id"`
	Title     string   `json:"title"`
	Color     string   `json:"color"`
	Collapsed bool     `json:"collapsed"`
}

// Colors is the fixed group color palette.
var Colors = []string{
	"grey", "blue", "red", "yellow", "green", "pink", "purple", "cyan", "orange",
}

// ValidColor reports whether c is in the palette.
func ValidColor(c string) bool {
	for _, v := range Colors {
		if v == c {
			return true
		}
	}
	return false
}

// TabUpdate carries the mutable tab attributes. Nil fields are left unchanged.
type TabUpdate struct {
	Pinned *bool
	Active *bool
}

// GroupUpdate carries the mutable group attributes. Nil fields are left unchanged.
type GroupUpdate struct {
	Title     *string
	Color     *string
	Collapsed *bool
}

// Env is the environment adapter: the primitives for enumerating and
// mutating the live window/tab/group hierarchy. Every call may suspend on
// I/O and may fail individually; the adapter never batches or retries —
// partial-failure handling belongs to the caller.
type Env interface {
	// Windows enumerates all live windows.
	Windows(ctx context.Context) ([]Window, error)
	// Tabs enumerates the tabs of one window in index order.
	Tabs(ctx context.Context, win WindowID) ([]Tab, error)
	// GroupInfo fetches one group's metadata.
	GroupInfo(ctx context.Context, id GroupID) (Group, error)
	// CreateWindow opens a new window seeded with url and returns its handle.
	CreateWindow(ctx context.Context, url string) (Window, error)
	// CreateTab opens a new tab in win navigating to url.
	CreateTab(ctx context.Context, win WindowID, url string) (Tab, error)
	// UpdateTab applies pinned/active changes to one tab.
	UpdateTab(ctx context.Context, id TabID, u TabUpdate) error
	// GroupTabs puts the given tabs of win into a fresh group.
	GroupTabs(ctx context.Context, win WindowID, ids []TabID) (GroupID, error)
	// UpdateGroup applies title/color/collapsed changes to one group.
	UpdateGroup(ctx context.Context, id GroupID, u GroupUpdate) error
	// UngroupTabs removes the given tabs from whatever groups hold them.
	UngroupTabs(ctx context.Context, ids []TabID) error
}
