package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/hazyhaar/tabkeeper/browser"
)

// fakeEnv is an in-memory browser.Env. Knobs emulate the awkward parts of
// the real environment: tabs that materialise with only a pending URL,
// per-entity failures, and pinning that reorders the tab strip.
type fakeEnv struct {
	mu        sync.Mutex
	nextWin   int64
	nextTab   int
	nextGroup int

	order  map[browser.WindowID][]browser.TabID
	tabs   map[browser.TabID]*fakeTab
	groups map[browser.GroupID]*browser.Group

	// pendingOnly keeps created tabs' URLs in PendingURL until settleAll.
	pendingOnly bool
	// failGroupInfo makes GroupInfo fail for the listed groups.
	failGroupInfo map[browser.GroupID]bool
	// groupInfoCalls counts GroupInfo invocations per group.
	groupInfoCalls map[browser.GroupID]int
}

type fakeTab struct {
	id         browser.TabID
	win        browser.WindowID
	url        string
	pendingURL string
	title      string
	pinned     bool
	active     bool
	group      browser.GroupID
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{
		order:          make(map[browser.WindowID][]browser.TabID),
		tabs:           make(map[browser.TabID]*fakeTab),
		groups:         make(map[browser.GroupID]*browser.Group),
		failGroupInfo:  make(map[browser.GroupID]bool),
		groupInfoCalls: make(map[browser.GroupID]int),
	}
}

// addWindow seeds a window with settled tabs and returns its ID.
func (f *fakeEnv) addWindow(urls ...string) browser.WindowID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextWin++
	win := browser.WindowID(f.nextWin)
	for _, u := range urls {
		f.addTabLocked(win, u, true)
	}
	return win
}

func (f *fakeEnv) addTabLocked(win browser.WindowID, url string, settled bool) *fakeTab {
	f.nextTab++
	t := &fakeTab{id: browser.TabID(fmt.Sprintf("tab-%d", f.nextTab)), win: win}
	if settled {
		t.url = url
	} else {
		t.pendingURL = url
	}
	f.tabs[t.id] = t
	f.order[win] = append(f.order[win], t.id)
	return t
}

// addGroup puts existing tabs (by ID) into a new group with the given attributes.
func (f *fakeEnv) addGroup(win browser.WindowID, title, color string, collapsed bool, ids ...browser.TabID) browser.GroupID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextGroup++
	gid := browser.GroupID(fmt.Sprintf("group-%d", f.nextGroup))
	f.groups[gid] = &browser.Group{ID: gid, WindowID: win, Title: title, Color: color, Collapsed: collapsed}
	for _, id := range ids {
		f.tabs[id].group = gid
	}
	return gid
}

// settleAll moves every pending URL into the settled URL field.
func (f *fakeEnv) settleAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tabs {
		if t.pendingURL != "" {
			t.url = t.pendingURL
			t.pendingURL = ""
		}
	}
}

// closeTab removes a tab, as if the user closed it.
func (f *fakeEnv) closeTab(id browser.TabID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tabs[id]
	if !ok {
		return
	}
	delete(f.tabs, id)
	kept := f.order[t.win][:0]
	for _, tid := range f.order[t.win] {
		if tid != id {
			kept = append(kept, tid)
		}
	}
	f.order[t.win] = kept
}

// ---------- browser.Env ----------

func (f *fakeEnv) Windows(ctx context.Context) ([]browser.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []browser.Window
	for win := browser.WindowID(1); win <= browser.WindowID(f.nextWin); win++ {
		if _, ok := f.order[win]; ok {
			out = append(out, browser.Window{ID: win})
		}
	}
	return out, nil
}

func (f *fakeEnv) Tabs(ctx context.Context, win browser.WindowID) ([]browser.Tab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []browser.Tab
	for i, id := range f.order[win] {
		t := f.tabs[id]
		out = append(out, browser.Tab{
			ID:         t.id,
			WindowID:   win,
			Index:      i,
			URL:        t.url,
			PendingURL: t.pendingURL,
			Title:      t.title,
			Pinned:     t.pinned,
			Active:     t.active,
			GroupID:    t.group,
		})
	}
	return out, nil
}

func (f *fakeEnv) GroupInfo(ctx context.Context, id browser.GroupID) (browser.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groupInfoCalls[id]++
	if f.failGroupInfo[id] {
		return browser.Group{}, fmt.Errorf("fake: group %s unavailable", id)
	}
	g, ok := f.groups[id]
	if !ok {
		return browser.Group{}, fmt.Errorf("fake: unknown group %s", id)
	}
	return *g, nil
}

func (f *fakeEnv) CreateWindow(ctx context.Context, url string) (browser.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextWin++
	win := browser.WindowID(f.nextWin)
	f.order[win] = []browser.TabID{}
	f.addTabLocked(win, url, !f.pendingOnly)
	return browser.Window{ID: win}, nil
}

func (f *fakeEnv) CreateTab(ctx context.Context, win browser.WindowID, url string) (browser.Tab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.order[win]; !ok {
		return browser.Tab{}, fmt.Errorf("fake: unknown window %d", win)
	}
	t := f.addTabLocked(win, url, !f.pendingOnly)
	return browser.Tab{ID: t.id, WindowID: win, URL: t.url, PendingURL: t.pendingURL}, nil
}

func (f *fakeEnv) UpdateTab(ctx context.Context, id browser.TabID, u browser.TabUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tabs[id]
	if !ok {
		return fmt.Errorf("fake: unknown tab %s", id)
	}
	if u.Pinned != nil {
		t.pinned = *u.Pinned
		if t.pinned {
			t.group = ""
			// Pinning moves the tab to the front of the strip.
			kept := make([]browser.TabID, 0, len(f.order[t.win]))
			kept = append(kept, id)
			for _, tid := range f.order[t.win] {
				if tid != id {
					kept = append(kept, tid)
				}
			}
			f.order[t.win] = kept
		}
	}
	if u.Active != nil && *u.Active {
		for _, other := range f.tabs {
			if other.win == t.win {
				other.active = false
			}
		}
		t.active = true
	}
	return nil
}

func (f *fakeEnv) GroupTabs(ctx context.Context, win browser.WindowID, ids []browser.TabID) (browser.GroupID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(ids) == 0 {
		return "", fmt.Errorf("fake: empty group")
	}
	f.nextGroup++
	gid := browser.GroupID(fmt.Sprintf("group-%d", f.nextGroup))
	f.groups[gid] = &browser.Group{ID: gid, WindowID: win, Color: browser.Colors[0]}
	for _, id := range ids {
		t, ok := f.tabs[id]
		if !ok {
			return "", fmt.Errorf("fake: unknown tab %s", id)
		}
		t.group = gid
	}
	return gid, nil
}

func (f *fakeEnv) UpdateGroup(ctx context.Context, id browser.GroupID, u browser.GroupUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[id]
	if !ok {
		return fmt.Errorf("fake: unknown group %s", id)
	}
	if u.Title != nil {
		g.Title = *u.Title
	}
	if u.Color != nil {
		g.Color = *u.Color
	}
	if u.Collapsed != nil {
		g.Collapsed = *u.Collapsed
	}
	return nil
}

func (f *fakeEnv) UngroupTabs(ctx context.Context, ids []browser.TabID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if t, ok := f.tabs[id]; ok {
			t.group = ""
		}
	}
	return nil
}

// tabsByURL returns the window's live tabs keyed by settled URL.
func (f *fakeEnv) tabsByURL(win browser.WindowID) map[string]browser.Tab {
	out := make(map[string]browser.Tab)
	tabs, _ := f.Tabs(context.Background(), win)
	for _, t := range tabs {
		out[t.URL] = t
	}
	return out
}
