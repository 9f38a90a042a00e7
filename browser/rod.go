package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/tabkeeper/idgen"
)

// RodEnv implements Env against a live Chrome over CDP.
//
// CDP has no tab-group or pin primitive — those exist only in the browser
// UI layer. RodEnv therefore keeps group membership and pinned state in an
// adapter-side registry keyed by target ID, while windows, tabs, navigation
// and activation are real CDP calls. The registry is exactly as volatile as
// the IDs it tracks: it dies with the browser instance, which is the same
// lifetime the IDs themselves have.
type RodEnv struct {
	browser *rod.Browser
	gen     idgen.Generator
	stealth bool
	log     *slog.Logger

	mu         sync.Mutex
	groups     map[GroupID]*groupState
	pinned     map[TabID]bool
	memberOf   map[TabID]GroupID
	pending    map[TabID]string
	lastActive map[WindowID]TabID
}

type groupState struct {
	win       WindowID
	title     string
	color     string
	collapsed bool
}

// RodOption customises a RodEnv.
type RodOption func(*RodEnv)

// WithStealth injects the stealth script into every page this adapter
// creates. Useful when restored sites block automated browsers.
func WithStealth() RodOption { return func(e *RodEnv) { e.stealth = true } }

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) RodOption { return func(e *RodEnv) { e.log = log } }

// NewRodEnv wraps a connected Rod browser as an Env.
func NewRodEnv(b *rod.Browser, opts ...RodOption) *RodEnv {
	e := &RodEnv{
		browser:    b,
		gen:        idgen.Prefixed("grp_", idgen.NanoID(12)),
		log:        slog.Default(),
		groups:     make(map[GroupID]*groupState),
		pinned:     make(map[TabID]bool),
		memberOf:   make(map[TabID]GroupID),
		pending:    make(map[TabID]string),
		lastActive: make(map[WindowID]TabID),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Windows enumerates the live windows by grouping page targets.
func (e *RodEnv) Windows(ctx context.Context) ([]Window, error) {
	pages, err := e.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("browser: list pages: %w", err)
	}

	seen := make(map[WindowID]bool)
	var out []Window
	for _, p := range pages {
		win, err := e.windowOf(ctx, p)
		if err != nil {
			e.log.Warn("browser: window lookup failed", "target", p.TargetID, "error", err)
			continue
		}
		if !seen[win] {
			seen[win] = true
			out = append(out, Window{ID: win})
		}
	}
	return out, nil
}

// Tabs enumerates the tabs of win in target order.
func (e *RodEnv) Tabs(ctx context.Context, win WindowID) ([]Tab, error) {
	pages, err := e.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("browser: list pages: %w", err)
	}

	// Gather target info before taking the registry lock: Info and the
	// window lookup are CDP round-trips.
	type liveTab struct {
		id   TabID
		info *proto.TargetTargetInfo
	}
	var live []liveTab
	for _, p := range pages {
		w, err := e.windowOf(ctx, p)
		if err != nil || w != win {
			continue
		}
		info, err := p.Context(ctx).Info()
		if err != nil {
			e.log.Warn("browser: tab info failed", "target", p.TargetID, "error", err)
			continue
		}
		live = append(live, liveTab{id: TabID(p.TargetID), info: info})
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Tab
	for _, lt := range live {
		id, info := lt.id, lt.info

		url := info.URL
		pendingURL := ""
		if url == "" || url == "about:blank" {
			pendingURL = e.pending[id]
		} else {
			delete(e.pending, id)
		}

		out = append(out, Tab{
			ID:         id,
			WindowID:   win,
			Index:      len(out),
			URL:        url,
			PendingURL: pendingURL,
			Title:      info.Title,
			Pinned:     e.pinned[id],
			Active:     e.lastActive[win] == id,
			GroupID:    e.memberOf[id],
		})
	}
	return out, nil
}

// GroupInfo fetches one group's metadata from the registry.
func (e *RodEnv) GroupInfo(ctx context.Context, id GroupID) (Group, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.groups[id]
	if !ok {
		return Group{}, fmt.Errorf("browser: unknown group %q", id)
	}
	return Group{ID: id, WindowID: g.win, Title: g.title, Color: g.color, Collapsed: g.collapsed}, nil
}

// CreateWindow opens a new browser window seeded with url.
func (e *RodEnv) CreateWindow(ctx context.Context, url string) (Window, error) {
	page, err := e.createPage(ctx, url, true)
	if err != nil {
		return Window{}, fmt.Errorf("browser: create window: %w", err)
	}
	win, err := e.windowOf(ctx, page)
	if err != nil {
		return Window{}, fmt.Errorf("browser: create window: %w", err)
	}

	e.mu.Lock()
	e.pending[TabID(page.TargetID)] = url
	e.lastActive[win] = TabID(page.TargetID)
	e.mu.Unlock()

	return Window{ID: win}, nil
}

// CreateTab opens a new tab navigating to url.
//
// CDP's Target.createTarget offers no window placement; the tab opens in
// the most recently focused window. Callers creating a window and then its
// tabs back-to-back get the expected placement.
func (e *RodEnv) CreateTab(ctx context.Context, win WindowID, url string) (Tab, error) {
	page, err := e.createPage(ctx, url, false)
	if err != nil {
		return Tab{}, fmt.Errorf("browser: create tab: %w", err)
	}
	id := TabID(page.TargetID)

	e.mu.Lock()
	e.pending[id] = url
	e.mu.Unlock()

	return Tab{ID: id, WindowID: win, PendingURL: url}, nil
}

// UpdateTab applies pinned/active changes. Activation is a CDP call;
// pinning is registry state.
func (e *RodEnv) UpdateTab(ctx context.Context, id TabID, u TabUpdate) error {
	if u.Active != nil && *u.Active {
		page, err := e.browser.PageFromTarget(proto.TargetTargetID(id))
		if err != nil {
			return fmt.Errorf("browser: tab %q: %w", id, err)
		}
		if _, err := page.Activate(); err != nil {
			return fmt.Errorf("browser: activate tab %q: %w", id, err)
		}
		win, err := e.windowOf(ctx, page)
		if err == nil {
			e.mu.Lock()
			e.lastActive[win] = id
			e.mu.Unlock()
		}
	}

	if u.Pinned != nil {
		e.mu.Lock()
		if *u.Pinned {
			e.pinned[id] = true
			// Pinned tabs cannot stay grouped.
			delete(e.memberOf, id)
		} else {
			delete(e.pinned, id)
		}
		e.mu.Unlock()
	}
	return nil
}

// GroupTabs puts the given tabs into a fresh group.
func (e *RodEnv) GroupTabs(ctx context.Context, win WindowID, ids []TabID) (GroupID, error) {
	if len(ids) == 0 {
		return "", fmt.Errorf("browser: group needs at least one tab")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	gid := GroupID(e.gen())
	e.groups[gid] = &groupState{win: win, color: Colors[0]}
	for _, id := range ids {
		e.memberOf[id] = gid
	}
	return gid, nil
}

// UpdateGroup applies title/color/collapsed changes.
func (e *RodEnv) UpdateGroup(ctx context.Context, id GroupID, u GroupUpdate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.groups[id]
	if !ok {
		return fmt.Errorf("browser: unknown group %q", id)
	}
	if u.Title != nil {
		g.title = *u.Title
	}
	if u.Color != nil {
		if !ValidColor(*u.Color) {
			return fmt.Errorf("browser: invalid group color %q", *u.Color)
		}
		g.color = *u.Color
	}
	if u.Collapsed != nil {
		g.collapsed = *u.Collapsed
	}
	return nil
}

// UngroupTabs removes the given tabs from their groups. Groups left empty
// are dropped from the registry.
func (e *RodEnv) UngroupTabs(ctx context.Context, ids []TabID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range ids {
		delete(e.memberOf, id)
	}

	live := make(map[GroupID]bool)
	for _, gid := range e.memberOf {
		live[gid] = true
	}
	for gid := range e.groups {
		if !live[gid] {
			delete(e.groups, gid)
		}
	}
	return nil
}

func (e *RodEnv) createPage(ctx context.Context, url string, newWindow bool) (*rod.Page, error) {
	page, err := e.browser.Page(proto.TargetCreateTarget{NewWindow: newWindow})
	if err != nil {
		return nil, err
	}
	if e.stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			e.log.Warn("browser: stealth injection failed", "error", err)
		}
	}
	if err := page.Context(ctx).Navigate(url); err != nil {
		page.Close()
		return nil, err
	}
	return page, nil
}

func (e *RodEnv) windowOf(ctx context.Context, page *rod.Page) (WindowID, error) {
	res, err := proto.BrowserGetWindowForTarget{}.Call(page.Context(ctx))
	if err != nil {
		return 0, err
	}
	return WindowID(res.WindowID), nil
}
