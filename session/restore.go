package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/tabkeeper/browser"
	"github.com/hazyhaar/tabkeeper/converge"
)

// RestoreOptions tunes restore behaviour. The grouping booleans come from
// the preferences store; the restore engine consumes them but does not own
// or validate them.
type RestoreOptions struct {
	// SkipSingleTabGroups drops recorded groups that resolve to one live tab.
	SkipSingleTabGroups bool
	// AutoCollapseGroups collapses every recreated group regardless of its
	// recorded collapsed flag.
	AutoCollapseGroups bool
	// Poll tunes the convergence wait for asynchronously materialising tabs.
	Poll converge.Options
}

// Restorer reconstructs snapshots in the live environment, reconciling
// recorded tabs (keyed by URL) with freshly created live tabs (keyed by new
// volatile IDs).
type Restorer struct {
	env  browser.Env
	opts RestoreOptions
	log  *slog.Logger
}

// NewRestorer creates a Restorer over env.
func NewRestorer(env browser.Env, opts RestoreOptions, log *slog.Logger) *Restorer {
	if log == nil {
		log = slog.Default()
	}
	return &Restorer{env: env, opts: opts, log: log}
}

// Restore validates snap and reconstructs it window by window. A single
// window's failure is logged and skipped; the call fails outright only when
// validation fails, before any live-environment mutation.
func (r *Restorer) Restore(ctx context.Context, snap *Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	// A group is recreated in the first window where any member resolves.
	doneGroups := make(map[browser.GroupID]bool)

	for i, w := range snap.Windows {
		if err := r.restoreWindow(ctx, &w, snap.Groups, doneGroups); err != nil {
			r.log.Warn("session: restore: window skipped",
				"window_index", i, "error", err)
		}
	}
	return nil
}

func (r *Restorer) restoreWindow(ctx context.Context, w *WindowRecord, groups []GroupRecord, doneGroups map[browser.GroupID]bool) error {
	// Re-filter here: snapshots imported from JSON may carry URLs capture
	// would have excluded.
	var records []TabRecord
	for _, rec := range w.Tabs {
		if IsRestorable(rec.URL) {
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		return fmt.Errorf("no restorable tabs")
	}

	// Seed the window with the first URL, then fire the remaining creates
	// in parallel. Individual failures are logged; the convergence wait
	// below works with whatever actually materialises.
	win, err := r.env.CreateWindow(ctx, records[0].URL)
	if err != nil {
		return fmt.Errorf("create window: %w", err)
	}

	var wg sync.WaitGroup
	for _, rec := range records[1:] {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			if _, err := r.env.CreateTab(ctx, win.ID, url); err != nil {
				r.log.Warn("session: restore: create tab failed",
					"url", url, "error", err)
			}
		}(rec.URL)
	}
	wg.Wait()

	// Tab creation is asynchronous in the live environment and the count
	// that will materialise is not synchronously knowable. Wait until the
	// expected count is reached and every tab has a settled or pending URL,
	// or the count stops growing, or the cap elapses — then proceed with
	// what is present.
	expected := len(records)
	poll := r.opts.Poll
	poll.Logger = r.log
	outcome, err := converge.Wait(ctx, poll, func(ctx context.Context) (bool, int64, error) {
		tabs, err := r.env.Tabs(ctx, win.ID)
		if err != nil {
			return false, 0, err
		}
		if len(tabs) < expected {
			return false, int64(len(tabs)), nil
		}
		for _, t := range tabs {
			if t.URL == "" && t.PendingURL == "" {
				return false, int64(len(tabs)), nil
			}
		}
		return true, int64(len(tabs)), nil
	})
	if err != nil {
		return err
	}
	if outcome != converge.Converged {
		r.log.Warn("session: restore: tab creation did not converge",
			"outcome", outcome.String(), "expected", expected)
	}

	tabs, err := r.env.Tabs(ctx, win.ID)
	if err != nil {
		return fmt.Errorf("list tabs: %w", err)
	}

	// Reconcile records to live tabs in record order. The claim set keeps
	// two records with the same URL from landing on the same live tab.
	claimed := make(map[browser.TabID]bool)
	matched := make([]browser.TabID, len(records))
	for i, rec := range records {
		if t, ok := matchTab(rec.URL, tabs, claimed); ok {
			matched[i] = t.ID
			claimed[t.ID] = true
		} else {
			r.log.Warn("session: restore: tab not reconciled", "url", rec.URL)
		}
	}

	// Pin first. Pinning reorders the tab strip, so the live list is
	// re-queried afterwards — stale indices must not be reused.
	pinnedAny := false
	for i, rec := range records {
		if !rec.Pinned || matched[i] == "" {
			continue
		}
		pinned := true
		if err := r.env.UpdateTab(ctx, matched[i], browser.TabUpdate{Pinned: &pinned}); err != nil {
			r.log.Warn("session: restore: pin failed", "url", rec.URL, "error", err)
			continue
		}
		pinnedAny = true
	}
	if pinnedAny {
		tabs, err = r.env.Tabs(ctx, win.ID)
		if err != nil {
			return fmt.Errorf("list tabs after pinning: %w", err)
		}
	}

	r.restoreGroups(ctx, win.ID, tabs, groups, doneGroups)

	// First record marked active that reconciled wins; at most one active
	// tab per window, matching the capture invariant.
	for i, rec := range records {
		if rec.Active && matched[i] != "" {
			active := true
			if err := r.env.UpdateTab(ctx, matched[i], browser.TabUpdate{Active: &active}); err != nil {
				r.log.Warn("session: restore: activate failed", "url", rec.URL, "error", err)
			}
			break
		}
	}

	return nil
}

// restoreGroups recreates recorded groups from the window's live tabs.
// Pinned tabs are never re-grouped, and a tab joins at most one group. A
// group resolving zero tabs here is left for a later window; one that
// resolves nowhere is simply dropped (logged by the zero-tab path of the
// last window it was tried in).
func (r *Restorer) restoreGroups(ctx context.Context, win browser.WindowID, tabs []browser.Tab, groups []GroupRecord, doneGroups map[browser.GroupID]bool) {
	claimed := make(map[browser.TabID]bool)
	for _, t := range tabs {
		if t.Pinned {
			claimed[t.ID] = true
		}
	}

	for _, g := range groups {
		if doneGroups[g.OriginalID] {
			continue
		}

		var ids []browser.TabID
		for _, url := range g.TabURLs {
			if t, ok := matchTab(url, tabs, claimed); ok {
				ids = append(ids, t.ID)
				claimed[t.ID] = true
			}
		}
		if len(ids) == 0 {
			r.log.Warn("session: restore: group resolved no tabs, skipping",
				"group", g.Title)
			continue
		}
		if r.opts.SkipSingleTabGroups && len(ids) == 1 {
			r.log.Debug("session: restore: single-tab group skipped", "group", g.Title)
			doneGroups[g.OriginalID] = true
			continue
		}

		gid, err := r.env.GroupTabs(ctx, win, ids)
		if err != nil {
			r.log.Warn("session: restore: group creation failed",
				"group", g.Title, "error", err)
			continue
		}
		doneGroups[g.OriginalID] = true

		collapsed := g.Collapsed || r.opts.AutoCollapseGroups
		title, color := g.Title, g.Color
		upd := browser.GroupUpdate{Title: &title, Collapsed: &collapsed}
		if browser.ValidColor(color) {
			upd.Color = &color
		}
		if err := r.env.UpdateGroup(ctx, gid, upd); err != nil {
			r.log.Warn("session: restore: group attributes failed",
				"group", g.Title, "error", err)
		}
	}
}
