package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/tabkeeper/browser"
	"github.com/hazyhaar/tabkeeper/converge"
)

// UndoDepth is the bound on the undo log; pushing beyond it evicts the
// oldest entry.
const UndoDepth = 20

// UndoStack is a bounded, persisted LIFO of "the arrangement immediately
// before an action". Unlike Restore, it replays against the same
// still-running browser instance the entry was recorded from, so live IDs
// are tried first and URL matching is only the fallback.
type UndoStack struct {
	store  *Store
	env    browser.Env
	depth  int
	settle converge.Options
	log    *slog.Logger
}

// NewUndoStack creates an UndoStack bound to store and env.
func NewUndoStack(store *Store, env browser.Env, log *slog.Logger) *UndoStack {
	if log == nil {
		log = slog.Default()
	}
	return &UndoStack{
		store: store,
		env:   env,
		depth: UndoDepth,
		settle: converge.Options{
			Interval:  100 * time.Millisecond,
			Timeout:   2 * time.Second,
			Stability: 2,
		},
		log: log,
	}
}

// RecordBefore pushes the current grouping arrangement onto the stack,
// tagged with the action about to happen. Every window is recorded, grouped
// or not: undoing an action that grouped a previously ungrouped window must
// return it to the ungrouped state.
func (u *UndoStack) RecordBefore(ctx context.Context, actionType string) error {
	windows, err := u.env.Windows(ctx)
	if err != nil {
		return fmt.Errorf("session: undo record: enumerate windows: %w", err)
	}

	entry := &UndoEntry{
		ActionType: actionType,
		Timestamp:  time.Now().UnixMilli(),
	}

	for _, w := range windows {
		tabs, err := u.env.Tabs(ctx, w.ID)
		if err != nil {
			u.log.Warn("session: undo record: list tabs failed, skipping window",
				"window", w.ID, "error", err)
			continue
		}

		uw := UndoWindow{WindowID: w.ID}
		byGroup := make(map[browser.GroupID]int) // group -> index in uw.Groups
		for _, t := range tabs {
			if t.GroupID == "" {
				continue
			}
			idx, seen := byGroup[t.GroupID]
			if !seen {
				info, err := u.env.GroupInfo(ctx, t.GroupID)
				if err != nil {
					u.log.Warn("session: undo record: group metadata failed",
						"group", t.GroupID, "error", err)
					continue
				}
				uw.Groups = append(uw.Groups, UndoGroup{
					Title:     info.Title,
					Color:     info.Color,
					Collapsed: info.Collapsed,
				})
				idx = len(uw.Groups) - 1
				byGroup[t.GroupID] = idx
			}
			uw.Groups[idx].Tabs = append(uw.Groups[idx].Tabs, UndoTab{ID: t.ID, URL: t.URL})
		}
		entry.Windows = append(entry.Windows, uw)
	}

	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	list, err := u.store.readUndo(ctx)
	if err != nil {
		return err
	}
	list = append(list, entry)
	if len(list) > u.depth {
		list = list[len(list)-u.depth:]
	}
	return u.store.writeUndo(ctx, list)
}

// UndoLast pops the most recent entry and replays it: ungroup every
// currently grouped tab in each recorded window, wait briefly for the
// ungrouping to settle, then recreate each recorded group. It returns false
// with no mutation when the stack is empty. The entry is consumed before
// replay — it is applied by at most one undo invocation.
func (u *UndoStack) UndoLast(ctx context.Context) (bool, error) {
	entry, err := u.pop(ctx)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}

	for _, uw := range entry.Windows {
		if err := u.replayWindow(ctx, uw); err != nil {
			u.log.Warn("session: undo: window replay failed",
				"window", uw.WindowID, "error", err)
		}
	}
	return true, nil
}

// Len returns the current number of entries.
func (u *UndoStack) Len(ctx context.Context) (int, error) {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	list, err := u.store.readUndo(ctx)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

func (u *UndoStack) pop(ctx context.Context) (*UndoEntry, error) {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	list, err := u.store.readUndo(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	entry := list[len(list)-1]
	if err := u.store.writeUndo(ctx, list[:len(list)-1]); err != nil {
		return nil, err
	}
	return entry, nil
}

func (u *UndoStack) replayWindow(ctx context.Context, uw UndoWindow) error {
	tabs, err := u.env.Tabs(ctx, uw.WindowID)
	if err != nil {
		return fmt.Errorf("list tabs: %w", err)
	}

	var grouped []browser.TabID
	for _, t := range tabs {
		if t.GroupID != "" {
			grouped = append(grouped, t.ID)
		}
	}
	if len(grouped) > 0 {
		if err := u.env.UngroupTabs(ctx, grouped); err != nil {
			return fmt.Errorf("ungroup: %w", err)
		}
		// Ungrouping settles asynchronously in the live environment.
		settle := u.settle
		settle.Logger = u.log
		if _, err := converge.Wait(ctx, settle, func(ctx context.Context) (bool, int64, error) {
			tabs, err := u.env.Tabs(ctx, uw.WindowID)
			if err != nil {
				return false, 0, err
			}
			remaining := int64(0)
			for _, t := range tabs {
				if t.GroupID != "" {
					remaining++
				}
			}
			return remaining == 0, remaining, nil
		}); err != nil {
			return err
		}
		tabs, err = u.env.Tabs(ctx, uw.WindowID)
		if err != nil {
			return fmt.Errorf("list tabs after ungroup: %w", err)
		}
	}

	live := make(map[browser.TabID]browser.Tab, len(tabs))
	for _, t := range tabs {
		live[t.ID] = t
	}

	claimed := make(map[browser.TabID]bool)
	for _, g := range uw.Groups {
		var ids []browser.TabID
		for _, ut := range g.Tabs {
			// Same-instance replay: the recorded live ID is usually still
			// valid. URL matching covers tabs closed and recreated by an
			// intervening action.
			if _, ok := live[ut.ID]; ok && !claimed[ut.ID] {
				ids = append(ids, ut.ID)
				claimed[ut.ID] = true
				continue
			}
			if t, ok := matchTab(ut.URL, tabs, claimed); ok {
				ids = append(ids, t.ID)
				claimed[t.ID] = true
			}
		}
		if len(ids) == 0 {
			u.log.Warn("session: undo: group resolved no tabs", "group", g.Title)
			continue
		}

		gid, err := u.env.GroupTabs(ctx, uw.WindowID, ids)
		if err != nil {
			u.log.Warn("session: undo: regroup failed", "group", g.Title, "error", err)
			continue
		}
		title, color, collapsed := g.Title, g.Color, g.Collapsed
		upd := browser.GroupUpdate{Title: &title, Collapsed: &collapsed}
		if browser.ValidColor(color) {
			upd.Color = &color
		}
		if err := u.env.UpdateGroup(ctx, gid, upd); err != nil {
			u.log.Warn("session: undo: group attributes failed", "group", g.Title, "error", err)
		}
	}
	return nil
}
