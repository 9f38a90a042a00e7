package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/tabkeeper/browser"
	"github.com/hazyhaar/tabkeeper/idgen"
)

// Capturer walks the live hierarchy and produces Snapshots.
type Capturer struct {
	env browser.Env
	ids idgen.Generator
	log *slog.Logger
}

// NewCapturer creates a Capturer over env.
func NewCapturer(env browser.Env, log *slog.Logger) *Capturer {
	if log == nil {
		log = slog.Default()
	}
	return &Capturer{
		env: env,
		ids: idgen.Prefixed("sess_", idgen.UUIDv7()),
		log: log,
	}
}

// Capture enumerates all live windows and records the arrangement under the
// given label. Tabs without a restorable URL are skipped, windows
// contributing zero eligible tabs are omitted, and group metadata is fetched
// at most once per group. A failure to read one tab's or one group's
// metadata is logged and that entity skipped; it never aborts the capture.
func (c *Capturer) Capture(ctx context.Context, name string) (*Snapshot, error) {
	windows, err := c.env.Windows(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: capture: enumerate windows: %w", err)
	}

	snap := &Snapshot{
		ID:        c.ids(),
		Name:      name,
		Timestamp: time.Now().UnixMilli(),
	}

	// Memoized per capture pass; a failed fetch is memoized as nil so the
	// group is asked about exactly once either way.
	groupRecs := make(map[browser.GroupID]*GroupRecord)
	var groupOrder []browser.GroupID

	for _, w := range windows {
		tabs, err := c.env.Tabs(ctx, w.ID)
		if err != nil {
			c.log.Warn("session: capture: list tabs failed, skipping window",
				"window", w.ID, "error", err)
			continue
		}

		var recs []TabRecord
		for _, t := range tabs {
			url := t.URL
			if url == "" {
				url = t.PendingURL
			}
			if !IsRestorable(url) {
				continue
			}

			rec := TabRecord{
				URL:             url,
				Title:           t.Title,
				Pinned:          t.Pinned,
				Active:          t.Active,
				OriginalGroupID: t.GroupID,
			}

			if t.GroupID != "" {
				g, seen := groupRecs[t.GroupID]
				if !seen {
					info, err := c.env.GroupInfo(ctx, t.GroupID)
					if err != nil {
						c.log.Warn("session: capture: group metadata failed, skipping group",
							"group", t.GroupID, "error", err)
						groupRecs[t.GroupID] = nil
					} else {
						g = &GroupRecord{
							OriginalID: info.ID,
							Title:      info.Title,
							Color:      info.Color,
							Collapsed:  info.Collapsed,
						}
						groupRecs[t.GroupID] = g
						groupOrder = append(groupOrder, t.GroupID)
					}
				}
				if g == nil {
					rec.OriginalGroupID = ""
				} else {
					g.TabURLs = append(g.TabURLs, url)
				}
			}

			recs = append(recs, rec)
		}

		if len(recs) > 0 {
			snap.Windows = append(snap.Windows, WindowRecord{OriginalID: w.ID, Tabs: recs})
		}
	}

	for _, gid := range groupOrder {
		if g := groupRecs[gid]; g != nil && len(g.TabURLs) > 0 {
			snap.Groups = append(snap.Groups, *g)
		}
	}

	return snap, nil
}
