package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/tabkeeper/browser"
	"github.com/hazyhaar/tabkeeper/classify"
	"github.com/hazyhaar/tabkeeper/converge"
)

// Service wires the engines together and is the single entry point for
// every surface (CLI, MCP). Manual saves, the auto-save timer, and the
// recovery save on shutdown all run through the same capture+put path —
// there is no separate branch for "automatic" capture.
type Service struct {
	env      browser.Env
	store    *Store
	cap      *Capturer
	restorer *Restorer
	undo     *UndoStack
	rules    *classify.Ruleset
	cfg      *Config
	log      *slog.Logger
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithRules installs the classification rule table used by Organize.
func WithRules(rs *classify.Ruleset) ServiceOption {
	return func(s *Service) { s.rules = rs }
}

// NewService builds a Service over env and store.
func NewService(env browser.Env, store *Store, cfg *Config, log *slog.Logger, opts ...ServiceOption) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Service{
		env:      env,
		store:    store,
		cap:      NewCapturer(env, log),
		restorer: NewRestorer(env, cfg.restoreOptions(), log),
		undo:     NewUndoStack(store, env, log),
		cfg:      cfg,
		log:      log,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Save captures the current arrangement under name and persists it. An
// empty name gets a timestamped default. Empty arrangements are rejected
// before anything is written.
func (s *Service) Save(ctx context.Context, name string) (*Snapshot, error) {
	if name == "" {
		name = "Session " + time.Now().Format("2006-01-02 15:04")
	}
	snap, err := s.cap.Capture(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, snap); err != nil {
		return nil, err
	}
	s.log.Info("session: saved", "id", snap.ID, "name", name, "tabs", snap.TabCount())
	return snap, nil
}

// List returns all stored snapshots, newest first.
func (s *Service) List(ctx context.Context) ([]*Snapshot, error) {
	return s.store.List(ctx)
}

// Restore reconstructs the stored snapshot with the given ID in the live
// browser. ErrSessionNotFound and ErrInvalidSession surface before any
// live-environment mutation.
func (s *Service) Restore(ctx context.Context, id string) error {
	snap, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.restorer.Restore(ctx, snap); err != nil {
		return err
	}
	s.log.Info("session: restored", "id", id, "name", snap.Name)
	return nil
}

// Delete removes a stored snapshot.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Remove(ctx, id)
}

// Rename relabels a stored snapshot.
func (s *Service) Rename(ctx context.Context, id, name string) error {
	return s.store.Rename(ctx, id, name)
}

// Undo replays the most recent pre-action arrangement. Returns false when
// there is nothing to undo.
func (s *Service) Undo(ctx context.Context) (bool, error) {
	return s.undo.UndoLast(ctx)
}

// Organize groups every window's unpinned tabs by classification rule,
// recording the prior arrangement for undo first. It returns the number of
// groups created.
func (s *Service) Organize(ctx context.Context) (int, error) {
	if s.rules == nil || s.rules.Len() == 0 {
		return 0, fmt.Errorf("session: organize: no classification rules configured")
	}

	if err := s.undo.RecordBefore(ctx, "organize"); err != nil {
		return 0, fmt.Errorf("session: organize: record undo: %w", err)
	}

	windows, err := s.env.Windows(ctx)
	if err != nil {
		return 0, fmt.Errorf("session: organize: enumerate windows: %w", err)
	}

	created := 0
	for _, w := range windows {
		n, err := s.organizeWindow(ctx, w.ID)
		if err != nil {
			s.log.Warn("session: organize: window skipped", "window", w.ID, "error", err)
			continue
		}
		created += n
	}
	return created, nil
}

func (s *Service) organizeWindow(ctx context.Context, win browser.WindowID) (int, error) {
	tabs, err := s.env.Tabs(ctx, win)
	if err != nil {
		return 0, err
	}

	// Start from a clean slate so rule changes re-bucket existing groups.
	var grouped []browser.TabID
	for _, t := range tabs {
		if t.GroupID != "" {
			grouped = append(grouped, t.ID)
		}
	}
	if len(grouped) > 0 {
		if err := s.env.UngroupTabs(ctx, grouped); err != nil {
			return 0, err
		}
		settle := converge.Options{Interval: 100 * time.Millisecond, Timeout: 2 * time.Second, Stability: 2, Logger: s.log}
		if _, err := converge.Wait(ctx, settle, func(ctx context.Context) (bool, int64, error) {
			tabs, err := s.env.Tabs(ctx, win)
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
			return 0, err
		}
		tabs, err = s.env.Tabs(ctx, win)
		if err != nil {
			return 0, err
		}
	}

	type bucket struct {
		rule classify.Rule
		ids  []browser.TabID
	}
	var order []string
	buckets := make(map[string]*bucket)
	for _, t := range tabs {
		if t.Pinned {
			continue
		}
		url := t.URL
		if url == "" {
			url = t.PendingURL
		}
		rule, ok := s.rules.Match(url, t.Title)
		if !ok {
			continue
		}
		b, seen := buckets[rule.Name]
		if !seen {
			b = &bucket{rule: rule}
			buckets[rule.Name] = b
			order = append(order, rule.Name)
		}
		b.ids = append(b.ids, t.ID)
	}

	created := 0
	for _, name := range order {
		b := buckets[name]
		if s.cfg.Restore.SkipSingleTabGroups && len(b.ids) == 1 {
			continue
		}
		gid, err := s.env.GroupTabs(ctx, win, b.ids)
		if err != nil {
			s.log.Warn("session: organize: group creation failed", "category", name, "error", err)
			continue
		}
		title := b.rule.Name
		collapsed := s.cfg.Restore.AutoCollapseGroups
		upd := browser.GroupUpdate{Title: &title, Collapsed: &collapsed}
		if browser.ValidColor(b.rule.Color) {
			upd.Color = &b.rule.Color
		}
		if err := s.env.UpdateGroup(ctx, gid, upd); err != nil {
			s.log.Warn("session: organize: group attributes failed", "category", name, "error", err)
		}
		created++
	}
	return created, nil
}

// Stats summarises storage usage for display.
type Stats struct {
	Sessions   int   `json:"sessions"`
	UndoDepth  int   `json:"undo_depth"`
	BytesInUse int64 `json:"bytes_in_use"`
	Quota      int64 `json:"quota"`
}

// Stats reports session count, undo depth, and storage budget usage.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	used, err := s.store.BytesInUse(ctx)
	if err != nil {
		return Stats{}, err
	}
	depth, err := s.undo.Len(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Sessions: len(list), UndoDepth: depth, BytesInUse: used, Quota: s.store.Quota()}, nil
}

// Export serialises a stored snapshot as JSON.
func (s *Service) Export(ctx context.Context, id string) ([]byte, error) {
	snap, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return Export(snap)
}

// Import parses an exported JSON document, assigns a fresh ID, and stores
// it. The fresh ID avoids collisions with a snapshot exported from this
// same store.
func (s *Service) Import(ctx context.Context, data []byte) (*Snapshot, error) {
	snap, err := ImportSnapshot(data)
	if err != nil {
		return nil, err
	}
	snap.ID = s.cap.ids()
	if err := s.store.Put(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// AutoSave runs one background save pass: capture under an Auto-save label,
// persist, prune both system families. An empty arrangement is a no-op, not
// an error.
func (s *Service) AutoSave(ctx context.Context) error {
	name := AutoSavePrefix + time.Now().Format("2006-01-02 15:04") + ")"
	snap, err := s.cap.Capture(ctx, name)
	if err != nil {
		return err
	}
	if snap.Validate() != nil {
		// Nothing open. Background saves tolerate that quietly.
		return nil
	}
	if err := s.store.Put(ctx, snap); err != nil {
		return err
	}
	if _, err := s.store.Prune(ctx, AutoSavePrefix, s.cfg.Retention.AutoSaveKeep); err != nil {
		return err
	}
	_, err = s.store.Prune(ctx, RecoveryPrefix, s.cfg.Retention.RecoveryKeep)
	return err
}

// RecoverySave persists the current arrangement under a Recovery label.
// Called on shutdown so a crashed or closed browser can be put back.
func (s *Service) RecoverySave(ctx context.Context) error {
	name := RecoveryPrefix + time.Now().Format("2006-01-02 15:04") + ")"
	snap, err := s.cap.Capture(ctx, name)
	if err != nil {
		return err
	}
	if snap.Validate() != nil {
		return nil
	}
	if err := s.store.Put(ctx, snap); err != nil {
		return err
	}
	_, err = s.store.Prune(ctx, RecoveryPrefix, s.cfg.Retention.RecoveryKeep)
	return err
}

// RunAutoSave blocks until ctx is cancelled, running AutoSave at the
// configured interval. Failures are logged and never propagate: a missed
// background save must not take the process down.
func (s *Service) RunAutoSave(ctx context.Context) {
	interval := s.cfg.AutoSave.Interval
	s.log.Info("session: auto-save started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("session: auto-save stopped")
			return
		case <-ticker.C:
			if err := s.AutoSave(ctx); err != nil {
				s.log.Warn("session: auto-save failed", "error", err)
			}
		}
	}
}
