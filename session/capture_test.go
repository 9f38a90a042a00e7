package session

import (
	"context"
	"testing"

	"github.com/hazyhaar/tabkeeper/browser"
)

func TestCaptureSkipsInternalPages(t *testing.T) {
	env := newFakeEnv()
	env.addWindow("chrome://settings", "about:blank")
	win := env.addWindow("https://a.example.com/", "chrome://history")

	cap := NewCapturer(env, nil)
	snap, err := cap.Capture(context.Background(), "test")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	// The internal-only window contributes zero tabs and is omitted.
	if len(snap.Windows) != 1 {
		t.Fatalf("captured %d windows, want 1", len(snap.Windows))
	}
	if snap.Windows[0].OriginalID != win {
		t.Errorf("captured window %d, want %d", snap.Windows[0].OriginalID, win)
	}
	if snap.TabCount() != 1 || snap.Windows[0].Tabs[0].URL != "https://a.example.com/" {
		t.Errorf("captured tabs = %+v, want only the https tab", snap.Windows[0].Tabs)
	}
}

func TestCaptureRecordsAttributes(t *testing.T) {
	env := newFakeEnv()
	win := env.addWindow("https://a.example.com/", "https://b.example.com/")
	tabs, _ := env.Tabs(context.Background(), win)
	pinned, active := true, true
	env.UpdateTab(context.Background(), tabs[0].ID, browser.TabUpdate{Pinned: &pinned})
	env.UpdateTab(context.Background(), tabs[1].ID, browser.TabUpdate{Active: &active})

	cap := NewCapturer(env, nil)
	snap, err := cap.Capture(context.Background(), "attrs")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if snap.TabCount() != 2 {
		t.Fatalf("captured %d tabs, want 2", snap.TabCount())
	}

	byURL := make(map[string]TabRecord)
	for _, rec := range snap.Windows[0].Tabs {
		byURL[rec.URL] = rec
	}
	if !byURL["https://a.example.com/"].Pinned {
		t.Error("pinned flag lost")
	}
	if !byURL["https://b.example.com/"].Active {
		t.Error("active flag lost")
	}
}

func TestCaptureUsesPendingURLWhileLoading(t *testing.T) {
	env := newFakeEnv()
	env.pendingOnly = true
	env.CreateWindow(context.Background(), "https://loading.example.com/")

	cap := NewCapturer(env, nil)
	snap, err := cap.Capture(context.Background(), "loading")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if snap.TabCount() != 1 {
		t.Fatalf("captured %d tabs, want 1", snap.TabCount())
	}
	if got := snap.Windows[0].Tabs[0].URL; got != "https://loading.example.com/" {
		t.Errorf("recorded URL = %q, want the pending URL", got)
	}
}

func TestCaptureGroupMetadataFetchedOnce(t *testing.T) {
	env := newFakeEnv()
	win := env.addWindow("https://a.example.com/", "https://b.example.com/", "https://c.example.com/")
	tabs, _ := env.Tabs(context.Background(), win)
	gid := env.addGroup(win, "Work", "blue", false, tabs[0].ID, tabs[1].ID, tabs[2].ID)

	cap := NewCapturer(env, nil)
	snap, err := cap.Capture(context.Background(), "memo")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	if got := env.groupInfoCalls[gid]; got != 1 {
		t.Errorf("GroupInfo called %d times for one group, want 1", got)
	}
	if len(snap.Groups) != 1 {
		t.Fatalf("captured %d groups, want 1", len(snap.Groups))
	}
	g := snap.Groups[0]
	if g.Title != "Work" || g.Color != "blue" {
		t.Errorf("group = %q/%q, want Work/blue", g.Title, g.Color)
	}
	if len(g.TabURLs) != 3 {
		t.Errorf("group membership has %d URLs, want 3", len(g.TabURLs))
	}
}

func TestCaptureGroupFailureSkipsGroupNotTabs(t *testing.T) {
	env := newFakeEnv()
	win := env.addWindow("https://a.example.com/", "https://b.example.com/")
	tabs, _ := env.Tabs(context.Background(), win)
	gid := env.addGroup(win, "Broken", "red", false, tabs[0].ID, tabs[1].ID)
	env.failGroupInfo[gid] = true

	cap := NewCapturer(env, nil)
	snap, err := cap.Capture(context.Background(), "partial")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	if env.groupInfoCalls[gid] != 1 {
		t.Errorf("failed group queried %d times, want 1 (failures memoized too)", env.groupInfoCalls[gid])
	}
	if len(snap.Groups) != 0 {
		t.Errorf("captured %d groups from a failing group, want 0", len(snap.Groups))
	}
	if snap.TabCount() != 2 {
		t.Errorf("captured %d tabs, want 2: a group failure must not drop its tabs", snap.TabCount())
	}
	for _, rec := range snap.Windows[0].Tabs {
		if rec.OriginalGroupID != "" {
			t.Errorf("tab %q still references the failed group", rec.URL)
		}
	}
}

func TestCaptureEmptyEnvironmentFailsValidation(t *testing.T) {
	env := newFakeEnv()
	cap := NewCapturer(env, nil)
	snap, err := cap.Capture(context.Background(), "empty")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if err := snap.Validate(); err == nil {
		t.Error("empty snapshot passed validation")
	}
}
