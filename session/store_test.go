package session

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tabkeeper/dbopen"
)

func testStore(t *testing.T, opts ...StoreOption) (*Store, *sql.DB) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	return NewStore(db, opts...), db
}

func snapshotWithTab(id, name, url string, ts int64) *Snapshot {
	return &Snapshot{
		ID:        id,
		Name:      name,
		Timestamp: ts,
		Windows: []WindowRecord{
			{OriginalID: 1, Tabs: []TabRecord{{URL: url}}},
		},
	}
}

func TestStorePutGetList(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	older := snapshotWithTab("s1", "first", "https://a.example.com/", 100)
	newer := snapshotWithTab("s2", "second", "https://b.example.com/", 200)
	if err := store.Put(ctx, older); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, newer); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "first" || got.TabCount() != 1 {
		t.Errorf("Get returned %q with %d tabs", got.Name, got.TabCount())
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List returned %d snapshots, want 2", len(list))
	}
	if list[0].ID != "s2" || list[1].ID != "s1" {
		t.Errorf("List order = [%s %s], want newest first", list[0].ID, list[1].ID)
	}
}

func TestStoreGetNotFound(t *testing.T) {
	store, _ := testStore(t)
	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get(missing) = %v, want ErrSessionNotFound", err)
	}
}

func TestStoreRemove(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, snapshotWithTab("s1", "one", "https://a.example.com/", 1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Remove(ctx, "s1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after Remove = %v, want ErrSessionNotFound", err)
	}
	if err := store.Remove(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Remove again = %v, want ErrSessionNotFound", err)
	}
}

func TestStoreRename(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, snapshotWithTab("s1", "old", "https://a.example.com/", 1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Rename(ctx, "s1", "new"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "new" {
		t.Errorf("Name = %q, want %q", got.Name, "new")
	}
	if err := store.Rename(ctx, "nope", "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Rename(nope) = %v, want ErrSessionNotFound", err)
	}
}

func TestStoreQuotaRejectsWithoutWriting(t *testing.T) {
	store, db := testStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, snapshotWithTab("s1", "seed", "https://a.example.com/", 1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	used, err := store.BytesInUse(ctx)
	if err != nil {
		t.Fatalf("BytesInUse: %v", err)
	}
	before, ok, err := store.getKey(ctx, keySessions)
	if err != nil || !ok {
		t.Fatalf("getKey: ok=%v err=%v", ok, err)
	}

	// Ten spare bytes; any snapshot costs far more at two bytes per char.
	tight := NewStore(db, WithQuota(used+10))
	err = tight.Put(ctx, snapshotWithTab("s2", "too big", "https://b.example.com/", 2))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Put over quota = %v, want ErrQuotaExceeded", err)
	}

	after, ok, err := tight.getKey(ctx, keySessions)
	if err != nil || !ok {
		t.Fatalf("getKey: ok=%v err=%v", ok, err)
	}
	if after != before {
		t.Error("stored session list changed despite quota rejection")
	}
}

func TestStoreQuotaAdmitsWithinBudget(t *testing.T) {
	store, _ := testStore(t, WithQuota(1<<20))
	ctx := context.Background()

	if err := store.Put(ctx, snapshotWithTab("s1", "fits", "https://a.example.com/", 1)); err != nil {
		t.Fatalf("Put within quota: %v", err)
	}
	used, err := store.BytesInUse(ctx)
	if err != nil {
		t.Fatalf("BytesInUse: %v", err)
	}
	if used <= 0 {
		t.Errorf("BytesInUse = %d after a write, want > 0", used)
	}
}

func TestStorePutRequiresID(t *testing.T) {
	store, _ := testStore(t)
	snap := snapshotWithTab("", "anonymous", "https://a.example.com/", 1)
	if err := store.Put(context.Background(), snap); err == nil {
		t.Error("Put without ID succeeded, want error")
	}
}
