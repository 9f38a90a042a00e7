package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hazyhaar/tabkeeper/dbopen"
)

// DefaultQuota is the total byte budget of the storage namespace.
const DefaultQuota = 10 << 20 // 10 MiB

// Storage keys within the namespace.
const (
	keySessions = "sessions"
	keyUndo     = "undoHistory"
)

// Schema contains the DDL for the tabkeeper storage namespace: a key-value
// table holding the snapshot list and the undo history as JSON documents.
const Schema = `
CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// Store is the durable snapshot store: a quota-budgeted key-value namespace
// over SQLite. Sizes are estimated at two bytes per character, modelling a
// 16-bit-per-character encoding of the stored documents.
//
// Read-modify-write cycles on a key are serialized by an internal mutex, and
// each write is a single transaction: either the full updated list persists
// or the prior list is left untouched.
type Store struct {
	db    *sql.DB
	quota int64
	log   *slog.Logger
	mu    sync.Mutex
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithQuota overrides the byte budget. Default: DefaultQuota.
func WithQuota(n int64) StoreOption { return func(s *Store) { s.quota = n } }

// WithStoreLogger overrides the default slog logger.
func WithStoreLogger(log *slog.Logger) StoreOption { return func(s *Store) { s.log = log } }

// NewStore wraps an open database (schema already applied) as a Store.
// Intended for tests with dbopen.OpenMemory.
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{db: db, quota: DefaultQuota, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OpenStore opens (or creates) the tabkeeper database at path with the
// standard pragmas and schema.
func OpenStore(path string, opts ...StoreOption) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, err
	}
	return NewStore(db, opts...), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Quota returns the configured total byte budget.
func (s *Store) Quota() int64 { return s.quota }

// BytesInUse returns the estimated bytes consumed by the whole namespace.
func (s *Store) BytesInUse(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(value) * 2), 0) FROM kv`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("session: bytes in use: %w", err)
	}
	return n, nil
}

// Put appends a snapshot to the stored list. If the snapshot's estimated
// size does not fit in quota − bytesInUse the write fails with
// ErrQuotaExceeded and nothing is persisted.
func (s *Store) Put(ctx context.Context, snap *Snapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("session: put: snapshot has no ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("session: put: marshal: %w", err)
	}
	estimate := int64(len(snapJSON)) * 2

	used, err := s.BytesInUse(ctx)
	if err != nil {
		return err
	}
	if used+estimate > s.quota {
		return fmt.Errorf("%w: need %d bytes, %d of %d in use",
			ErrQuotaExceeded, estimate, used, s.quota)
	}

	list, err := s.readSessions(ctx)
	if err != nil {
		return err
	}
	list = append(list, snap)
	return s.writeSessions(ctx, list)
}

// List returns all stored snapshots sorted by timestamp descending.
func (s *Store) List(ctx context.Context) ([]*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.readSessions(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Timestamp > list[j].Timestamp
	})
	return list, nil
}

// Get returns the snapshot with the given ID, or ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.readSessions(ctx)
	if err != nil {
		return nil, err
	}
	for _, snap := range list {
		if snap.ID == id {
			return snap, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

// Remove deletes the snapshot with the given ID.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.readSessions(ctx)
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, snap := range list {
		if snap.ID != id {
			kept = append(kept, snap)
		}
	}
	if len(kept) == len(list) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.writeSessions(ctx, kept)
}

// Rename changes the human label of the snapshot with the given ID.
func (s *Store) Rename(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.readSessions(ctx)
	if err != nil {
		return err
	}
	for _, snap := range list {
		if snap.ID == id {
			snap.Name = name
			return s.writeSessions(ctx, list)
		}
	}
	return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

// ---------- key-value internals ----------

func (s *Store) readSessions(ctx context.Context) ([]*Snapshot, error) {
	raw, ok, err := s.getKey(ctx, keySessions)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var list []*Snapshot
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("session: corrupt %s key: %w", keySessions, err)
	}
	return list, nil
}

func (s *Store) writeSessions(ctx context.Context, list []*Snapshot) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("session: marshal %s: %w", keySessions, err)
	}
	return s.setKey(ctx, keySessions, string(data))
}

func (s *Store) readUndo(ctx context.Context) ([]*UndoEntry, error) {
	raw, ok, err := s.getKey(ctx, keyUndo)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var list []*UndoEntry
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("session: corrupt %s key: %w", keyUndo, err)
	}
	return list, nil
}

func (s *Store) writeUndo(ctx context.Context, list []*UndoEntry) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("session: marshal %s: %w", keyUndo, err)
	}
	return s.setKey(ctx, keyUndo, string(data))
}

func (s *Store) getKey(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("session: get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) setKey(ctx context.Context, key, value string) error {
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, unixepoch() * 1000)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value)
		if err != nil {
			return fmt.Errorf("session: set %s: %w", key, err)
		}
		return nil
	})
}
