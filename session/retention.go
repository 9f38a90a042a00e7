package session

import (
	"context"
	"sort"
	"strings"
)

// Prune deletes stored snapshots whose name starts with prefix, keeping the
// newest maxCount by timestamp. It returns how many were removed. Applied
// independently per prefix family; snapshots that do not match the prefix
// (user-named sessions) are never touched. Calling it again immediately is
// a no-op.
func (s *Store) Prune(ctx context.Context, prefix string, maxCount int) (int, error) {
	if maxCount < 0 {
		maxCount = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.readSessions(ctx)
	if err != nil {
		return 0, err
	}

	var family []*Snapshot
	for _, snap := range list {
		if strings.HasPrefix(snap.Name, prefix) {
			family = append(family, snap)
		}
	}
	if len(family) <= maxCount {
		return 0, nil
	}

	sort.SliceStable(family, func(i, j int) bool {
		return family[i].Timestamp > family[j].Timestamp
	})
	evict := make(map[string]bool, len(family)-maxCount)
	for _, snap := range family[maxCount:] {
		evict[snap.ID] = true
	}

	kept := list[:0]
	for _, snap := range list {
		if !evict[snap.ID] {
			kept = append(kept, snap)
		}
	}
	if err := s.writeSessions(ctx, kept); err != nil {
		return 0, err
	}
	return len(evict), nil
}
