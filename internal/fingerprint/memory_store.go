package fingerprint

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/sixfinger/sixfinger/internal/risk"
	"github.com/sixfinger/sixfinger/internal/syncutil"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store using in-memory maps (for demo/testing).
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Fingerprint // hash → fingerprint
	visits  *syncutil.KeyedMutex    // serializes RecordVisit per hash
	now     func() time.Time
}

// NewMemoryStore creates an in-memory fingerprint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Fingerprint),
		visits:  syncutil.NewKeyedMutex(0),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) RecordVisit(ctx context.Context, hash string, c risk.Components, score ScoreFunc) (*Fingerprint, error) {
	unlock, err := s.visits.Lock(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s.mu.RLock()
	existing := s.records[hash]
	s.mu.RUnlock()

	now := s.now()
	fp := &Fingerprint{
		Hash:       hash,
		VisitCount: 1,
		FirstSeen:  now,
		LastSeen:   now,
		Components: c,
	}
	if existing != nil {
		fp.VisitCount = existing.VisitCount + 1
		fp.FirstSeen = existing.FirstSeen
	}

	result, err := score(fp.VisitCount)
	if err != nil {
		return nil, err
	}
	fp.RiskScore = result.RiskScore
	fp.IsBot = result.IsBot

	s.mu.Lock()
	s.records[hash] = fp
	s.mu.Unlock()

	out := *fp
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, hash string) (*Fingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fp, ok := s.records[hash]
	if !ok {
		return nil, ErrNotFound
	}
	out := *fp
	return &out, nil
}

func (s *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Fingerprint, error) {
	s.mu.RLock()
	var result []*Fingerprint
	for _, fp := range s.records {
		if opts.BotsOnly && !fp.IsBot {
			continue
		}
		if c := opts.Cursor; c != nil && !olderThan(fp, c.LastSeen, c.Hash) {
			continue
		}
		out := *fp
		result = append(result, &out)
	}
	s.mu.RUnlock()

	slices.SortFunc(result, func(a, b *Fingerprint) int {
		if olderThan(a, b.LastSeen, b.Hash) {
			return 1
		}
		if olderThan(b, a.LastSeen, a.Hash) {
			return -1
		}
		return 0
	})

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// olderThan reports whether fp sorts after (lastSeen, hash) in descending order.
func olderThan(fp *Fingerprint, lastSeen time.Time, hash string) bool {
	if fp.LastSeen.Equal(lastSeen) {
		return fp.Hash < hash
	}
	return fp.LastSeen.Before(lastSeen)
}
