package fingerprint

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixfinger/sixfinger/internal/pagination"
	"github.com/sixfinger/sixfinger/internal/risk"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func testHash(n int) string {
	return fmt.Sprintf("test_hash_%022d", n)
}

func humanComponents() risk.Components {
	return risk.Components{
		Canvas:     "data:image/png;base64,iVBOR",
		WebGL:      "Google Inc. (NVIDIA)~ANGLE (NVIDIA GeForce RTX 3060)",
		Audio:      "44100_4096",
		Fonts:      "Arial,Helvetica,Times New Roman",
		Hardware:   "cores:12_mem:16_gpu:NVIDIA",
		Screen:     "2560x1440_2560x1400_24",
		Browser:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		Timezone:   "Europe/Berlin_-60",
		Plugins:    "PDF Viewer,Chrome PDF Viewer",
		Touch:      "0_false",
		Battery:    "false_87",
		Network:    "4g_10_50",
		Media:      "audioinput,audiooutput,videoinput",
		ColorDepth: "24_1",
		DoNotTrack: "unknown",
	}
}

func botComponents() risk.Components {
	return risk.Components{
		Canvas:     "unsupported",
		WebGL:      "error",
		Audio:      "unsupported",
		Fonts:      "",
		Hardware:   "cores:unknown",
		Screen:     "800x600_800x600_24",
		Browser:    "HeadlessChrome/120.0",
		Timezone:   "UTC_0",
		Plugins:    "none",
		Touch:      "0_false",
		Battery:    "unsupported",
		Network:    "unsupported",
		Media:      "unsupported",
		ColorDepth: "24_1",
		DoNotTrack: "1",
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingNotifier captures verdicts passed to Notify.
type recordingNotifier struct {
	mu       sync.Mutex
	verdicts []*Fingerprint
	results  []risk.Result
}

func (n *recordingNotifier) Notify(fp *Fingerprint, result risk.Result) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verdicts = append(n.verdicts, fp)
	n.results = append(n.results, result)
}

// memoryCache is an in-process Cache for service tests. beforeSet, when set,
// runs at the start of Set outside the lock.
type memoryCache struct {
	mu          sync.Mutex
	items       map[string]*Assessment
	itemGens    map[string]int64
	gens        map[string]int64
	gets        int
	invalidated []string
	failAll     error
	beforeSet   func()
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		items:    make(map[string]*Assessment),
		itemGens: make(map[string]int64),
		gens:     make(map[string]int64),
	}
}

func (m *memoryCache) Get(_ context.Context, hash string) (*Assessment, int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.failAll != nil {
		return nil, 0, false, m.failAll
	}
	gen := m.gens[hash]
	a, ok := m.items[hash]
	if !ok || m.itemGens[hash] != gen {
		return nil, gen, false, nil
	}
	return a, gen, true, nil
}

func (m *memoryCache) Set(_ context.Context, a *Assessment, gen int64) error {
	if hook := m.beforeSet; hook != nil {
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	m.items[a.Hash] = a
	m.itemGens[a.Hash] = gen
	return nil
}

func (m *memoryCache) Invalidate(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, hash)
	if m.failAll != nil {
		return m.failAll
	}
	m.gens[hash]++
	delete(m.items, hash)
	return nil
}

func newTestService() (*Service, *MemoryStore) {
	store := NewMemoryStore()
	return NewService(store, risk.NewDefaultEngine()), store
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

func TestSubmit_FirstVisit(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	fp, result, err := svc.Submit(ctx, testHash(1), humanComponents())
	require.NoError(t, err)

	assert.Equal(t, testHash(1), fp.Hash)
	assert.Equal(t, 1, fp.VisitCount)
	assert.Equal(t, 2.0, fp.RiskScore) // no_touch only
	assert.False(t, fp.IsBot)
	assert.False(t, fp.FirstSeen.IsZero())
	assert.Equal(t, fp.FirstSeen, fp.LastSeen)
	assert.Equal(t, fp.RiskScore, result.RiskScore)
}

func TestSubmit_RepeatVisitIncrements(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, _, err := svc.Submit(ctx, testHash(2), humanComponents())
	require.NoError(t, err)
	second, _, err := svc.Submit(ctx, testHash(2), humanComponents())
	require.NoError(t, err)

	assert.Equal(t, 1, first.VisitCount)
	assert.Equal(t, 2, second.VisitCount)
	assert.Equal(t, first.FirstSeen, second.FirstSeen)
	assert.False(t, second.LastSeen.Before(first.LastSeen))
}

func TestSubmit_RapidVisitsTurnHumanIntoBot(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	c := humanComponents()
	c.Plugins = "none"
	c.Screen = "1024x768_1024x738_24"
	c.Fonts = ""
	// 2 + 5 + 8 + 10 = 25 before rapid visits.

	var fp *Fingerprint
	var err error
	for i := 0; i < 35; i++ {
		fp, _, err = svc.Submit(ctx, testHash(3), c)
		require.NoError(t, err)
	}

	assert.Equal(t, 35, fp.VisitCount)
	assert.Equal(t, 55.0, fp.RiskScore) // 25 + min(35, 30)
	assert.False(t, fp.IsBot)

	c.DoNotTrack = "1"
	c.Battery = "error"
	fp, _, err = svc.Submit(ctx, testHash(3), c)
	require.NoError(t, err)
	assert.Equal(t, 63.0, fp.RiskScore)
	assert.True(t, fp.IsBot)
}

func TestSubmit_InvalidHash(t *testing.T) {
	svc, _ := newTestService()
	for _, h := range []string{"", "short", testHash(1) + "x"} {
		_, _, err := svc.Submit(context.Background(), h, humanComponents())
		assert.ErrorIs(t, err, ErrInvalidHash, h)
	}
}

func TestSubmit_ConcurrentVisitsAreCounted(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Submit(ctx, testHash(4), humanComponents())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	fp, err := store.Get(ctx, testHash(4))
	require.NoError(t, err)
	assert.Equal(t, n, fp.VisitCount)
}

func TestSubmit_NotifiesAndInvalidates(t *testing.T) {
	notifier := &recordingNotifier{}
	cache := newMemoryCache()
	svc, _ := newTestService()
	svc.WithCache(cache).WithNotifier(notifier)

	_, _, err := svc.Submit(context.Background(), testHash(5), botComponents())
	require.NoError(t, err)

	require.Len(t, notifier.verdicts, 1)
	assert.True(t, notifier.verdicts[0].IsBot)
	assert.True(t, notifier.results[0].Factors.Has(risk.FactorWebGLMissing))
	assert.Equal(t, []string{testHash(5)}, cache.invalidated)
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Get(context.Background(), testHash(99))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssess_ExplainsFactors(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, _, err := svc.Submit(ctx, testHash(6), botComponents())
	require.NoError(t, err)

	a, err := svc.Assess(ctx, testHash(6))
	require.NoError(t, err)

	assert.Equal(t, testHash(6), a.Hash)
	assert.Equal(t, 93.0, a.RiskScore)
	assert.True(t, a.IsBot)
	assert.Equal(t, 0.93, a.Confidence)
	assert.Equal(t, 11, a.Factors.Len())
	assert.False(t, a.Factors.Has(risk.FactorRapidVisits))
}

func TestAssess_UsesLatestComponents(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, _, err := svc.Submit(ctx, testHash(7), botComponents())
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, testHash(7), humanComponents())
	require.NoError(t, err)

	a, err := svc.Assess(ctx, testHash(7))
	require.NoError(t, err)
	assert.Equal(t, 2.0, a.RiskScore)
	assert.Equal(t, []risk.FactorKey{risk.FactorNoTouch}, a.Factors.Keys())
}

func TestAssess_CacheHitSkipsStore(t *testing.T) {
	cache := newMemoryCache()
	svc, _ := newTestService()
	svc.WithCache(cache)
	ctx := context.Background()

	// Seeded entry for a hash the store has never seen.
	cache.items[testHash(8)] = &Assessment{Hash: testHash(8), RiskScore: 42}

	a, err := svc.Assess(ctx, testHash(8))
	require.NoError(t, err)
	assert.Equal(t, 42.0, a.RiskScore)
}

func TestAssess_PopulatesCacheOnMiss(t *testing.T) {
	cache := newMemoryCache()
	svc, _ := newTestService()
	svc.WithCache(cache)
	ctx := context.Background()

	_, _, err := svc.Submit(ctx, testHash(9), botComponents())
	require.NoError(t, err)

	_, err = svc.Assess(ctx, testHash(9))
	require.NoError(t, err)
	require.Contains(t, cache.items, testHash(9))

	// A new visit drops the cached entry.
	_, _, err = svc.Submit(ctx, testHash(9), humanComponents())
	require.NoError(t, err)
	assert.NotContains(t, cache.items, testHash(9))
}

func TestAssess_VisitDuringMissIsNotMasked(t *testing.T) {
	cache := newMemoryCache()
	svc, _ := newTestService()
	svc.WithCache(cache)
	ctx := context.Background()
	hash := testHash(11)

	_, _, err := svc.Submit(ctx, hash, humanComponents())
	require.NoError(t, err)

	// A bot visit lands after Assess read the store but before it writes back.
	cache.beforeSet = func() {
		cache.beforeSet = nil
		_, _, err := svc.Submit(ctx, hash, botComponents())
		require.NoError(t, err)
	}
	first, err := svc.Assess(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, 2.0, first.RiskScore)

	second, err := svc.Assess(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, 93.0, second.RiskScore)
	assert.True(t, second.IsBot)

	// The fresh result is cached under the current generation.
	third, err := svc.Assess(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, 93.0, third.RiskScore)
	assert.Equal(t, int64(2), cache.itemGens[hash])
	assert.Equal(t, 3, cache.gets)
}

func TestAssess_CacheErrorsAreBypassed(t *testing.T) {
	cache := newMemoryCache()
	cache.failAll = fmt.Errorf("connection refused")
	svc, _ := newTestService()
	svc.WithCache(cache)
	ctx := context.Background()

	_, _, err := svc.Submit(ctx, testHash(10), humanComponents())
	require.NoError(t, err)

	a, err := svc.Assess(ctx, testHash(10))
	require.NoError(t, err)
	assert.Equal(t, 2.0, a.RiskScore)
}

func TestEvaluate_Stateless(t *testing.T) {
	svc, store := newTestService()

	r, err := svc.Evaluate(botComponents(), 20)
	require.NoError(t, err)
	assert.Equal(t, 100.0, r.RiskScore)

	page, err := store.List(context.Background(), ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, page)

	_, err = svc.Evaluate(humanComponents(), -1)
	assert.ErrorIs(t, err, risk.ErrInvalidArgument)
}

func TestList_PaginatesAndFilters(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	base := store.now()
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i := 0; i < 5; i++ {
		c := humanComponents()
		if i%2 == 0 {
			c = botComponents()
		}
		_, _, err := svc.Submit(ctx, testHash(100+i), c)
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, 2, "", false)
	require.NoError(t, err)
	require.Len(t, page.Fingerprints, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, testHash(104), page.Fingerprints[0].Hash)
	assert.Equal(t, testHash(103), page.Fingerprints[1].Hash)

	var seen []string
	cursor := ""
	for {
		p, err := svc.List(ctx, 2, cursor, false)
		require.NoError(t, err)
		for _, fp := range p.Fingerprints {
			seen = append(seen, fp.Hash)
		}
		if !p.HasMore {
			break
		}
		cursor = p.NextCursor
	}
	assert.Equal(t, []string{testHash(104), testHash(103), testHash(102), testHash(101), testHash(100)}, seen)

	bots, err := svc.List(ctx, 0, "", true)
	require.NoError(t, err)
	assert.Len(t, bots.Fingerprints, 3)
	for _, fp := range bots.Fingerprints {
		assert.True(t, fp.IsBot)
	}
}

func TestList_InvalidCursor(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.List(context.Background(), 10, "%%%", false)
	assert.ErrorIs(t, err, pagination.ErrInvalidCursor)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	fp, err := store.RecordVisit(ctx, testHash(11), humanComponents(), func(int) (risk.Result, error) {
		return risk.Result{RiskScore: 10}, nil
	})
	require.NoError(t, err)
	fp.VisitCount = 1000

	got, err := store.Get(ctx, testHash(11))
	require.NoError(t, err)
	assert.Equal(t, 1, got.VisitCount)
}

func TestMemoryStore_ScoreErrorLeavesStateUntouched(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.RecordVisit(ctx, testHash(12), humanComponents(), func(int) (risk.Result, error) {
		return risk.Result{}, risk.ErrInvalidArgument
	})
	assert.ErrorIs(t, err, risk.ErrInvalidArgument)

	_, err = store.Get(ctx, testHash(12))
	assert.ErrorIs(t, err, ErrNotFound)
}
