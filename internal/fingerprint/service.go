package fingerprint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sixfinger/sixfinger/internal/logging"
	"github.com/sixfinger/sixfinger/internal/metrics"
	"github.com/sixfinger/sixfinger/internal/pagination"
	"github.com/sixfinger/sixfinger/internal/risk"
	"github.com/sixfinger/sixfinger/internal/traces"
	"github.com/sixfinger/sixfinger/internal/validation"
)

// Service implements fingerprint visit accounting and scoring.
type Service struct {
	store    Store
	engine   *risk.Engine
	cache    Cache    // optional
	notifier Notifier // optional
}

// NewService creates a new fingerprint service.
func NewService(store Store, engine *risk.Engine) *Service {
	return &Service{store: store, engine: engine}
}

// WithCache enables assessment caching.
func (s *Service) WithCache(c Cache) *Service {
	s.cache = c
	return s
}

// WithNotifier registers a receiver for recorded verdicts.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// Engine returns the scoring engine.
func (s *Service) Engine() *risk.Engine {
	return s.engine
}

// Submit records a visit for hash and scores the submitted components.
func (s *Service) Submit(ctx context.Context, hash string, c risk.Components) (*Fingerprint, risk.Result, error) {
	if !validation.IsValidFingerprintHash(hash) {
		return nil, risk.Result{}, ErrInvalidHash
	}

	ctx, span := traces.StartSpan(ctx, "fingerprint.Submit", traces.FingerprintHash(hash))
	defer span.End()

	var result risk.Result
	fp, err := s.store.RecordVisit(ctx, hash, c, func(visitCount int) (risk.Result, error) {
		r, err := s.engine.Evaluate(c, visitCount)
		if err != nil {
			return risk.Result{}, err
		}
		result = r
		return r, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, risk.Result{}, fmt.Errorf("record visit: %w", err)
	}
	span.SetAttributes(traces.VisitCount(fp.VisitCount), traces.RiskScore(fp.RiskScore), traces.IsBot(fp.IsBot))

	kind := "repeat"
	if fp.VisitCount == 1 {
		kind = "new"
	}
	metrics.SubmissionsTotal.WithLabelValues(kind).Inc()
	observe(result)

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, hash); err != nil {
			logging.L(ctx).Warn("risk cache invalidate failed", "hash", hash, "error", err)
		}
	}
	if s.notifier != nil {
		s.notifier.Notify(fp, result)
	}

	logging.L(ctx).Debug("fingerprint scored",
		"hash", hash,
		"visit_count", fp.VisitCount,
		"risk_score", fp.RiskScore,
		"is_bot", fp.IsBot,
		"factors", strings.Join(factorNames(result.Factors), ","),
	)
	return fp, result, nil
}

// Get returns the stored state of hash.
func (s *Service) Get(ctx context.Context, hash string) (*Fingerprint, error) {
	if !validation.IsValidFingerprintHash(hash) {
		return nil, ErrInvalidHash
	}
	return s.store.Get(ctx, hash)
}

// Assess re-evaluates the stored components of hash at its stored visit
// count. Results are served from the cache when one is configured.
func (s *Service) Assess(ctx context.Context, hash string) (*Assessment, error) {
	if !validation.IsValidFingerprintHash(hash) {
		return nil, ErrInvalidHash
	}

	ctx, span := traces.StartSpan(ctx, "fingerprint.Assess", traces.FingerprintHash(hash))
	defer span.End()

	// gen is read before the store so a Submit landing in between
	// invalidates whatever this call writes back.
	var (
		gen       int64
		cacheable bool
	)
	if s.cache != nil {
		a, g, ok, err := s.cache.Get(ctx, hash)
		switch {
		case err != nil:
			metrics.CacheRequestsTotal.WithLabelValues("error").Inc()
			logging.L(ctx).Warn("risk cache read failed", "hash", hash, "error", err)
		case ok:
			metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
			span.SetAttributes(traces.CacheHit(true))
			return a, nil
		default:
			metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
			gen, cacheable = g, true
		}
	}
	span.SetAttributes(traces.CacheHit(false))

	fp, err := s.store.Get(ctx, hash)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Evaluate(fp.Components, fp.VisitCount)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", hash, err)
	}

	a := &Assessment{
		Hash:       hash,
		RiskScore:  result.RiskScore,
		IsBot:      result.IsBot,
		Confidence: risk.Confidence(result.RiskScore),
		Factors:    result.Factors,
	}

	if cacheable {
		if err := s.cache.Set(ctx, a, gen); err != nil {
			logging.L(ctx).Warn("risk cache write failed", "hash", hash, "error", err)
		}
	}
	return a, nil
}

// Evaluate scores components without recording a visit.
func (s *Service) Evaluate(c risk.Components, visitCount int) (risk.Result, error) {
	result, err := s.engine.Evaluate(c, visitCount)
	if err != nil {
		return risk.Result{}, err
	}
	observe(result)
	return result, nil
}

// List returns fingerprints ordered by most recent visit.
func (s *Service) List(ctx context.Context, limit int, cursor string, botsOnly bool) (*Page, error) {
	cur, err := pagination.Decode(cursor)
	if err != nil {
		return nil, err
	}
	limit = pagination.ClampLimit(limit)

	items, err := s.store.List(ctx, ListOptions{Limit: limit + 1, Cursor: cur, BotsOnly: botsOnly})
	if err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}

	items, next, hasMore := pagination.ComputePage(items, limit, func(fp *Fingerprint) (time.Time, string) {
		return fp.LastSeen, fp.Hash
	})
	if items == nil {
		items = []*Fingerprint{}
	}
	return &Page{Fingerprints: items, NextCursor: next, HasMore: hasMore}, nil
}

func observe(r risk.Result) {
	metrics.ObserveEvaluation(r.RiskScore, r.IsBot, factorNames(r.Factors))
}

func factorNames(f risk.Factors) []string {
	keys := f.Keys()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = string(k)
	}
	return names
}
