// Package fingerprint tracks browser fingerprints across visits.
//
// Each submission increments the visit count for its hash, re-scores the
// latest components with the risk engine and stores the verdict. Lookups
// read the stored verdict; risk-score lookups re-evaluate the stored
// components to explain which factors fired.
//
// Flow:
//  1. Client posts {hash, components} → visit recorded, score persisted
//  2. Cached assessment for the hash is invalidated
//  3. Verdict is pushed to realtime subscribers
//  4. GET /risk-score/:hash → cache, else store + engine
package fingerprint

import (
	"context"
	"errors"
	"time"

	"github.com/sixfinger/sixfinger/internal/pagination"
	"github.com/sixfinger/sixfinger/internal/risk"
)

var (
	ErrNotFound       = errors.New("fingerprint not found")
	ErrInvalidHash    = errors.New("hash must be exactly 32 characters")
	ErrMissingPayload = errors.New("components are required")
)

// Fingerprint is the persisted state of one hash.
type Fingerprint struct {
	Hash       string          `json:"hash"`
	RiskScore  float64         `json:"risk_score"`
	IsBot      bool            `json:"is_bot"`
	VisitCount int             `json:"visit_count"`
	FirstSeen  time.Time       `json:"first_seen"`
	LastSeen   time.Time       `json:"last_seen"`
	Components risk.Components `json:"-"` // latest submission
}

// Assessment explains the current score of a stored fingerprint.
type Assessment struct {
	Hash       string       `json:"hash"`
	RiskScore  float64      `json:"risk_score"`
	IsBot      bool         `json:"is_bot"`
	Confidence float64      `json:"confidence"`
	Factors    risk.Factors `json:"factors"`
}

// SubmitRequest is the request body for POST /v1/fingerprint.
type SubmitRequest struct {
	Hash       string           `json:"hash"`
	Components *risk.Components `json:"components"`
}

// SubmitResponse is returned after a visit is recorded.
type SubmitResponse struct {
	Hash       string    `json:"hash"`
	RiskScore  float64   `json:"risk_score"`
	IsBot      bool      `json:"is_bot"`
	VisitCount int       `json:"visit_count"`
	FirstSeen  time.Time `json:"first_seen"`
}

// EvaluateRequest is the request body for POST /v1/evaluate.
// VisitCount defaults to 1.
type EvaluateRequest struct {
	Components risk.Components `json:"components"`
	VisitCount *int            `json:"visit_count"`
}

// Page is one page of a listing.
type Page struct {
	Fingerprints []*Fingerprint `json:"fingerprints"`
	NextCursor   string         `json:"next_cursor,omitempty"`
	HasMore      bool           `json:"has_more"`
}

// ListOptions filters and positions a listing ordered by last_seen desc.
type ListOptions struct {
	Limit    int
	Cursor   *pagination.Cursor
	BotsOnly bool
}

// ScoreFunc scores the components being recorded at the given visit count.
type ScoreFunc func(visitCount int) (risk.Result, error)

// Store persists fingerprints.
type Store interface {
	// RecordVisit increments the visit count for hash (1 when new), stores
	// c as the latest components, and persists the result of score. Visits
	// to the same hash are serialized.
	RecordVisit(ctx context.Context, hash string, c risk.Components, score ScoreFunc) (*Fingerprint, error)
	Get(ctx context.Context, hash string) (*Fingerprint, error)
	// List returns up to opts.Limit fingerprints after opts.Cursor.
	List(ctx context.Context, opts ListOptions) ([]*Fingerprint, error)
}

// Cache holds assessments between submissions.
type Cache interface {
	// Get returns the cached assessment and the current generation of hash.
	Get(ctx context.Context, hash string) (a *Assessment, gen int64, ok bool, err error)
	// Set stores a under gen. Entries stored under a stale gen are never served.
	Set(ctx context.Context, a *Assessment, gen int64) error
	// Invalidate advances the generation of hash.
	Invalidate(ctx context.Context, hash string) error
}

// Notifier receives every recorded verdict.
type Notifier interface {
	Notify(fp *Fingerprint, result risk.Result)
}
