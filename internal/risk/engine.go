package risk

import (
	"fmt"
	"math"
	"slices"
)

// Engine evaluates fingerprints against a fixed rule set.
// It is immutable after construction and safe for concurrent use.
type Engine struct {
	rules         []Rule
	visits        VisitRule
	visitsEnabled bool
	botThreshold  float64
	maxScore      float64
}

// NewEngine builds an engine from cfg.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		rules:         buildRules(cfg),
		visits:        cfg.RapidVisits,
		visitsEnabled: !slices.Contains(cfg.Disabled, FactorRapidVisits),
		botThreshold:  cfg.BotThreshold,
		maxScore:      cfg.MaxScore,
	}, nil
}

// NewDefaultEngine builds an engine with DefaultConfig.
func NewDefaultEngine() *Engine {
	e, err := NewEngine(DefaultConfig())
	if err != nil {
		panic("risk: default config invalid: " + err.Error())
	}
	return e
}

// Evaluate scores a fingerprint seen visitCount times.
// It fails only for a negative visit count.
func (e *Engine) Evaluate(c Components, visitCount int) (Result, error) {
	if visitCount < 0 {
		return Result{}, fmt.Errorf("%w: visit count %d is negative", ErrInvalidArgument, visitCount)
	}

	signals := c.Signals()
	var (
		score   float64
		factors Factors
	)
	for _, r := range e.rules {
		if r.Match(signals) {
			score += r.Delta
			factors.Flag(r.Factor)
		}
	}

	if e.visitsEnabled {
		if delta, ok := e.visits.Contribution(visitCount); ok {
			score += delta
			factors.Count(FactorRapidVisits, visitCount)
		}
	}

	score = math.Min(score, e.maxScore)

	return Result{
		RiskScore: score,
		IsBot:     score >= e.botThreshold,
		Factors:   factors,
	}, nil
}

// BotThreshold returns the classification threshold.
func (e *Engine) BotThreshold() float64 { return e.botThreshold }

// MaxScore returns the score cap.
func (e *Engine) MaxScore() float64 { return e.maxScore }

// RuleInfo describes an active rule for introspection.
type RuleInfo struct {
	Factor FactorKey `json:"factor"`
	Delta  float64   `json:"delta"`
	// Set for the visit rule only.
	Threshold int `json:"threshold,omitempty"`
	Cap       int `json:"cap,omitempty"`
}

// Rules lists the active rules in evaluation order.
func (e *Engine) Rules() []RuleInfo {
	out := make([]RuleInfo, 0, len(e.rules)+1)
	for _, r := range e.rules {
		out = append(out, RuleInfo{Factor: r.Factor, Delta: r.Delta})
	}
	if e.visitsEnabled {
		out = append(out, RuleInfo{
			Factor:    FactorRapidVisits,
			Threshold: e.visits.Threshold,
			Cap:       e.visits.Cap,
		})
	}
	return out
}
