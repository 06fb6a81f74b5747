// Package risk implements the fingerprint risk-scoring engine.
//
// Every evaluation runs a fixed set of declarative rules over the 15
// browser signals of a fingerprint plus its visit count. Each triggered
// rule adds its delta to an additive score that is clamped to MaxScore;
// fingerprints at or above the bot threshold are classified as bots.
// The engine holds no mutable state and performs no I/O.
package risk

import (
	"errors"
	"math"
)

// Errors
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidConfig   = errors.New("invalid risk configuration")
)

// Components is the raw telemetry reported by the browser probe.
// Any field may be empty; an empty field means the probe never ran.
type Components struct {
	Canvas     string `json:"canvas"`
	WebGL      string `json:"webgl"`
	Audio      string `json:"audio"`
	Fonts      string `json:"fonts"`
	Hardware   string `json:"hardware"`
	Screen     string `json:"screen"`
	Browser    string `json:"browser"`
	Timezone   string `json:"timezone"`
	Plugins    string `json:"plugins"`
	Touch      string `json:"touch"`
	Battery    string `json:"battery"`
	Network    string `json:"network"`
	Media      string `json:"media"`
	ColorDepth string `json:"colorDepth"`
	DoNotTrack string `json:"doNotTrack"`
}

// Result is the outcome of a single evaluation.
type Result struct {
	RiskScore float64 `json:"risk_score"`
	IsBot     bool    `json:"is_bot"`
	Factors   Factors `json:"factors"`
}

// Confidence maps a risk score onto [0, 1] for display.
func Confidence(riskScore float64) float64 {
	return math.Min(riskScore/100.0, 1.0)
}
