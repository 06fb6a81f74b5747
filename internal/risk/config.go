package risk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Default scoring parameters.
const (
	DefaultBotThreshold         = 60.0
	DefaultMaxScore             = 100.0
	DefaultRapidVisitsThreshold = 10
	DefaultRapidVisitsCap       = 30
)

// DefaultWeights is the score delta of every signal rule.
var DefaultWeights = map[FactorKey]float64{
	FactorWebGLMissing:     15,
	FactorAudioMissing:     10,
	FactorCanvasMissing:    15,
	FactorHardwareUnknown:  10,
	FactorNoPlugins:        5,
	FactorNoTouch:          2,
	FactorSuspiciousScreen: 8,
	FactorBatteryMissing:   5,
	FactorMediaMissing:     10,
	FactorFontsMissing:     10,
	FactorDNTEnabled:       3,
}

// Config tunes the engine without touching rule logic.
type Config struct {
	// BotThreshold is the score at or above which a fingerprint is a bot.
	BotThreshold float64
	// MaxScore caps the accumulated score.
	MaxScore float64
	// RapidVisits scores repeat visits.
	RapidVisits VisitRule
	// Weights is the delta of each signal rule. Missing keys score 0.
	Weights map[FactorKey]float64
	// Disabled rules never fire. May include FactorRapidVisits.
	Disabled []FactorKey
}

// DefaultConfig returns the production rule table.
func DefaultConfig() Config {
	weights := make(map[FactorKey]float64, len(DefaultWeights))
	for k, v := range DefaultWeights {
		weights[k] = v
	}
	return Config{
		BotThreshold: DefaultBotThreshold,
		MaxScore:     DefaultMaxScore,
		RapidVisits: VisitRule{
			Threshold: DefaultRapidVisitsThreshold,
			Cap:       DefaultRapidVisitsCap,
		},
		Weights: weights,
	}
}

// Validate checks thresholds, weights and factor names.
func (c Config) Validate() error {
	if !finite(c.MaxScore) || c.MaxScore <= 0 || c.MaxScore > DefaultMaxScore {
		return fmt.Errorf("%w: max_score must be in (0, %g]", ErrInvalidConfig, DefaultMaxScore)
	}
	if !finite(c.BotThreshold) || c.BotThreshold <= 0 || c.BotThreshold > c.MaxScore {
		return fmt.Errorf("%w: bot_threshold must be in (0, %g]", ErrInvalidConfig, c.MaxScore)
	}
	if c.RapidVisits.Threshold < 0 || c.RapidVisits.Cap < 0 {
		return fmt.Errorf("%w: rapid_visits threshold and cap must not be negative", ErrInvalidConfig)
	}
	for k, w := range c.Weights {
		if k == FactorRapidVisits {
			return fmt.Errorf("%w: %s is configured under rapid_visits, not weights", ErrInvalidConfig, k)
		}
		if !k.Valid() {
			return fmt.Errorf("%w: unknown factor %q", ErrInvalidConfig, k)
		}
		if !finite(w) || w < 0 {
			return fmt.Errorf("%w: weight for %s must be a finite non-negative number", ErrInvalidConfig, k)
		}
	}
	for _, k := range c.Disabled {
		if !k.Valid() {
			return fmt.Errorf("%w: unknown disabled factor %q", ErrInvalidConfig, k)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// fileConfig mirrors the YAML layout. Pointers distinguish "absent" from zero.
type fileConfig struct {
	BotThreshold *float64 `yaml:"bot_threshold"`
	MaxScore     *float64 `yaml:"max_score"`
	RapidVisits  *struct {
		Threshold *int `yaml:"threshold"`
		Cap       *int `yaml:"cap"`
	} `yaml:"rapid_visits"`
	Weights  map[string]float64 `yaml:"weights"`
	Disabled []string           `yaml:"disabled"`
}

// ParseConfig overlays a YAML document onto DefaultConfig.
//
//	bot_threshold: 55
//	rapid_visits: {threshold: 20, cap: 25}
//	weights:
//	  no_touch: 0
//	disabled: [dnt_enabled]
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if fc.BotThreshold != nil {
		cfg.BotThreshold = *fc.BotThreshold
	}
	if fc.MaxScore != nil {
		cfg.MaxScore = *fc.MaxScore
	}
	if fc.RapidVisits != nil {
		if fc.RapidVisits.Threshold != nil {
			cfg.RapidVisits.Threshold = *fc.RapidVisits.Threshold
		}
		if fc.RapidVisits.Cap != nil {
			cfg.RapidVisits.Cap = *fc.RapidVisits.Cap
		}
	}
	for name, w := range fc.Weights {
		cfg.Weights[FactorKey(name)] = w
	}
	for _, name := range fc.Disabled {
		cfg.Disabled = append(cfg.Disabled, FactorKey(name))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML rule file. An empty path yields DefaultConfig.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return Config{}, fmt.Errorf("read risk config: %w", err)
	}
	return ParseConfig(data)
}
