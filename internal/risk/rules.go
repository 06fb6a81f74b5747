package risk

import "strings"

// Rule is a declarative scoring rule over the parsed signals.
type Rule struct {
	Factor FactorKey
	Delta  float64
	Match  func(Signals) bool
}

// VisitRule scores repeat visits. Visit counts above Threshold add
// min(visitCount, Cap) to the score.
type VisitRule struct {
	Threshold int `yaml:"threshold" json:"threshold"`
	Cap       int `yaml:"cap" json:"cap"`
}

// Contribution returns the score delta for visitCount and whether the rule fired.
func (v VisitRule) Contribution(visitCount int) (float64, bool) {
	if visitCount <= v.Threshold {
		return 0, false
	}
	return float64(min(visitCount, v.Cap)), true
}

// suspiciousResolutions are screen sizes typical of headless defaults.
var suspiciousResolutions = []string{"800x600", "1024x768"}

// matchers holds the trigger condition for every signal rule.
var matchers = map[FactorKey]func(Signals) bool{
	FactorWebGLMissing: func(s Signals) bool {
		return s.WebGL.Is(KindUnsupported, KindError)
	},
	FactorAudioMissing: func(s Signals) bool {
		return s.Audio.Is(KindUnsupported, KindError)
	},
	FactorCanvasMissing: func(s Signals) bool {
		return s.Canvas.Is(KindUnsupported, KindError)
	},
	FactorHardwareUnknown: func(s Signals) bool {
		return s.Hardware.ContainsFold("unknown")
	},
	FactorNoPlugins: func(s Signals) bool {
		return s.Plugins.Equals("none") || s.Plugins.Is(KindError, KindMissing)
	},
	FactorNoTouch: func(s Signals) bool {
		return s.Touch.HasPrefix("0_")
	},
	FactorSuspiciousScreen: func(s Signals) bool {
		if s.Screen.Kind() != KindValue {
			return false
		}
		for _, res := range suspiciousResolutions {
			if strings.Contains(s.Screen.Value(), res) {
				return true
			}
		}
		return false
	},
	FactorBatteryMissing: func(s Signals) bool {
		return s.Battery.Is(KindUnsupported, KindError)
	},
	FactorMediaMissing: func(s Signals) bool {
		return s.Media.Is(KindUnsupported, KindError, KindMissing)
	},
	FactorFontsMissing: func(s Signals) bool {
		return s.Fonts.Is(KindMissing, KindUnsupported)
	},
	FactorDNTEnabled: func(s Signals) bool {
		return s.DoNotTrack.Equals("1")
	},
}

// buildRules turns the weight table into the ordered rule list.
func buildRules(cfg Config) []Rule {
	disabled := make(map[FactorKey]bool, len(cfg.Disabled))
	for _, k := range cfg.Disabled {
		disabled[k] = true
	}

	rules := make([]Rule, 0, len(matchers))
	for _, k := range factorOrder {
		match, ok := matchers[k]
		if !ok || disabled[k] {
			continue
		}
		rules = append(rules, Rule{Factor: k, Delta: cfg.Weights[k], Match: match})
	}
	return rules
}
