package risk

import (
	"encoding/json"
	"fmt"
)

// FactorKey identifies a scoring rule in the factor explanation.
type FactorKey string

const (
	FactorWebGLMissing     FactorKey = "webgl_missing"
	FactorAudioMissing     FactorKey = "audio_missing"
	FactorCanvasMissing    FactorKey = "canvas_missing"
	FactorHardwareUnknown  FactorKey = "hardware_unknown"
	FactorNoPlugins        FactorKey = "no_plugins"
	FactorNoTouch          FactorKey = "no_touch"
	FactorSuspiciousScreen FactorKey = "suspicious_screen"
	FactorBatteryMissing   FactorKey = "battery_missing"
	FactorMediaMissing     FactorKey = "media_missing"
	FactorFontsMissing     FactorKey = "fonts_missing"
	FactorDNTEnabled       FactorKey = "dnt_enabled"
	FactorRapidVisits      FactorKey = "rapid_visits"
)

var factorOrder = []FactorKey{
	FactorWebGLMissing,
	FactorAudioMissing,
	FactorCanvasMissing,
	FactorHardwareUnknown,
	FactorNoPlugins,
	FactorNoTouch,
	FactorSuspiciousScreen,
	FactorBatteryMissing,
	FactorMediaMissing,
	FactorFontsMissing,
	FactorDNTEnabled,
	FactorRapidVisits,
}

// AllFactors returns every factor key in rule order.
func AllFactors() []FactorKey {
	out := make([]FactorKey, len(factorOrder))
	copy(out, factorOrder)
	return out
}

// Valid reports whether k is one of the known factor keys.
func (k FactorKey) Valid() bool {
	for _, f := range factorOrder {
		if f == k {
			return true
		}
	}
	return false
}

// Factors accumulates the rules that fired during one evaluation.
// Binary rules record true; the visit rule records the visit count.
// A key may be recorded at most once.
type Factors struct {
	values map[FactorKey]any
}

func (f *Factors) set(k FactorKey, v any) {
	if !k.Valid() {
		panic(fmt.Sprintf("risk: unknown factor %q", k))
	}
	if f.values == nil {
		f.values = make(map[FactorKey]any, len(factorOrder))
	}
	if _, dup := f.values[k]; dup {
		panic(fmt.Sprintf("risk: factor %q recorded twice", k))
	}
	f.values[k] = v
}

// Flag records a binary factor.
func (f *Factors) Flag(k FactorKey) { f.set(k, true) }

// Count records a counting factor.
func (f *Factors) Count(k FactorKey, n int) { f.set(k, n) }

// Has reports whether k was recorded.
func (f Factors) Has(k FactorKey) bool {
	_, ok := f.values[k]
	return ok
}

// Get returns the recorded value for k.
func (f Factors) Get(k FactorKey) (any, bool) {
	v, ok := f.values[k]
	return v, ok
}

// Len returns the number of recorded factors.
func (f Factors) Len() int { return len(f.values) }

// Keys returns the recorded keys in rule order.
func (f Factors) Keys() []FactorKey {
	keys := make([]FactorKey, 0, len(f.values))
	for _, k := range factorOrder {
		if _, ok := f.values[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Map returns a copy keyed by factor name.
func (f Factors) Map() map[string]any {
	m := make(map[string]any, len(f.values))
	for k, v := range f.values {
		m[string(k)] = v
	}
	return m
}

// MarshalJSON encodes the factors as a flat object.
func (f Factors) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Map())
}

// UnmarshalJSON decodes a flat factor object, rejecting unknown keys.
func (f *Factors) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := Factors{}
	for name, msg := range raw {
		k := FactorKey(name)
		if !k.Valid() {
			return fmt.Errorf("unknown factor %q", name)
		}
		if k == FactorRapidVisits {
			var n int
			if err := json.Unmarshal(msg, &n); err != nil {
				return fmt.Errorf("factor %q: %w", name, err)
			}
			out.Count(k, n)
			continue
		}
		var b bool
		if err := json.Unmarshal(msg, &b); err != nil {
			return fmt.Errorf("factor %q: %w", name, err)
		}
		if b {
			out.Flag(k)
		}
	}
	*f = out
	return nil
}
