package risk

import "strings"

// Kind tags how a probe reported a signal.
type Kind uint8

const (
	KindMissing     Kind = iota // probe never ran (empty)
	KindValue                   // probe returned a descriptive value
	KindUnsupported             // API not available in this browser
	KindError                   // probe ran and failed
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindValue:
		return "value"
	case KindUnsupported:
		return "unsupported"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Signal is a parsed component value. The "unsupported" and "error"
// sentinels are recognized regardless of case and surrounding whitespace.
type Signal struct {
	kind  Kind
	value string
}

// ParseSignal classifies a raw component string.
func ParseSignal(raw string) Signal {
	v := strings.TrimSpace(raw)
	switch {
	case v == "":
		return Signal{kind: KindMissing}
	case strings.EqualFold(v, "unsupported"):
		return Signal{kind: KindUnsupported}
	case strings.EqualFold(v, "error"):
		return Signal{kind: KindError}
	}
	return Signal{kind: KindValue, value: v}
}

// Kind returns the variant of the signal.
func (s Signal) Kind() Kind { return s.kind }

// Value returns the trimmed text of a KindValue signal and "" otherwise.
func (s Signal) Value() string { return s.value }

// Is reports whether the signal is any of the given kinds.
func (s Signal) Is(kinds ...Kind) bool {
	for _, k := range kinds {
		if s.kind == k {
			return true
		}
	}
	return false
}

// Equals reports whether the signal is a value equal to v, ignoring case.
func (s Signal) Equals(v string) bool {
	return s.kind == KindValue && strings.EqualFold(s.value, v)
}

// ContainsFold reports whether the value contains sub, ignoring case.
func (s Signal) ContainsFold(sub string) bool {
	return s.kind == KindValue && strings.Contains(strings.ToLower(s.value), strings.ToLower(sub))
}

// HasPrefix reports whether the value starts with prefix.
func (s Signal) HasPrefix(prefix string) bool {
	return s.kind == KindValue && strings.HasPrefix(s.value, prefix)
}

// Signals is the parsed view of Components that rules match against.
type Signals struct {
	Canvas     Signal
	WebGL      Signal
	Audio      Signal
	Fonts      Signal
	Hardware   Signal
	Screen     Signal
	Browser    Signal
	Timezone   Signal
	Plugins    Signal
	Touch      Signal
	Battery    Signal
	Network    Signal
	Media      Signal
	ColorDepth Signal
	DoNotTrack Signal
}

// Signals parses every component.
func (c Components) Signals() Signals {
	return Signals{
		Canvas:     ParseSignal(c.Canvas),
		WebGL:      ParseSignal(c.WebGL),
		Audio:      ParseSignal(c.Audio),
		Fonts:      ParseSignal(c.Fonts),
		Hardware:   ParseSignal(c.Hardware),
		Screen:     ParseSignal(c.Screen),
		Browser:    ParseSignal(c.Browser),
		Timezone:   ParseSignal(c.Timezone),
		Plugins:    ParseSignal(c.Plugins),
		Touch:      ParseSignal(c.Touch),
		Battery:    ParseSignal(c.Battery),
		Network:    ParseSignal(c.Network),
		Media:      ParseSignal(c.Media),
		ColorDepth: ParseSignal(c.ColorDepth),
		DoNotTrack: ParseSignal(c.DoNotTrack),
	}
}
