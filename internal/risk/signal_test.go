package risk

import "testing"

func TestParseSignal(t *testing.T) {
	tests := []struct {
		raw   string
		kind  Kind
		value string
	}{
		{"", KindMissing, ""},
		{"   ", KindMissing, ""},
		{"unsupported", KindUnsupported, ""},
		{" Unsupported\t", KindUnsupported, ""},
		{"error", KindError, ""},
		{"ERROR", KindError, ""},
		{"none", KindValue, "none"},
		{"  Intel Inc.~ANGLE ", KindValue, "Intel Inc.~ANGLE"},
		{"unsupported-ish", KindValue, "unsupported-ish"},
	}

	for _, tt := range tests {
		s := ParseSignal(tt.raw)
		if s.Kind() != tt.kind {
			t.Errorf("ParseSignal(%q).Kind() = %s, want %s", tt.raw, s.Kind(), tt.kind)
		}
		if s.Value() != tt.value {
			t.Errorf("ParseSignal(%q).Value() = %q, want %q", tt.raw, s.Value(), tt.value)
		}
	}
}

func TestSignalMatchers(t *testing.T) {
	if !ParseSignal("None").Equals("none") {
		t.Error("Equals should ignore case")
	}
	if ParseSignal("").Equals("") {
		t.Error("missing signal must not equal empty value")
	}
	if !ParseSignal("cores:8_gpu:Unknown").ContainsFold("unknown") {
		t.Error("ContainsFold should ignore case")
	}
	if ParseSignal("error").ContainsFold("err") {
		t.Error("sentinels carry no value text")
	}
	if !ParseSignal("0_false").HasPrefix("0_") {
		t.Error("HasPrefix failed")
	}
	if ParseSignal("10_true").HasPrefix("0_") {
		t.Error("HasPrefix matched a non-prefix")
	}
	if !ParseSignal("error").Is(KindUnsupported, KindError) {
		t.Error("Is should match any listed kind")
	}
}

func TestKindString(t *testing.T) {
	for k, want := range map[Kind]string{
		KindMissing:     "missing",
		KindValue:       "value",
		KindUnsupported: "unsupported",
		KindError:       "error",
		Kind(42):        "unknown",
	} {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
