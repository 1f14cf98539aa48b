package feedback

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseKind(t *testing.T) {
	cases := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"positive", KindPositive, false},
		{"negative", KindNegative, false},
		{"refinement", KindRefinement, false},
		{"  Positive ", KindPositive, false},
		{"", "", true},
		{"great", "", true},
		{"positivee", "", true},
	}
	for _, tc := range cases {
		got, err := ParseKind(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseKind(%q): expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseKind(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseKind(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEntryJSONFieldNames(t *testing.T) {
	e := Entry{
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Profile:       "default",
		Context:       "launch day",
		Instruction:   "announce it",
		GeneratedPost: "We shipped.",
		Kind:          KindPositive,
		Text:          "love the brevity",
	}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{
		"timestamp", "profile_name", "original_context", "original_instruction",
		"generated_post", "feedback_type", "feedback_text",
	} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing JSON field %q in %s", key, data)
		}
	}
	// Optional fields stay out of the log when empty.
	for _, key := range []string{"refinement_instruction", "approved_version"} {
		if _, ok := raw[key]; ok {
			t.Errorf("empty field %q should be omitted", key)
		}
	}
}

func TestEntryKeyIsRFC3339Nano(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	e := Entry{Timestamp: ts}
	if got, want := e.Key(), "2026-03-01T12:00:00.123456789Z"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestCanonicalText(t *testing.T) {
	e := Entry{
		Context:               "launch day",
		Instruction:           "announce it",
		GeneratedPost:         "We shipped.",
		Kind:                  KindRefinement,
		Text:                  "too stiff",
		RefinementInstruction: "loosen it up",
	}
	got := e.CanonicalText()
	for _, want := range []string{
		"Context: launch day",
		"Instruction: announce it",
		"Generated: We shipped.",
		"Feedback Type: refinement",
		"Feedback: too stiff",
		"Refinement: loosen it up",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("CanonicalText() missing %q:\n%s", want, got)
		}
	}
}
