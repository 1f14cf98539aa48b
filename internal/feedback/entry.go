package feedback

import (
	"fmt"
	"strings"
	"time"
)

// Kind classifies a user's reaction to a generated post. The enumeration
// is closed: unknown kinds are rejected at every boundary.
type Kind string

const (
	KindPositive   Kind = "positive"
	KindNegative   Kind = "negative"
	KindRefinement Kind = "refinement"
)

// Kinds lists all valid kinds in their canonical prompt-section order.
var Kinds = []Kind{KindPositive, KindNegative, KindRefinement}

// Valid reports whether k is one of the enumerated kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindPositive, KindNegative, KindRefinement:
		return true
	}
	return false
}

// ParseKind validates a raw kind string from an external boundary.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Entry is a durable record of a user's reaction to one generated post.
// Entries are append-only: once stored they are never mutated or deleted.
type Entry struct {
	Timestamp             time.Time `json:"timestamp"`
	Profile               string    `json:"profile_name"`
	Context               string    `json:"original_context"`
	Instruction           string    `json:"original_instruction"`
	GeneratedPost         string    `json:"generated_post"`
	Kind                  Kind      `json:"feedback_type"`
	Text                  string    `json:"feedback_text"`
	RefinementInstruction string    `json:"refinement_instruction,omitempty"`
	ApprovedVersion       string    `json:"approved_version,omitempty"`
}

// Key identifies the entry within its profile. Timestamps are strictly
// increasing per profile (enforced by Store), so the formatted timestamp
// is unique.
func (e Entry) Key() string {
	return e.Timestamp.UTC().Format(time.RFC3339Nano)
}

// CanonicalText renders the entry into the flattened form used as
// embedding input. It is never parsed back; prompt assembly reads the
// structured fields directly.
func (e Entry) CanonicalText() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Context: %s\n", e.Context)
	fmt.Fprintf(&sb, "Instruction: %s\n", e.Instruction)
	fmt.Fprintf(&sb, "Generated: %s\n", e.GeneratedPost)
	fmt.Fprintf(&sb, "Feedback Type: %s\n", e.Kind)
	fmt.Fprintf(&sb, "Feedback: %s\n", e.Text)
	fmt.Fprintf(&sb, "Refinement: %s", e.RefinementInstruction)
	return sb.String()
}
