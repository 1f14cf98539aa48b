// Package composer assembles the prompts sent to the language model:
// style-grounded generation prompts, their feedback-aware variant, and
// the single-shot refinement prompt.
package composer

import (
	"fmt"
	"strings"

	"github.com/kalambet/quill/internal/feedback"
)

// DefaultInstruction is used when the caller gives no instruction.
const DefaultInstruction = "Write in your authentic style."

// FeedbackSet holds the retrieved feedback entries for one generation,
// already filtered by kind.
type FeedbackSet struct {
	Positive   []feedback.Entry
	Negative   []feedback.Entry
	Refinement []feedback.Entry
}

// Empty reports whether the set contains no entries at all.
func (f FeedbackSet) Empty() bool {
	return len(f.Positive) == 0 && len(f.Negative) == 0 && len(f.Refinement) == 0
}

// GenerationPrompt renders the plain generation prompt: style exemplars,
// topic context, and instruction, with rules that keep the model's output
// to the post text alone.
func GenerationPrompt(exemplars []string, context, instruction string) string {
	var sb strings.Builder
	sb.WriteString("You are an AI assistant helping to write posts in the author's authentic voice and style.\n\n")
	sb.WriteString("Here are some examples of the author's writing style:\n\n")
	sb.WriteString(formatExemplars(exemplars))
	sb.WriteString("\n\nNow, create a post about the following topic:\n\n")
	fmt.Fprintf(&sb, "Context: %s\n\n", context)
	fmt.Fprintf(&sb, "Additional Instructions: %s\n\n", orDefault(instruction))
	sb.WriteString(`CRITICAL INSTRUCTIONS:
- Write ONLY the post content
- Do NOT include any explanations, analysis, or meta-commentary
- Do NOT mention voice analysis or style matching
- Do NOT start with phrases like "Here's a post that..."
- Write as if you ARE the user posting directly

Post:`)
	return sb.String()
}

// FeedbackAwarePrompt renders the generation prompt with the feedback
// block inserted between the style exemplars and the topic. An empty set
// yields the same prompt as GenerationPrompt.
func FeedbackAwarePrompt(exemplars []string, context, instruction string, fs FeedbackSet) string {
	if fs.Empty() {
		return GenerationPrompt(exemplars, context, instruction)
	}

	var sb strings.Builder
	sb.WriteString("You are an AI assistant helping to write posts in the author's authentic voice and style.\n\n")
	sb.WriteString("Here are some examples of the author's writing style:\n\n")
	sb.WriteString(formatExemplars(exemplars))
	sb.WriteString("\n")
	sb.WriteString(FeedbackBlock(fs))
	sb.WriteString("\nNow, create a post about the following topic:\n\n")
	fmt.Fprintf(&sb, "Context: %s\n\n", context)
	fmt.Fprintf(&sb, "Additional Instructions: %s\n\n", orDefault(instruction))
	sb.WriteString(`CRITICAL INSTRUCTIONS:
- Write ONLY the post content
- Do NOT include any explanations, analysis, or meta-commentary
- Do NOT mention feedback patterns or voice analysis
- Do NOT start with phrases like "Here's a post that..."
- Write as if you ARE the user posting directly

Post:`)
	return sb.String()
}

// FeedbackBlock renders the retrieved feedback as a directive block.
// Sections appear in a fixed order and are omitted when empty. Feedback
// text is read from the structured entries, never re-parsed from a
// flattened rendering.
func FeedbackBlock(fs FeedbackSet) string {
	if fs.Empty() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\nBased on previous user feedback for similar content:\n")

	if len(fs.Positive) > 0 {
		sb.WriteString("\nPOSITIVE PATTERNS TO FOLLOW:\n")
		for i, e := range fs.Positive {
			fmt.Fprintf(&sb, "   %d. %s\n", i+1, e.Text)
		}
	}
	if len(fs.Negative) > 0 {
		sb.WriteString("\nNEGATIVE PATTERNS TO AVOID:\n")
		for i, e := range fs.Negative {
			fmt.Fprintf(&sb, "   %d. %s\n", i+1, e.Text)
		}
	}
	if len(fs.Refinement) > 0 {
		sb.WriteString("\nREFINEMENT SUGGESTIONS TO CONSIDER:\n")
		for i, e := range fs.Refinement {
			if e.RefinementInstruction != "" {
				fmt.Fprintf(&sb, "   %d. %s -> %s\n", i+1, e.Text, e.RefinementInstruction)
			} else {
				fmt.Fprintf(&sb, "   %d. %s\n", i+1, e.Text)
			}
		}
	}

	sb.WriteString("\nIMPORTANT: Use the positive patterns, avoid the negative patterns, and consider the refinement suggestions when generating the post.\n")
	return sb.String()
}

// RefinePrompt renders the single-shot refinement prompt that rewrites an
// existing post against one piece of feedback.
func RefinePrompt(originalPost, feedbackText, context string) string {
	var sb strings.Builder
	sb.WriteString("You are helping to refine a post based on user feedback.\n\n")
	fmt.Fprintf(&sb, "Original Post:\n%s\n\n", originalPost)
	fmt.Fprintf(&sb, "User Feedback:\n%s\n\n", feedbackText)
	fmt.Fprintf(&sb, "Context: %s\n\n", context)
	sb.WriteString(`CRITICAL INSTRUCTIONS:
- Revise the post incorporating the feedback
- Write ONLY the revised post content
- Do NOT include explanations or meta-commentary
- Do NOT mention the revision process
- Write as if you ARE the user posting directly

Revised Post:`)
	return sb.String()
}

func formatExemplars(exemplars []string) string {
	parts := make([]string, 0, len(exemplars))
	for i, ex := range exemplars {
		ex = strings.TrimSpace(ex)
		if ex == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("Example %d:\n%s", i+1, ex))
	}
	return strings.Join(parts, "\n\n")
}

func orDefault(instruction string) string {
	if strings.TrimSpace(instruction) == "" {
		return DefaultInstruction
	}
	return instruction
}
