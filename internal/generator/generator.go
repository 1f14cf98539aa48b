// Package generator orchestrates draft generation: style exemplar lookup,
// feedback retrieval, prompt assembly, and the model call, with graceful
// degradation to a feedback-free prompt when the feedback path fails.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/quill/internal/composer"
	"github.com/kalambet/quill/internal/feedback"
)

// ExemplarSource serves style exemplars for a context. Implemented by
// styleindex.Manager.
type ExemplarSource interface {
	Exemplars(ctx context.Context, profile, contextText string, k int) ([]string, error)
}

// FeedbackSource serves kind-filtered relevant feedback. Implemented by
// feedback.Store.
type FeedbackSource interface {
	Relevant(ctx context.Context, profile, query string, kind feedback.Kind, k int) ([]feedback.Entry, error)
}

// TextGenerator turns a prompt into generated text. Implemented by
// ollama.Client.
type TextGenerator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Options tunes retrieval depth for one Generator.
type Options struct {
	// StyleTopK is how many style exemplars ground each prompt.
	StyleTopK int
	// FeedbackTopK is how many feedback entries per kind are retrieved.
	FeedbackTopK int
}

// Generator produces posts for (profile, context, instruction) triples.
type Generator struct {
	styles ExemplarSource
	fb     FeedbackSource
	llm    TextGenerator
	model  string
	opts   Options
	logger *slog.Logger
}

// New creates a Generator. Zero or negative option values fall back to
// StyleTopK=3 and FeedbackTopK=2.
func New(styles ExemplarSource, fb FeedbackSource, llm TextGenerator, model string, opts Options, logger *slog.Logger) *Generator {
	if opts.StyleTopK <= 0 {
		opts.StyleTopK = 3
	}
	if opts.FeedbackTopK <= 0 {
		opts.FeedbackTopK = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		styles: styles,
		fb:     fb,
		llm:    llm,
		model:  model,
		opts:   opts,
		logger: logger,
	}
}

// Generate drafts a post in the profile's voice. It prefers the
// feedback-aware prompt; if retrieving feedback or generating from the
// feedback-aware prompt fails, it retries with the plain prompt built from
// the same exemplars. If both paths fail the returned error is a
// *CombinedError carrying both failures. Generate never returns empty
// text with a nil error.
func (g *Generator) Generate(ctx context.Context, profile, contextText, instruction string) (string, error) {
	exemplars, err := g.styles.Exemplars(ctx, profile, contextText, g.opts.StyleTopK)
	if err != nil {
		return "", err
	}
	exemplars = nonEmpty(exemplars)
	if len(exemplars) == 0 {
		return "", fmt.Errorf("%w: profile %s", ErrNoStyleMatch, profile)
	}

	text, feedbackErr := g.generateWithFeedback(ctx, profile, contextText, instruction, exemplars)
	if feedbackErr == nil {
		return text, nil
	}
	g.logger.Warn("feedback-aware generation failed, falling back to plain prompt",
		"profile", profile, "error", feedbackErr)

	prompt := composer.GenerationPrompt(exemplars, contextText, instruction)
	text, fallbackErr := g.generate(ctx, prompt)
	if fallbackErr != nil {
		return "", &CombinedError{FeedbackErr: feedbackErr, FallbackErr: fallbackErr}
	}
	return text, nil
}

func (g *Generator) generateWithFeedback(ctx context.Context, profile, contextText, instruction string, exemplars []string) (string, error) {
	fs, err := g.retrieveFeedback(ctx, profile, contextText)
	if err != nil {
		return "", err
	}
	prompt := composer.FeedbackAwarePrompt(exemplars, contextText, instruction, fs)
	return g.generate(ctx, prompt)
}

// retrieveFeedback runs one retrieval per kind against the same context.
// Independent queries keep each kind's top slots from being crowded out
// by another kind's entries.
func (g *Generator) retrieveFeedback(ctx context.Context, profile, contextText string) (composer.FeedbackSet, error) {
	var fs composer.FeedbackSet
	var err error

	if fs.Positive, err = g.fb.Relevant(ctx, profile, contextText, feedback.KindPositive, g.opts.FeedbackTopK); err != nil {
		return composer.FeedbackSet{}, fmt.Errorf("retrieving positive feedback: %w", err)
	}
	if fs.Negative, err = g.fb.Relevant(ctx, profile, contextText, feedback.KindNegative, g.opts.FeedbackTopK); err != nil {
		return composer.FeedbackSet{}, fmt.Errorf("retrieving negative feedback: %w", err)
	}
	if fs.Refinement, err = g.fb.Relevant(ctx, profile, contextText, feedback.KindRefinement, g.opts.FeedbackTopK); err != nil {
		return composer.FeedbackSet{}, fmt.Errorf("retrieving refinement feedback: %w", err)
	}
	return fs, nil
}

func (g *Generator) generate(ctx context.Context, prompt string) (string, error) {
	text, err := g.llm.Generate(ctx, g.model, prompt)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("model returned empty text")
	}
	return text, nil
}

// Refine rewrites an existing post against one piece of feedback. No
// fallback path: the refine prompt has no feedback retrieval to fail.
func (g *Generator) Refine(ctx context.Context, originalPost, feedbackText, contextText string) (string, error) {
	prompt := composer.RefinePrompt(originalPost, feedbackText, contextText)
	return g.generate(ctx, prompt)
}

func nonEmpty(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
