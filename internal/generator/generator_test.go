package generator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/kalambet/quill/internal/feedback"
)

type fakeStyles struct {
	exemplars []string
	err       error
}

func (f *fakeStyles) Exemplars(context.Context, string, string, int) ([]string, error) {
	return f.exemplars, f.err
}

type fakeFeedback struct {
	entries map[feedback.Kind][]feedback.Entry
	err     error
}

func (f *fakeFeedback) Relevant(_ context.Context, _ string, _ string, kind feedback.Kind, _ int) ([]feedback.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[kind], nil
}

type fakeLLM struct {
	prompts  []string
	response string
	// errOnFirst fails only the first call, letting the fallback succeed.
	errOnFirst bool
	err        error
}

func (f *fakeLLM) Generate(_ context.Context, _ string, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		if !f.errOnFirst || len(f.prompts) == 1 {
			return "", f.err
		}
	}
	return f.response, nil
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGen(styles ExemplarSource, fb FeedbackSource, llm TextGenerator) *Generator {
	return New(styles, fb, llm, "llama3:8b", Options{}, quiet())
}

func TestGenerateUsesFeedbackAwarePrompt(t *testing.T) {
	styles := &fakeStyles{exemplars: []string{"Sample one.", "Sample two."}}
	fb := &fakeFeedback{entries: map[feedback.Kind][]feedback.Entry{
		feedback.KindNegative: {{Kind: feedback.KindNegative, Text: "too many hashtags"}},
	}}
	llm := &fakeLLM{response: "A crisp draft."}

	got, err := newGen(styles, fb, llm).Generate(context.Background(), "work", "launch", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "A crisp draft." {
		t.Fatalf("got %q", got)
	}
	if len(llm.prompts) != 1 {
		t.Fatalf("model called %d times, want 1", len(llm.prompts))
	}
	if !strings.Contains(llm.prompts[0], "too many hashtags") {
		t.Errorf("prompt missing retrieved feedback:\n%s", llm.prompts[0])
	}
	if !strings.Contains(llm.prompts[0], "Sample one.") {
		t.Errorf("prompt missing style exemplar:\n%s", llm.prompts[0])
	}
}

func TestGenerateStyleErrorsPropagate(t *testing.T) {
	wantErr := errors.New("profile not found")
	styles := &fakeStyles{err: wantErr}
	_, err := newGen(styles, &fakeFeedback{}, &fakeLLM{}).Generate(context.Background(), "ghost", "topic", "")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected style error to propagate, got %v", err)
	}
}

func TestGenerateNoStyleMatch(t *testing.T) {
	styles := &fakeStyles{exemplars: []string{"", "  "}}
	llm := &fakeLLM{response: "x"}
	_, err := newGen(styles, &fakeFeedback{}, llm).Generate(context.Background(), "work", "topic", "")
	if !errors.Is(err, ErrNoStyleMatch) {
		t.Fatalf("expected ErrNoStyleMatch, got %v", err)
	}
	if len(llm.prompts) != 0 {
		t.Fatal("model must not be called without exemplars")
	}
}

func TestGenerateFallsBackWhenFeedbackRetrievalFails(t *testing.T) {
	styles := &fakeStyles{exemplars: []string{"Sample."}}
	fb := &fakeFeedback{err: errors.New("index unavailable")}
	llm := &fakeLLM{response: "Plain draft."}

	got, err := newGen(styles, fb, llm).Generate(context.Background(), "work", "topic", "")
	if err != nil {
		t.Fatalf("fallback should succeed: %v", err)
	}
	if got != "Plain draft." {
		t.Fatalf("got %q", got)
	}
	if len(llm.prompts) != 1 {
		t.Fatalf("model called %d times, want 1 (feedback path failed before the model)", len(llm.prompts))
	}
	if strings.Contains(llm.prompts[0], "feedback") {
		t.Errorf("fallback prompt must not carry a feedback block:\n%s", llm.prompts[0])
	}
}

func TestGenerateFallsBackWhenModelFailsOnce(t *testing.T) {
	styles := &fakeStyles{exemplars: []string{"Sample."}}
	fb := &fakeFeedback{entries: map[feedback.Kind][]feedback.Entry{
		feedback.KindPositive: {{Kind: feedback.KindPositive, Text: "good hooks"}},
	}}
	llm := &fakeLLM{response: "Recovered draft.", err: errors.New("model busy"), errOnFirst: true}

	got, err := newGen(styles, fb, llm).Generate(context.Background(), "work", "topic", "")
	if err != nil {
		t.Fatalf("fallback should succeed: %v", err)
	}
	if got != "Recovered draft." {
		t.Fatalf("got %q", got)
	}
	if len(llm.prompts) != 2 {
		t.Fatalf("model called %d times, want 2", len(llm.prompts))
	}
	if !strings.Contains(llm.prompts[0], "good hooks") {
		t.Error("first attempt should carry the feedback block")
	}
	if strings.Contains(llm.prompts[1], "good hooks") {
		t.Error("fallback attempt must not carry the feedback block")
	}
}

func TestGenerateCombinedErrorWhenBothPathsFail(t *testing.T) {
	styles := &fakeStyles{exemplars: []string{"Sample."}}
	modelErr := errors.New("model down")
	llm := &fakeLLM{err: modelErr}

	_, err := newGen(styles, &fakeFeedback{}, llm).Generate(context.Background(), "work", "topic", "")
	var combined *CombinedError
	if !errors.As(err, &combined) {
		t.Fatalf("expected *CombinedError, got %v", err)
	}
	if !errors.Is(combined.FeedbackErr, modelErr) || !errors.Is(combined.FallbackErr, modelErr) {
		t.Fatalf("combined error missing underlying failures: %v", combined)
	}
	if !errors.Is(err, modelErr) {
		t.Fatal("errors.Is should see through CombinedError")
	}
}

func TestGenerateRejectsEmptyModelOutput(t *testing.T) {
	styles := &fakeStyles{exemplars: []string{"Sample."}}
	llm := &fakeLLM{response: "   \n"}

	_, err := newGen(styles, &fakeFeedback{}, llm).Generate(context.Background(), "work", "topic", "")
	if err == nil {
		t.Fatal("empty model output must not be a silent success")
	}
}

func TestRefine(t *testing.T) {
	llm := &fakeLLM{response: "Revised draft."}
	g := newGen(&fakeStyles{}, &fakeFeedback{}, llm)

	got, err := g.Refine(context.Background(), "Old draft.", "tighten it", "launch")
	if err != nil {
		t.Fatalf("refine: %v", err)
	}
	if got != "Revised draft." {
		t.Fatalf("got %q", got)
	}
	if len(llm.prompts) != 1 || !strings.Contains(llm.prompts[0], "Old draft.") {
		t.Fatalf("refine prompt missing original post: %v", llm.prompts)
	}
}
