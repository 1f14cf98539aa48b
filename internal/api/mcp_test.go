package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/quill/internal/feedback"
	"github.com/kalambet/quill/internal/ingest"
	"github.com/kalambet/quill/internal/profilestore"
	"github.com/kalambet/quill/internal/storage"
)

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store, *fakeFeedbackStore) {
	t.Helper()
	profiles, err := profilestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("creating profile store: %v", err)
	}
	jobs, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening storage: %v", err)
	}
	t.Cleanup(func() { jobs.Close() })

	fb := &fakeFeedbackStore{summaries: map[string]feedback.Summary{}}
	deps := MCPDeps{
		Profiles: profiles,
		Feedback: fb,
		Drafter:  &fakeDrafter{result: "A drafted post."},
		Jobs:     jobs,
	}
	return deps, jobs, fb
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPTool_DraftPost(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	handler := mcpDraftPost(deps)

	result, err := handler(context.Background(), makeCallToolRequest("draft_post", map[string]interface{}{
		"context": "shipping the new release",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "A drafted post." {
		t.Fatalf("got %q", got)
	}
}

func TestMCPTool_DraftPost_RequiresContext(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	handler := mcpDraftPost(deps)

	result, err := handler(context.Background(), makeCallToolRequest("draft_post", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("missing context should be a tool error")
	}
}

func TestMCPTool_SubmitFeedback(t *testing.T) {
	deps, _, fb := newTestMCPDeps(t)
	handler := mcpSubmitFeedback(deps)

	result, err := handler(context.Background(), makeCallToolRequest("submit_feedback", map[string]interface{}{
		"profile":       "work",
		"feedback_type": "positive",
		"feedback_text": "great hook",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if len(fb.stored) != 1 || fb.stored[0].Kind != feedback.KindPositive {
		t.Fatalf("stored = %+v", fb.stored)
	}
}

func TestMCPTool_SubmitFeedback_RejectsUnknownKind(t *testing.T) {
	deps, _, fb := newTestMCPDeps(t)
	handler := mcpSubmitFeedback(deps)

	result, err := handler(context.Background(), makeCallToolRequest("submit_feedback", map[string]interface{}{
		"profile":       "work",
		"feedback_type": "meh",
		"feedback_text": "x",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("unknown kind should be a tool error")
	}
	if len(fb.stored) != 0 {
		t.Fatalf("rejected feedback was stored: %+v", fb.stored)
	}
}

func TestMCPTool_FeedbackSummary(t *testing.T) {
	deps, _, fb := newTestMCPDeps(t)
	fb.summaries["work"] = feedback.Summary{Total: 3, Positive: 2, Negative: 1}
	handler := mcpFeedbackSummary(deps)

	result, err := handler(context.Background(), makeCallToolRequest("feedback_summary", map[string]interface{}{
		"profile": "work",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &out); err != nil {
		t.Fatalf("summary is not JSON: %v", err)
	}
	if out["learning_score"] != float64(1) {
		t.Fatalf("learning_score = %v", out["learning_score"])
	}
}

func TestMCPTool_ListProfiles(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	if err := deps.Profiles.Create("work", "A sample."); err != nil {
		t.Fatalf("create: %v", err)
	}
	handler := mcpListProfiles(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_profiles", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var infos []ProfileInfo
	if err := json.Unmarshal([]byte(toolText(t, result)), &infos); err != nil {
		t.Fatalf("listing is not JSON: %v", err)
	}
	if len(infos) != 2 || infos[0].Name != profilestore.DefaultProfile {
		t.Fatalf("infos = %+v", infos)
	}
}

func TestMCPTool_AddSamples(t *testing.T) {
	deps, jobs, _ := newTestMCPDeps(t)
	handler := mcpAddSamples(deps)

	// First call creates the profile.
	result, err := handler(context.Background(), makeCallToolRequest("add_samples", map[string]interface{}{
		"profile": "work",
		"samples": "First sample.",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError || !strings.Contains(toolText(t, result), "Created") {
		t.Fatalf("unexpected result: %s", toolText(t, result))
	}

	// Second call appends and queues a reindex.
	result, err = handler(context.Background(), makeCallToolRequest("add_samples", map[string]interface{}{
		"profile": "work",
		"samples": "Second sample.",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if got := deps.Profiles.SampleCount("work"); got != 2 {
		t.Fatalf("sample count = %d, want 2", got)
	}
	job, err := jobs.ClaimNextJob([]string{ingest.JobStyleReindex})
	if err != nil {
		t.Fatalf("claiming job: %v", err)
	}
	if job == nil {
		t.Fatal("append should enqueue a style reindex job")
	}
}
