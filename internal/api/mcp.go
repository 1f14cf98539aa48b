package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/quill/internal/feedback"
	"github.com/kalambet/quill/internal/ingest"
	"github.com/kalambet/quill/internal/profilestore"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Profiles *profilestore.Store
	Feedback FeedbackStore
	Drafter  Drafter
	Jobs     ingest.JobStore
}

// NewMCPServer creates an MCP server exposing the drafting and feedback
// tools to agent clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"quill",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("quill — personal-voice post drafting with a feedback loop. Draft posts in the user's style, then submit their reactions to improve future drafts."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("draft_post",
			mcp.WithDescription("Draft a post in the profile's writing voice, grounded on stored samples and prior feedback."),
			mcp.WithString("context", mcp.Description("Topic or context for the post"), mcp.Required()),
			mcp.WithString("profile", mcp.Description("Profile name (defaults to \"default\")")),
			mcp.WithString("instruction", mcp.Description("Extra instructions, e.g. tone or length")),
		),
		mcpDraftPost(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_feedback",
			mcp.WithDescription("Record the user's reaction to a generated post so future drafts improve."),
			mcp.WithString("profile", mcp.Description("Profile name"), mcp.Required()),
			mcp.WithString("feedback_type", mcp.Description("One of: positive, negative, refinement"), mcp.Required()),
			mcp.WithString("feedback_text", mcp.Description("What the user said about the post"), mcp.Required()),
			mcp.WithString("generated_post", mcp.Description("The post the feedback refers to")),
			mcp.WithString("context", mcp.Description("The topic the post was generated for")),
			mcp.WithString("refinement_instruction", mcp.Description("For refinement feedback: how to change the post")),
		),
		mcpSubmitFeedback(deps),
	)

	s.AddTool(
		mcp.NewTool("feedback_summary",
			mcp.WithDescription("Summarize a profile's accumulated feedback: counts by kind, learning score, recent patterns."),
			mcp.WithString("profile", mcp.Description("Profile name"), mcp.Required()),
		),
		mcpFeedbackSummary(deps),
	)

	s.AddTool(
		mcp.NewTool("list_profiles",
			mcp.WithDescription("List the available writing profiles with sample and feedback counts."),
		),
		mcpListProfiles(deps),
	)

	s.AddTool(
		mcp.NewTool("add_samples",
			mcp.WithDescription("Append writing samples to a profile. Separate samples with blank lines or \"---\" markers."),
			mcp.WithString("profile", mcp.Description("Profile name"), mcp.Required()),
			mcp.WithString("samples", mcp.Description("The sample text to append"), mcp.Required()),
		),
		mcpAddSamples(deps),
	)

	return s
}

func mcpDraftPost(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		contextText, err := req.RequireString("context")
		if err != nil {
			return mcpError("context is required"), nil
		}
		profile := req.GetString("profile", profilestore.DefaultProfile)
		instruction := req.GetString("instruction", "")

		result, err := deps.Drafter.Generate(ctx, profile, contextText, instruction)
		if err != nil {
			return mcpError(fmt.Sprintf("generation failed: %v", err)), nil
		}
		return mcpText(result), nil
	}
}

func mcpSubmitFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		profile, err := req.RequireString("profile")
		if err != nil {
			return mcpError("profile is required"), nil
		}
		rawKind, err := req.RequireString("feedback_type")
		if err != nil {
			return mcpError("feedback_type is required"), nil
		}
		text, err := req.RequireString("feedback_text")
		if err != nil {
			return mcpError("feedback_text is required"), nil
		}

		kind, err := feedback.ParseKind(rawKind)
		if err != nil {
			return mcpError("feedback_type must be one of: positive, negative, refinement"), nil
		}

		entry := feedback.Entry{
			Profile:               profile,
			Context:               req.GetString("context", ""),
			GeneratedPost:         req.GetString("generated_post", ""),
			Kind:                  kind,
			Text:                  text,
			RefinementInstruction: req.GetString("refinement_instruction", ""),
		}

		if _, err := deps.Feedback.Store(ctx, entry); err != nil {
			if errors.Is(err, feedback.ErrUnindexed) {
				if enqErr := ingest.Enqueue(deps.Jobs, ingest.JobFeedbackReindex, profile); enqErr == nil {
					return mcpText("Feedback recorded; indexing deferred to the background worker."), nil
				}
			}
			return mcpError(fmt.Sprintf("failed to store feedback: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Recorded %s feedback for profile %s.", kind, profile)), nil
	}
}

func mcpFeedbackSummary(deps MCPDeps) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		profile, err := req.RequireString("profile")
		if err != nil {
			return mcpError("profile is required"), nil
		}

		sum, err := deps.Feedback.Summary(profile)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to summarize feedback: %v", err)), nil
		}

		out, err := json.MarshalIndent(map[string]any{
			"total_feedback":  sum.Total,
			"positive":        sum.Positive,
			"negative":        sum.Negative,
			"refinements":     sum.Refinements,
			"learning_score":  sum.LearningScore(),
			"recent_patterns": sum.RecentPatterns,
		}, "", "  ")
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal summary: %v", err)), nil
		}
		return mcpText(string(out)), nil
	}
}

func mcpListProfiles(deps MCPDeps) server.ToolHandlerFunc {
	return func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		names, err := deps.Profiles.List()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list profiles: %v", err)), nil
		}

		infos := make([]ProfileInfo, 0, len(names))
		for _, name := range names {
			sum, err := deps.Feedback.Summary(name)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to summarize %s: %v", name, err)), nil
			}
			infos = append(infos, ProfileInfo{
				Name:          name,
				SampleCount:   deps.Profiles.SampleCount(name),
				FeedbackCount: sum.Total,
				LearningScore: sum.LearningScore(),
			})
		}

		out, err := json.MarshalIndent(infos, "", "  ")
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal profiles: %v", err)), nil
		}
		return mcpText(string(out)), nil
	}
}

func mcpAddSamples(deps MCPDeps) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		profile, err := req.RequireString("profile")
		if err != nil {
			return mcpError("profile is required"), nil
		}
		samples, err := req.RequireString("samples")
		if err != nil {
			return mcpError("samples is required"), nil
		}

		if !deps.Profiles.Exists(profile) {
			if err := deps.Profiles.Create(profile, samples); err != nil {
				return mcpError(fmt.Sprintf("failed to create profile: %v", err)), nil
			}
			return mcpText(fmt.Sprintf("Created profile %s with initial samples.", profile)), nil
		}

		if err := deps.Profiles.Append(profile, samples); err != nil {
			return mcpError(fmt.Sprintf("failed to append samples: %v", err)), nil
		}
		if err := ingest.Enqueue(deps.Jobs, ingest.JobStyleReindex, profile); err != nil {
			return mcpError(fmt.Sprintf("samples stored but reindex not queued: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Appended samples to profile %s.", profile)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
