// Package api exposes the HTTP surface of the quill server: profile
// management, draft generation, and the feedback loop, plus the MCP
// server for agent integrations.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kalambet/quill/internal/feedback"
	"github.com/kalambet/quill/internal/generator"
	"github.com/kalambet/quill/internal/ingest"
	"github.com/kalambet/quill/internal/profilestore"
	"github.com/kalambet/quill/internal/styleindex"
)

const maxBodySize = 10 << 20 // 10MB

// Drafter produces and refines posts. Implemented by generator.Generator.
type Drafter interface {
	Generate(ctx context.Context, profile, contextText, instruction string) (string, error)
	Refine(ctx context.Context, originalPost, feedbackText, contextText string) (string, error)
}

// FeedbackStore is the feedback surface the handlers need. Implemented by
// feedback.Store.
type FeedbackStore interface {
	Store(ctx context.Context, e feedback.Entry) (feedback.Entry, error)
	Relevant(ctx context.Context, profile, query string, kind feedback.Kind, k int) ([]feedback.Entry, error)
	Summary(profile string) (feedback.Summary, error)
}

// Deps holds the handler dependencies.
type Deps struct {
	Profiles *profilestore.Store
	Feedback FeedbackStore
	Drafter  Drafter
	Jobs     ingest.JobStore
	// Origins is the CORS allow-list; empty disables cross-origin access.
	Origins []string
	Logger  *slog.Logger
}

// NewHandler builds the router for the full HTTP surface.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if len(deps.Origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.Origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type"},
		}))
	}

	r.Get("/health", handleHealth)
	r.Get("/profiles", handleListProfiles(deps))
	r.Post("/profiles", handleCreateProfile(deps))
	r.Post("/profiles/{name}/samples", handleAppendSamples(deps))
	r.Post("/generate", handleGenerate(deps))
	r.Post("/regenerate", handleGenerate(deps))
	r.Post("/feedback", handleSubmitFeedback(deps))
	r.Post("/refine", handleRefine(deps))
	r.Get("/profiles/{name}/feedback", handleFeedbackSummary(deps))
	r.Get("/profiles/{name}/feedback/relevant", handleRelevantFeedback(deps))

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ProfileInfo is one row of the profile listing.
type ProfileInfo struct {
	Name          string `json:"name"`
	SampleCount   int    `json:"sample_count"`
	FeedbackCount int    `json:"feedback_count"`
	LearningScore int    `json:"learning_score"`
}

func handleListProfiles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := deps.Profiles.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing profiles: %v", err)
			return
		}

		infos := make([]ProfileInfo, 0, len(names))
		for _, name := range names {
			sum, err := deps.Feedback.Summary(name)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "summarizing feedback for %s: %v", name, err)
				return
			}
			infos = append(infos, ProfileInfo{
				Name:          name,
				SampleCount:   deps.Profiles.SampleCount(name),
				FeedbackCount: sum.Total,
				LearningScore: sum.LearningScore(),
			})
		}
		writeJSON(w, http.StatusOK, infos)
	}
}

type createProfileRequest struct {
	Name    string `json:"name"`
	Samples string `json:"samples"`
}

func handleCreateProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createProfileRequest
		if !decodeBody(w, r, &req) {
			return
		}

		if err := deps.Profiles.Create(req.Name, req.Samples); err != nil {
			switch {
			case errors.Is(err, profilestore.ErrProfileExists):
				httpError(w, http.StatusBadRequest, "invalid_request_error", "profile %q already exists", req.Name)
			case errors.Is(err, profilestore.ErrInvalidName):
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid profile name %q", req.Name)
			default:
				httpError(w, http.StatusInternalServerError, "api_error", "creating profile: %v", err)
			}
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
	}
}

type appendSamplesRequest struct {
	Samples string `json:"samples"`
}

func handleAppendSamples(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		var req appendSamplesRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Samples == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "samples is required")
			return
		}

		if err := deps.Profiles.Append(name, req.Samples); err != nil {
			if errors.Is(err, profilestore.ErrProfileNotFound) {
				httpError(w, http.StatusNotFound, "invalid_request_error", "profile %q not found", name)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "appending samples: %v", err)
			return
		}

		// The stale style index is rebuilt off-request.
		if err := ingest.Enqueue(deps.Jobs, ingest.JobStyleReindex, name); err != nil {
			deps.Logger.Error("failed to enqueue style reindex", "profile", name, "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "appended"})
	}
}

type generateRequest struct {
	Profile     string `json:"profile"`
	Context     string `json:"context"`
	Instruction string `json:"instruction"`
}

func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Profile == "" {
			req.Profile = profilestore.DefaultProfile
		}
		if req.Context == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "context is required")
			return
		}

		result, err := deps.Drafter.Generate(r.Context(), req.Profile, req.Context, req.Instruction)
		if err != nil {
			writeGenerateError(w, req.Profile, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"result": result})
	}
}

func writeGenerateError(w http.ResponseWriter, profile string, err error) {
	var combined *generator.CombinedError
	switch {
	case errors.Is(err, profilestore.ErrProfileNotFound):
		httpError(w, http.StatusNotFound, "invalid_request_error", "profile %q not found", profile)
	case errors.Is(err, styleindex.ErrEmptyProfile):
		httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "profile %q has no writing samples", profile)
	case errors.Is(err, generator.ErrNoStyleMatch):
		httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "no style examples matched the context")
	case errors.As(err, &combined):
		httpError(w, http.StatusInternalServerError, "api_error", "%v", combined)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "generation failed: %v", err)
	}
}

// feedbackRequest is the wire shape of POST /feedback. The durable log
// uses its own field names; see feedback.Entry.
type feedbackRequest struct {
	Profile               string `json:"profile"`
	Context               string `json:"context"`
	Instruction           string `json:"instruction"`
	GeneratedPost         string `json:"generated_post"`
	FeedbackType          string `json:"feedback_type"`
	FeedbackText          string `json:"feedback_text"`
	RefinementInstruction string `json:"refinement_instruction"`
	ApprovedVersion       string `json:"approved_version"`
}

func handleSubmitFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req feedbackRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Profile == "" {
			req.Profile = profilestore.DefaultProfile
		}

		kind, err := feedback.ParseKind(req.FeedbackType)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error",
				"feedback_type must be one of positive, negative, refinement")
			return
		}

		entry := feedback.Entry{
			Profile:               req.Profile,
			Context:               req.Context,
			Instruction:           req.Instruction,
			GeneratedPost:         req.GeneratedPost,
			Kind:                  kind,
			Text:                  req.FeedbackText,
			RefinementInstruction: req.RefinementInstruction,
			ApprovedVersion:       req.ApprovedVersion,
		}

		_, err = deps.Feedback.Store(r.Context(), entry)
		if errors.Is(err, feedback.ErrUnindexed) {
			// Durable but not yet searchable; the reconcile job repairs it.
			if enqErr := ingest.Enqueue(deps.Jobs, ingest.JobFeedbackReindex, req.Profile); enqErr != nil {
				deps.Logger.Error("failed to enqueue feedback reindex", "profile", req.Profile, "error", enqErr)
			}
			writeJSON(w, http.StatusAccepted, map[string]string{
				"status":  "feedback_stored",
				"message": "feedback recorded; indexing deferred",
			})
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "storing feedback: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "feedback_stored",
			"message": fmt.Sprintf("%s feedback recorded for %s", kind, req.Profile),
		})
	}
}

type refineRequest struct {
	Profile      string `json:"profile"`
	OriginalPost string `json:"original_post"`
	FeedbackText string `json:"feedback_text"`
	Context      string `json:"context"`
}

func handleRefine(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refineRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.OriginalPost == "" || req.FeedbackText == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "original_post and feedback_text are required")
			return
		}

		result, err := deps.Drafter.Refine(r.Context(), req.OriginalPost, req.FeedbackText, req.Context)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "refinement failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"result": result})
	}
}

func handleFeedbackSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		sum, err := deps.Feedback.Summary(name)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "summarizing feedback: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"total_feedback":  sum.Total,
			"positive":        sum.Positive,
			"negative":        sum.Negative,
			"refinements":     sum.Refinements,
			"learning_score":  sum.LearningScore(),
			"recent_patterns": sum.RecentPatterns,
		})
	}
}

const relevantFeedbackLimit = 5

func handleRelevantFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		query := r.URL.Query().Get("context")
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "context query parameter is required")
			return
		}

		var kind feedback.Kind
		if raw := r.URL.Query().Get("feedback_type"); raw != "" {
			parsed, err := feedback.ParseKind(raw)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error",
					"feedback_type must be one of positive, negative, refinement")
				return
			}
			kind = parsed
		}

		entries, err := deps.Feedback.Relevant(r.Context(), name, query, kind, relevantFeedbackLimit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "retrieving feedback: %v", err)
			return
		}
		if entries == nil {
			entries = []feedback.Entry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"feedback": entries})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
