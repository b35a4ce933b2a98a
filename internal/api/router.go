// Package api exposes the draft review workflow and knowledge-base search
// over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/kalambet/ticketkb/internal/kb"
	"github.com/kalambet/ticketkb/internal/metrics"
	"github.com/kalambet/ticketkb/internal/pipeline"
	"github.com/kalambet/ticketkb/internal/review"
)

const maxRequestBodySize = 1 << 20 // 1MB

// DraftCreator turns a ticket into a saved draft.
type DraftCreator interface {
	FromTicket(ctx context.Context, t kb.Ticket) (kb.Draft, error)
}

// Reviewer applies review decisions.
type Reviewer interface {
	Approve(ctx context.Context, draftID string, a review.Approval) (kb.Article, error)
	Reject(ctx context.Context, draftID, feedback string) error
}

// Searcher answers search queries.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, synthesize bool) (pipeline.Response, error)
}

// Deps holds the components the handlers call.
type Deps struct {
	Store    kb.Store
	Creator  DraftCreator
	Reviewer Reviewer
	Searcher Searcher
	Metrics  *metrics.Metrics // optional; when nil /metrics is not mounted

	DefaultTopK int      // top_k when the request omits it; 3 if zero
	CORSOrigins []string // empty allows any origin
}

// NewRouter returns the HTTP handler. The knowledge-base routes are served
// under both /kb and /api/v1/kb.
func NewRouter(deps Deps) http.Handler {
	if deps.DefaultTopK <= 0 {
		deps.DefaultTopK = 3
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Get("/health", handleHealth)

	kbRoutes := func(r chi.Router) {
		r.Post("/drafts/from_ticket", handleCreateDraft(deps))
		r.Get("/drafts/pending", handleListPending(deps))
		r.Get("/drafts/{id}", handleGetDraft(deps))
		r.Put("/drafts/{id}/approve", handleApprove(deps))
		r.Put("/drafts/{id}/reject", handleReject(deps))
		r.Post("/search", handleSearch(deps))
		r.Get("/published/{id}", handleGetArticle(deps))
	}
	r.Route("/kb", kbRoutes)
	r.Route("/api/v1/kb", kbRoutes)

	return cors.New(cors.Options{
		AllowedOrigins: deps.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(r)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
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
