package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/ticketkb/internal/drafting"
	"github.com/kalambet/ticketkb/internal/kb"
	"github.com/kalambet/ticketkb/internal/review"
)

type approveRequest struct {
	FinalTitle           string   `json:"final_title"`
	FinalContentMarkdown string   `json:"final_content_markdown"`
	FinalTags            []string `json:"final_tags"`
}

type rejectRequest struct {
	Feedback string `json:"feedback"`
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// decodeOptionalBody is decodeBody for endpoints whose body may be empty,
// including chunked requests that carry no bytes.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func handleCreateDraft(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var t kb.Ticket
		if !decodeBody(w, r, &t) {
			return
		}

		d, err := deps.Creator.FromTicket(r.Context(), t)
		if errors.Is(err, drafting.ErrInvalidTicket) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create draft: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	}
}

func handleListPending(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		drafts, err := deps.Store.ListPendingDrafts(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list drafts: %v", err)
			return
		}
		if drafts == nil {
			drafts = []kb.Draft{}
		}
		writeJSON(w, http.StatusOK, drafts)
	}
}

func handleGetDraft(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := deps.Store.GetDraft(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, kb.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "Draft not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get draft: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func handleApprove(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req approveRequest
		if !decodeBody(w, r, &req) {
			return
		}

		a, err := deps.Reviewer.Approve(r.Context(), chi.URLParam(r, "id"), review.Approval{
			Title:           req.FinalTitle,
			ContentMarkdown: req.FinalContentMarkdown,
			Tags:            req.FinalTags,
		})
		var verr *kb.ValidationError
		switch {
		case errors.As(err, &verr):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", verr)
		case errors.Is(err, kb.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "Draft not found or already processed")
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to publish draft: %v", err)
		default:
			writeJSON(w, http.StatusOK, a)
		}
	}
}

func handleReject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rejectRequest
		if !decodeOptionalBody(w, r, &req) {
			return
		}

		id := chi.URLParam(r, "id")
		err := deps.Reviewer.Reject(r.Context(), id, req.Feedback)
		if errors.Is(err, kb.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "Draft not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to reject draft: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"message":  "Draft rejected successfully",
			"draft_id": id,
		})
	}
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		synthesize := false
		if v := r.URL.Query().Get("synthesize_answer"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "synthesize_answer must be a boolean")
				return
			}
			synthesize = b
		}

		var req searchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}
		topK := deps.DefaultTopK
		if req.TopK != nil {
			topK = *req.TopK
		}
		if topK < 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "top_k must not be negative")
			return
		}

		resp, err := deps.Searcher.Search(r.Context(), req.Query, topK, synthesize)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "search failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleGetArticle(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := deps.Store.GetArticle(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, kb.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "Article not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get article: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}
