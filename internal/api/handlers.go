package api

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/vaultgate/internal/docpatch"
	"github.com/starford/vaultgate/internal/noteservice"
)

const defaultContextLength = 100

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// docPath extracts the document path from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func docPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListDir handles GET /api/vault?path=dir.
//
//	@Summary		List a vault directory
//	@Tags			vault
//	@Produce		json
//	@Param			path	query		string	false	"Directory, root when empty"
//	@Success		200		{object}	ListResponse
//	@Failure		404		{object}	errResponse
//	@Router			/vault [get]
func (h *Handler) ListDir(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, r.URL.Query().Get("path"))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, dir string) {
	files, err := h.svc.List(r.Context(), dir)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Path: dir, Files: files})
}

// GetDocument handles GET /api/vault/*. A path ending in "/" lists the
// directory instead.
//
//	@Summary		Read a document
//	@Tags			vault
//	@Produce		text/markdown,json
//	@Param			path	path	string	true	"Document path"
//	@Param			format	query	string	false	"Response format"	Enums(markdown, json, document-map)
//	@Success		200
//	@Failure		404		{object}	errResponse
//	@Router			/vault/{path} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" || strings.HasSuffix(path, "/") {
		h.list(w, r, path)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "markdown":
		body, err := h.svc.Get(r.Context(), path)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, body)
	case "json":
		note, err := h.svc.Note(r.Context(), path)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, note)
	case "document-map":
		outline, err := h.svc.Outline(r.Context(), path)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, outline)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("unknown format "+strconv.Quote(format)))
	}
}

// CreateDocument handles POST /api/vault/*.
//
//	@Summary		Create or overwrite a document
//	@Tags			vault
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string			true	"Document path"
//	@Param			body	body		CreateRequest	true	"Document content"
//	@Success		201		{object}	history.Entry
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Router			/vault/{path} [post]
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.svc.Create(r.Context(), docPath(r), req.Content, req.Overwrite)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// AppendDocument handles POST /api/append/*.
//
//	@Summary		Append to a document, creating it when absent
//	@Tags			vault
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string			true	"Document path"
//	@Param			body	body		AppendRequest	true	"Content to append"
//	@Success		200		{object}	history.Entry
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Router			/append/{path} [post]
func (h *Handler) AppendDocument(w http.ResponseWriter, r *http.Request) {
	var req AppendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.svc.Append(r.Context(), docPath(r), req.Content, req.Newline())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// PatchDocument handles PATCH /api/vault/*.
//
//	@Summary		Edit a heading section, block, frontmatter or the whole document
//	@Tags			vault
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string			true	"Document path"
//	@Param			body	body		PatchRequest	true	"Patch"
//	@Success		200		{object}	history.Entry
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Router			/vault/{path} [patch]
func (h *Handler) PatchDocument(w http.ResponseWriter, r *http.Request) {
	var req PatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	target, err := h.svc.ParseTarget(req.Target, req.TargetValue)
	if err != nil {
		writeError(w, r, err)
		return
	}
	op, err := docpatch.ParseOperation(req.Operation)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entry, err := h.svc.Patch(r.Context(), docPath(r), target, op, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// DeleteDocument handles DELETE /api/vault/*.
//
//	@Summary		Delete a document
//	@Tags			vault
//	@Param			path	path	string	true	"Document path"
//	@Success		204		"Document deleted"
//	@Failure		404		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Router			/vault/{path} [delete]
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Delete(r.Context(), docPath(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles POST /api/search/simple.
//
//	@Summary		Plain text search across the vault
//	@Tags			search
//	@Produce		json
//	@Param			query			query		string	true	"Search text"
//	@Param			context_length	query		int		false	"Context characters around each match"
//	@Success		200				{object}	SearchResponse
//	@Failure		400				{object}	errResponse
//	@Router			/search/simple [post]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("query")
	if strings.TrimSpace(query) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'query' is required"))
		return
	}
	contextLength := defaultContextLength
	if raw := q.Get("context_length"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("context_length must be a non-negative integer"))
			return
		}
		contextLength = n
	}
	results, err := h.svc.Search(r.Context(), query, contextLength)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: query, Results: results})
}

// AdvancedSearch handles POST /api/search/.
//
//	@Summary		Dataview DQL or JsonLogic search (requires the Dataview plugin)
//	@Tags			search
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AdvancedSearchRequest	true	"Query"
//	@Success		200		{object}	AdvancedSearchResponse
//	@Failure		400		{object}	errResponse
//	@Failure		501		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Router			/search/ [post]
func (h *Handler) AdvancedSearch(w http.ResponseWriter, r *http.Request) {
	var req AdvancedSearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	query, err := req.QueryText()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	results, err := h.svc.AdvancedSearch(r.Context(), req.QueryType, query, req.Limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AdvancedSearchResponse{
		QueryType: req.QueryType,
		Query:     req.Query,
		Results:   results,
		Total:     len(results),
	})
}

// History handles GET /api/history.
//
//	@Summary		List recent write operations, oldest first
//	@Tags			history
//	@Produce		json
//	@Param			limit	query		int	false	"Most recent N entries"
//	@Success		200		{object}	HistoryResponse
//	@Router			/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries := h.svc.History(limit)
	writeJSON(w, http.StatusOK, HistoryResponse{
		Entries:  entries,
		Count:    len(entries),
		Capacity: h.svc.HistoryCapacity(),
	})
}

// ClearHistory handles DELETE /api/history.
//
//	@Summary		Drop all retained history entries
//	@Tags			history
//	@Success		204	"History cleared"
//	@Router			/history [delete]
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearHistory(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HistoryEntry handles GET /api/history/{seq}.
//
//	@Summary		Get one history entry
//	@Tags			history
//	@Produce		json
//	@Param			seq	path		int	true	"Sequence number"
//	@Success		200	{object}	history.Entry
//	@Failure		404	{object}	errResponse
//	@Router			/history/{seq} [get]
func (h *Handler) HistoryEntry(w http.ResponseWriter, r *http.Request) {
	seq, ok := parseSeq(w, r)
	if !ok {
		return
	}
	entry, err := h.svc.HistoryEntry(seq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Revert handles POST /api/history/{seq}/revert.
//
//	@Summary		Restore the document state captured by a history entry
//	@Tags			history
//	@Produce		json
//	@Param			seq	path		int	true	"Sequence number"
//	@Success		200	{object}	history.Entry
//	@Failure		404	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Router			/history/{seq}/revert [post]
func (h *Handler) Revert(w http.ResponseWriter, r *http.Request) {
	seq, ok := parseSeq(w, r)
	if !ok {
		return
	}
	entry, err := h.svc.Revert(r.Context(), seq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func parseSeq(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	seq, err := strconv.ParseUint(chi.URLParam(r, "seq"), 10, 64)
	if err != nil || seq == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("seq must be a positive integer"))
		return 0, false
	}
	return seq, true
}
