package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/service"
	"github.com/starford/ansuz/internal/tasks"
)

// Handler holds API route handlers.
type Handler struct {
	svc *service.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// notePath extracts the note path from the URL (everything after the
// wildcard mount). Supports encoded slashes from OpenAPI clients
// (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
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

// ListNotes handles GET /api/notes.
//
//	@Summary		List all indexed notes
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListNotes(r.Context())
	if err != nil {
		h.writeError(w, "", err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"notes": items,
		"total": len(items),
	})
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a single note by path
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	service.NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	note, err := h.svc.GetNote(r.Context(), path)
	if err != nil {
		h.writeError(w, path, err)
		return
	}
	respond(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Success		201	{object}	service.NoteDetail
//	@Failure		400	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Path == "" {
		respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		h.writeError(w, req.Path, err)
		return
	}
	respond(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/*.
//
//	@Summary		Update a note with optimistic concurrency
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string	true	"Note path"
//	@Param			If-Match	header	string	false	"SHA-256 checksum for optimistic concurrency"
//	@Success		200	{object}	service.NoteDetail
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	path := notePath(r)
	if path == "" {
		respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	note, err := h.svc.SaveNote(r.Context(), path, []byte(req.Content), ifMatch)
	if err != nil {
		h.writeError(w, path, err)
		return
	}
	respond(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/*.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			path	path	string	true	"Note path"
//	@Success		204		"Note deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	if err := h.svc.DeleteNote(r.Context(), path); err != nil {
		h.writeError(w, path, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the knowledge graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	models.GraphSnapshot
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.GetGraph(r.Context())
	if err != nil {
		h.writeError(w, "", err)
		return
	}
	respond(w, http.StatusOK, snap)
}

// Backlinks handles GET /api/backlinks/*.
//
//	@Summary		List resolved links pointing at a note
//	@Tags			graph
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/backlinks/{path} [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	links, err := h.svc.GetBacklinks(r.Context(), path)
	if err != nil {
		h.writeError(w, path, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"backlinks": links,
	})
}

// Search handles GET /api/search.
//
//	@Summary		Ranked full-text search with filters
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	false	"Query text; empty lists recently modified notes"
//	@Param			tag		query		string	false	"Tag filter, repeatable"
//	@Param			path	query		string	false	"Path prefix filter"
//	@Param			from	query		string	false	"Modified-after filter"
//	@Param			to		query		string	false	"Modified-before filter"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	vals := r.URL.Query()
	limit, _ := strconv.Atoi(vals.Get("limit"))
	q := search.Query{
		Text:       vals.Get("q"),
		Tags:       vals["tag"],
		PathPrefix: vals.Get("path"),
		Limit:      limit,
	}
	var err error
	if q.From, err = parseTimeParam(vals.Get("from")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid 'from' date")
		return
	}
	if q.To, err = parseTimeParam(vals.Get("to")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid 'to' date")
		return
	}

	results, err := h.svc.Search(r.Context(), q)
	if err != nil {
		h.writeError(w, "", err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"results": results,
	})
}

// Tags handles GET /api/tags.
//
//	@Summary		List all tags with note counts
//	@Tags			tags
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	infos, err := h.svc.GetAllTagsWithCounts(r.Context())
	if err != nil {
		h.writeError(w, "", err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"tags": infos,
	})
}

// TagInfo handles GET /api/tags/{name}.
//
//	@Summary		Get one tag and the notes carrying it
//	@Tags			tags
//	@Produce		json
//	@Param			name	path		string	true	"Tag name"
//	@Success		200		{object}	models.TagInfo
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tags/{name} [get]
func (h *Handler) TagInfo(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	info, err := h.svc.GetTagInfo(r.Context(), name)
	if err != nil {
		h.writeError(w, name, err)
		return
	}
	respond(w, http.StatusOK, info)
}

// Tasks handles GET /api/tasks.
//
//	@Summary		List tasks with filters and aggregate counts
//	@Tags			tasks
//	@Produce		json
//	@Param			completed			query	bool	false	"Completion filter"
//	@Param			note				query	string	false	"Restrict to one note"
//	@Param			created_after		query	string	false	"Created-after filter"
//	@Param			created_before		query	string	false	"Created-before filter"
//	@Param			completed_after		query	string	false	"Completed-after filter"
//	@Param			completed_before	query	string	false	"Completed-before filter"
//	@Success		200	{object}	tasks.TaskInfo
//	@Security		BearerAuth
//	@Router			/tasks [get]
func (h *Handler) Tasks(w http.ResponseWriter, r *http.Request) {
	vals := r.URL.Query()
	f := tasks.Filter{NoteID: vals.Get("note")}
	if v := vals.Get("completed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid 'completed' value")
			return
		}
		f.Completed = &b
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{
		{"created_after", &f.CreatedAfter},
		{"created_before", &f.CreatedBefore},
		{"completed_after", &f.CompletedAfter},
		{"completed_before", &f.CompletedBefore},
	} {
		t, err := parseTimeParam(vals.Get(p.name))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid '"+p.name+"' date")
			return
		}
		*p.dst = t
	}

	info, err := h.svc.GetAllTasks(r.Context(), f)
	if err != nil {
		h.writeError(w, "", err)
		return
	}
	respond(w, http.StatusOK, info)
}

// ToggleTask handles POST /api/tasks/toggle.
//
//	@Summary		Toggle a checkbox by file line
//	@Tags			tasks
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	service.NoteDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/toggle [post]
func (h *Handler) ToggleTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
		Line int    `json:"line"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Path == "" || req.Line < 1 {
		respondError(w, http.StatusBadRequest, "path and line are required")
		return
	}
	note, err := h.svc.ToggleTaskInNote(r.Context(), req.Path, req.Line)
	if err != nil {
		h.writeError(w, req.Path, err)
		return
	}
	respond(w, http.StatusOK, note)
}

// Status handles GET /api/status.
//
//	@Summary		Report workspace and indexing state
//	@Tags			status
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"workspace": h.svc.Root(),
		"indexing":  h.svc.Indexing(),
	})
}

// writeError maps the error taxonomy to HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, path string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, apperr.ErrAlreadyExists):
		respondError(w, http.StatusConflict, "already exists")
	case errors.Is(err, apperr.ErrConflict):
		respondError(w, http.StatusConflict, "checksum mismatch")
	case errors.Is(err, apperr.ErrInvalidPath):
		respondError(w, http.StatusBadRequest, "invalid path")
	case errors.Is(err, apperr.ErrWorkspaceNotOpen):
		respondError(w, http.StatusServiceUnavailable, "workspace not open")
	case apperr.IsInvalidFrontmatter(err):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error("request failed", slog.String("path", path), slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return dateparse.ParseAny(v)
}
