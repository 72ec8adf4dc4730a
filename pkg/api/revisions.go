package api

import (
	"encoding/json"
	"net/http"

	"github.com/txn2/mcp-element-config/pkg/configstore"
)

// getConfigByID handles GET /api/v1/elements/{element}/revisions/{revision}.
func (h *Handler) getConfigByID(w http.ResponseWriter, r *http.Request) {
	ref, ok := elementRef(w, r)
	if !ok {
		return
	}
	id, ok := revisionID(w, r)
	if !ok {
		return
	}
	rev, err := h.service.GetConfigByID(r.Context(), ref, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configstore.NewView(rev, withContent(r)))
}

// downloadConfig handles GET /api/v1/elements/{element}/revisions/{revision}/content.
// It returns the raw payload with its stored content type.
func (h *Handler) downloadConfig(w http.ResponseWriter, r *http.Request) {
	ref, ok := elementRef(w, r)
	if !ok {
		return
	}
	id, ok := revisionID(w, r)
	if !ok {
		return
	}
	rev, err := h.service.GetConfigByID(r.Context(), ref, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", rev.ContentType)
	w.Header().Set("ETag", `"`+rev.ContentHash+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rev.Content)
}

// removeConfig handles DELETE /api/v1/elements/{element}/revisions/{revision}.
func (h *Handler) removeConfig(w http.ResponseWriter, r *http.Request) {
	ref, ok := elementRef(w, r)
	if !ok {
		return
	}
	id, ok := revisionID(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveConfig(r.Context(), ref, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// activateConfig handles POST /api/v1/elements/{element}/revisions/{revision}/activate.
func (h *Handler) activateConfig(w http.ResponseWriter, r *http.Request) {
	ref, ok := elementRef(w, r)
	if !ok {
		return
	}
	id, ok := revisionID(w, r)
	if !ok {
		return
	}
	rev, err := h.service.ActivateConfig(r.Context(), ref, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configstore.NewView(rev, false))
}

// restoreConfig handles POST /api/v1/elements/{element}/revisions/{revision}/restore.
// The body is optional.
func (h *Handler) restoreConfig(w http.ResponseWriter, r *http.Request) {
	ref, ok := elementRef(w, r)
	if !ok {
		return
	}
	id, ok := revisionID(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	res, err := h.service.RestoreConfig(r.Context(), ref, id, req.Comment)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, configstore.NewStoreResultView(res))
}

// setComment handles PUT /api/v1/elements/{element}/revisions/{revision}/comment.
func (h *Handler) setComment(w http.ResponseWriter, r *http.Request) {
	ref, ok := elementRef(w, r)
	if !ok {
		return
	}
	id, ok := revisionID(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rev, err := h.service.SetComment(r.Context(), ref, id, req.Comment)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configstore.NewView(rev, false))
}
