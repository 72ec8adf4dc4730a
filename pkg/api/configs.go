package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/txn2/mcp-element-config/pkg/configstore"
	"github.com/txn2/mcp-element-config/pkg/element"
)

// storeConfigRequest is the body of POST .../configs/{series}.
type storeConfigRequest struct {
	State       string          `json:"state"`
	ContentType string          `json:"content_type"`
	Content     json.RawMessage `json:"content"`
	Comment     string          `json:"comment"`
}

// payload returns the raw configuration bytes. A JSON string is unquoted;
// any other JSON value is stored verbatim and typed as JSON.
func (req storeConfigRequest) payload() (content []byte, contentType string) {
	contentType = req.ContentType
	if len(req.Content) == 0 {
		return nil, contentType
	}
	var s string
	if err := json.Unmarshal(req.Content, &s); err == nil {
		return []byte(s), contentType
	}
	if contentType == "" {
		contentType = configstore.ContentTypeJSON
	}
	return []byte(req.Content), contentType
}

// commentRequest is the body of comment and restore requests.
type commentRequest struct {
	Comment string `json:"comment"`
}

// countResponse reports how many revisions an operation removed.
type countResponse struct {
	Count int `json:"count"`
}

// withContent reports whether the caller asked to omit content.
func withContent(r *http.Request) bool {
	v := r.URL.Query().Get("content")
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	return err != nil || b
}

// findConfigs handles GET /api/v1/elements/{element}/configs.
func (h *Handler) findConfigs(w http.ResponseWriter, r *http.Request) {
	ref, ok := elementRef(w, r)
	if !ok {
		return
	}
	revs, err := h.service.FindConfigs(r.Context(), ref, r.URL.Query().Get("filter"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configstore.NewViews(revs, withContent(r)))
}

// getConfig handles GET /api/v1/elements/{element}/configs/{series}.
func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	ref, ok := elementRef(w, r)
	if !ok {
		return
	}
	name, ok := seriesName(w, r)
	if !ok {
		return
	}
	rev, err := h.service.GetConfig(r.Context(), ref, name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configstore.NewView(rev, withContent(r)))
}

// getActiveConfig handles GET /api/v1/elements/{element}/configs/{series}/active.
func (h *Handler) getActiveConfig(w http.ResponseWriter, r *http.Request) {
	ref, ok := elementRef(w, r)
	if !ok {
		return
	}
	name, ok := seriesName(w, r)
	if !ok {
		return
	}
	rev, err := h.service.GetActiveConfig(r.Context(), ref, name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configstore.NewView(rev, withContent(r)))
}

// getConfigRevisions handles GET /api/v1/elements/{element}/configs/{series}/revisions.
// Content is omitted unless requested with ?content=true.
func (h *Handler) getConfigRevisions(w http.ResponseWriter, r *http.Request) {
	ref, ok := elementRef(w, r)
	if !ok {
		return
	}
	name, ok := seriesName(w, r)
	if !ok {
		return
	}
	revs, err := h.service.GetConfigRevisions(r.Context(), ref, name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	include, _ := strconv.ParseBool(r.URL.Query().Get("content"))
	writeJSON(w, http.StatusOK, configstore.NewViews(revs, include))
}

// storeConfig handles POST /api/v1/elements/{element}/configs/{series}.
func (h *Handler) storeConfig(w http.ResponseWriter, r *http.Request) {
	ref, ok := elementRef(w, r)
	if !ok {
		return
	}
	name, ok := seriesName(w, r)
	if !ok {
		return
	}

	var req storeConfigRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxContentBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	state, err := configstore.ParseState(req.State)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	content, contentType := req.payload()

	h.store(w, r, ref, configstore.StoreRequest{
		Series:      name,
		ContentType: contentType,
		State:       state,
		Content:     content,
		Comment:     req.Comment,
	})
}

// uploadConfig handles PUT /api/v1/elements/{element}/configs/{series}. The
// body is the raw configuration, typed by the Content-Type header; state and
// comment are query parameters.
func (h *Handler) uploadConfig(w http.ResponseWriter, r *http.Request) {
	ref, ok := elementRef(w, r)
	if !ok {
		return
	}
	name, ok := seriesName(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	stateParam := q.Get("state")
	if stateParam == "" {
		stateParam = string(configstore.StateCandidate)
	}
	state, err := configstore.ParseState(stateParam)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxContentBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "configuration too large")
		return
	}

	h.store(w, r, ref, configstore.StoreRequest{
		Series:      name,
		ContentType: r.Header.Get("Content-Type"),
		State:       state,
		Content:     content,
		Comment:     q.Get("comment"),
	})
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request, ref element.Ref, req configstore.StoreRequest) {
	res, err := h.service.StoreConfig(r.Context(), ref, req)
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

// removeConfigRevisions handles DELETE /api/v1/elements/{element}/configs/{series}/revisions.
func (h *Handler) removeConfigRevisions(w http.ResponseWriter, r *http.Request) {
	ref, ok := elementRef(w, r)
	if !ok {
		return
	}
	name, ok := seriesName(w, r)
	if !ok {
		return
	}
	n, err := h.service.RemoveConfigRevisions(r.Context(), ref, name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

// purgeOutdatedConfigs handles POST /api/v1/elements/{element}/configs/{series}/purge.
func (h *Handler) purgeOutdatedConfigs(w http.ResponseWriter, r *http.Request) {
	ref, ok := elementRef(w, r)
	if !ok {
		return
	}
	name, ok := seriesName(w, r)
	if !ok {
		return
	}
	n, err := h.service.PurgeOutdatedConfigs(r.Context(), ref, name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

// forceRemoveElementConfigs handles DELETE /api/v1/elements/{element}/configs.
func (h *Handler) forceRemoveElementConfigs(w http.ResponseWriter, r *http.Request) {
	ref, ok := elementRef(w, r)
	if !ok {
		return
	}
	n, err := h.service.ForceRemoveElementConfigs(r.Context(), ref)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}
