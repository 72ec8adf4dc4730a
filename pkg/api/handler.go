// Package api provides the REST endpoints of the configuration store.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/txn2/mcp-element-config/pkg/audit"
	"github.com/txn2/mcp-element-config/pkg/configstore"
	"github.com/txn2/mcp-element-config/pkg/element"
)

const (
	pathParamElement  = "element"
	pathParamSeries   = "series"
	pathParamRevision = "revision"

	// maxContentBytes bounds uploaded configuration payloads.
	maxContentBytes = 8 << 20
)

// EventQuerier reads recorded configuration events.
type EventQuerier interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
	Breakdown(ctx context.Context, filter audit.BreakdownFilter) ([]audit.BreakdownEntry, error)
}

// Handler provides the REST API.
type Handler struct {
	mux     *http.ServeMux
	service *configstore.Service
	events  EventQuerier
}

// NewHandler creates the REST API handler. events may be nil when
// configuration events are not recorded.
func NewHandler(service *configstore.Service, events EventQuerier) *Handler {
	h := &Handler{
		mux:     http.NewServeMux(),
		service: service,
		events:  events,
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// registerRoutes registers all API routes.
func (h *Handler) registerRoutes() {
	const el = "/api/v1/elements/{element}"

	h.mux.HandleFunc("GET "+el+"/configs", h.findConfigs)
	h.mux.HandleFunc("DELETE "+el+"/configs", h.forceRemoveElementConfigs)
	h.mux.HandleFunc("GET "+el+"/configs/{series}", h.getConfig)
	h.mux.HandleFunc("POST "+el+"/configs/{series}", h.storeConfig)
	h.mux.HandleFunc("PUT "+el+"/configs/{series}", h.uploadConfig)
	h.mux.HandleFunc("GET "+el+"/configs/{series}/active", h.getActiveConfig)
	h.mux.HandleFunc("GET "+el+"/configs/{series}/revisions", h.getConfigRevisions)
	h.mux.HandleFunc("DELETE "+el+"/configs/{series}/revisions", h.removeConfigRevisions)
	h.mux.HandleFunc("POST "+el+"/configs/{series}/purge", h.purgeOutdatedConfigs)

	h.mux.HandleFunc("GET "+el+"/revisions/{revision}", h.getConfigByID)
	h.mux.HandleFunc("DELETE "+el+"/revisions/{revision}", h.removeConfig)
	h.mux.HandleFunc("GET "+el+"/revisions/{revision}/content", h.downloadConfig)
	h.mux.HandleFunc("POST "+el+"/revisions/{revision}/activate", h.activateConfig)
	h.mux.HandleFunc("POST "+el+"/revisions/{revision}/restore", h.restoreConfig)
	h.mux.HandleFunc("PUT "+el+"/revisions/{revision}/comment", h.setComment)

	if h.events != nil {
		h.mux.HandleFunc("GET /api/v1/events", h.listEvents)
		h.mux.HandleFunc("GET /api/v1/events/breakdown", h.eventBreakdown)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the body of every error response.
type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps a service error to its HTTP status.
func writeServiceError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	writeJSON(w, status, errorResponse{Error: err.Error(), Retryable: configstore.IsRetryable(err)})
}

// StatusFor returns the HTTP status of a service error.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, configstore.ErrElementNotFound), errors.Is(err, configstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, configstore.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, configstore.ErrInvalidState),
		errors.Is(err, configstore.ErrConflict),
		errors.Is(err, configstore.ErrConcurrentModification):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// elementRef parses the element path parameter.
func elementRef(w http.ResponseWriter, r *http.Request) (element.Ref, bool) {
	ref, err := element.ParseRef(r.PathValue(pathParamElement))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return element.Ref{}, false
	}
	return ref, true
}

// seriesName parses the series path parameter.
func seriesName(w http.ResponseWriter, r *http.Request) (configstore.SeriesName, bool) {
	name, err := configstore.ParseSeriesName(r.PathValue(pathParamSeries))
	if err != nil {
		writeServiceError(w, err)
		return "", false
	}
	return name, true
}

// revisionID parses the revision path parameter.
func revisionID(w http.ResponseWriter, r *http.Request) (configstore.RevisionID, bool) {
	id, err := configstore.ParseRevisionID(r.PathValue(pathParamRevision))
	if err != nil {
		writeServiceError(w, err)
		return "", false
	}
	return id, true
}
