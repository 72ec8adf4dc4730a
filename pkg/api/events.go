package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/txn2/mcp-element-config/pkg/audit"
)

const (
	paramStartTime = "start_time"
	paramEndTime   = "end_time"

	defaultEventLimit = 50
)

// eventListResponse wraps a page of configuration events.
type eventListResponse struct {
	Data    []audit.Event `json:"data"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
}

// listEvents handles GET /api/v1/events.
func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.QueryFilter{
		StartTime: parseTimeParam(q, paramStartTime),
		EndTime:   parseTimeParam(q, paramEndTime),
		ElementID: q.Get("element_id"),
		Series:    q.Get("series_name"),
		Type:      audit.EventType(q.Get("event_type")),
		Limit:     parseLimit(q),
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultEventLimit
	}
	filter.Offset = parsePageOffset(q, filter.Limit)

	events, err := h.events.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query configuration events")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	writeJSON(w, http.StatusOK, eventListResponse{
		Data:    events,
		Page:    filter.Offset/filter.Limit + 1,
		PerPage: filter.Limit,
	})
}

// eventBreakdown handles GET /api/v1/events/breakdown.
func (h *Handler) eventBreakdown(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	groupBy := audit.BreakdownDimension(q.Get("group_by"))
	if groupBy == "" {
		groupBy = audit.BreakdownByEventType
	}
	if !audit.ValidBreakdownDimensions[groupBy] {
		writeError(w, http.StatusBadRequest, "invalid group_by: must be event_type, series_name, creator, or element_name")
		return
	}

	filter := audit.BreakdownFilter{
		GroupBy:   groupBy,
		StartTime: parseTimeParam(q, paramStartTime),
		EndTime:   parseTimeParam(q, paramEndTime),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}

	entries, err := h.events.Breakdown(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query event breakdown")
		return
	}
	if entries == nil {
		entries = []audit.BreakdownEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// parseTimeParam parses an RFC 3339 query parameter, ignoring malformed values.
func parseTimeParam(q url.Values, key string) *time.Time {
	v := q.Get(key)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

// parsePageOffset parses the page query parameter and computes offset using the given effective limit.
func parsePageOffset(q url.Values, effectiveLimit int) int {
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return (n - 1) * effectiveLimit
		}
	}
	return 0
}

// parseLimit parses the per_page query parameter into a limit value.
func parseLimit(q url.Values) int {
	if v := q.Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
