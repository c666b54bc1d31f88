package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/countrelay/internal/audit"
)

// handleListAccessEvents returns badge toggle decisions made at a pin.
//
// Query parameters:
//   - granted: filter by decision (true/false)
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAccessEvents(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "access history not available")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{Pin: pinFromContext(r.Context())}

	if v := q.Get("granted"); v != "" {
		granted, err := strconv.ParseBool(v)
		if err != nil {
			writeValidation(w, "granted must be true or false")
			return
		}
		filter.Granted = &granted
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeValidation(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeValidation(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing access events failed", "error", err)
		writeInternalError(w, "failed to list access events")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
