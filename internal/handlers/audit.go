package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/billchurch/webssh2-sub007/internal/audit"
)

// parseAuditQuery maps URL query parameters onto audit query options. Bad
// timestamps are reported back to the caller; bad numbers fall back to the
// query defaults.
func parseAuditQuery(r *http.Request) (audit.QueryOptions, string) {
	q := r.URL.Query()
	opts := audit.QueryOptions{
		SessionID: q.Get("session_id"),
		Event:     q.Get("event"),
		Username:  q.Get("username"),
		Host:      q.Get("host"),
		Level:     q.Get("level"),
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Offset = n
		}
	}

	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, "Invalid since timestamp, expected RFC 3339"
		}
		opts.Since = &ts
	}
	if v := q.Get("until"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, "Invalid until timestamp, expected RFC 3339"
		}
		opts.Until = &ts
	}

	return opts, ""
}

func QueryAuditLogs(w http.ResponseWriter, r *http.Request) {
	a := audit.Get()
	if a == nil {
		writeError(w, http.StatusServiceUnavailable, "Audit log not available")
		return
	}

	opts, detail := parseAuditQuery(r)
	if detail != "" {
		writeError(w, http.StatusBadRequest, detail)
		return
	}

	res, err := a.Query(opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
