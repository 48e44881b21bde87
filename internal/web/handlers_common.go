package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/transactions/internal/core"
)

const healthCheckTimeout = 2 * time.Second

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 64 << 10

// parseYear reads the {year} path segment. Range checks happen in core.
func parseYear(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "year")
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest(fmt.Errorf("invalid year %q: must be a number", raw))
	}
	return year, nil
}

// dateParam accepts RFC 3339 timestamps, zone-less timestamps (read as
// UTC) and bare dates.
type dateParam struct {
	time.Time
	dateOnly bool
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (d *dateParam) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	s = strings.TrimSpace(s)

	if t, err := time.Parse(time.DateOnly, s); err == nil {
		*d = dateParam{Time: t, dateOnly: true}
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*d = dateParam{Time: t.UTC()}
			return nil
		}
	}
	return fmt.Errorf("unrecognized date %q", s)
}

// exportRequest is the body of POST /api/transactions/export/excel.
type exportRequest struct {
	StartDate *dateParam `json:"start_date"`
	EndDate   *dateParam `json:"end_date"`

	IncludeTransactionID   bool `json:"include_transaction_id"`
	IncludeName            bool `json:"include_name"`
	IncludeEmail           bool `json:"include_email"`
	IncludeAmount          bool `json:"include_amount"`
	IncludeTransactionDate bool `json:"include_transaction_date"`
	IncludeTimezone        bool `json:"include_timezone"`
	IncludeLocation        bool `json:"include_location"`
}

// decodeExportRequest reads the body into an ExportSpec. A bare end date
// covers that whole day.
func decodeExportRequest(w http.ResponseWriter, r *http.Request) (core.ExportSpec, error) {
	var req exportRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return core.ExportSpec{}, badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	if req.StartDate == nil || req.EndDate == nil {
		return core.ExportSpec{}, badRequest(errors.New("invalid request body: start_date and end_date are required"))
	}

	end := req.EndDate.Time
	if req.EndDate.dateOnly {
		end = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	return core.ExportSpec{
		StartDate:              req.StartDate.Time,
		EndDate:                end,
		IncludeTransactionID:   req.IncludeTransactionID,
		IncludeName:            req.IncludeName,
		IncludeEmail:           req.IncludeEmail,
		IncludeAmount:          req.IncludeAmount,
		IncludeTransactionDate: req.IncludeTransactionDate,
		IncludeTimezone:        req.IncludeTimezone,
		IncludeLocation:        req.IncludeLocation,
	}, nil
}

type healthResponse struct {
	Status  string                   `json:"status"`
	Checks  map[string]string        `json:"checks,omitempty"`
	Uploads core.UploadLimiterStatus `json:"uploads"`
}

// handleHealth runs every dependency check; any failure answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Uploads: s.service.Limiter().Status()}
	status := http.StatusOK

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
	}
	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			resp.Checks[c.Name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}

	writeJSON(w, r, status, resp)
}
