package web

import (
	"net/http"
	"strconv"
)

// handleListClientZones lists transactions of a year, and optionally a
// month, by each record's own local date.
func (s *Server) handleListClientZones(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	txs, err := s.service.ListForClientZones(r.Context(), year, r.URL.Query().Get("month"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, txs)
}

// handleListCallerZone lists transactions recorded in the caller's zone,
// located from the request address.
func (s *Server) handleListCallerZone(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	txs, err := s.service.ListForCallerZone(r.Context(), clientIP(r), year, r.URL.Query().Get("month"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, txs)
}

// handleExport streams the selected columns of a UTC date range as an
// xlsx attachment.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	spec, err := decodeExportRequest(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	file, err := s.service.Export(r.Context(), spec)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.Name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.Header().Set("X-Export-Rows", strconv.Itoa(file.Rows))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}
