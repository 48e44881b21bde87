package web

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/JonMunkholm/transactions/internal/logging"
)

// multipartMemory is how much of a multipart form is held in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// handleUpload saves a delimited file sent as the multipart field "file"
// and answers 201 with the saved transactions.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Uploads may outlive the server's read and write timeouts.
	if d := s.uploadDeadline(); d > 0 {
		rc := http.NewResponseController(w)
		deadline := time.Now().Add(d)
		if err := rc.SetReadDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
			logging.FromContext(r.Context()).Warn("extend upload read deadline", "error", err)
		}
		if err := rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
			logging.FromContext(r.Context()).Warn("extend upload write deadline", "error", err)
		}
	}

	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, &requestError{
				status: http.StatusRequestEntityTooLarge,
				err:    fmt.Errorf("file too large: limit is %d bytes", maxSize),
			})
			return
		}
		s.respondError(w, r, badRequest(fmt.Errorf("invalid multipart form: %w", err)))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, badRequest(errors.New("no file provided: send the upload as form field \"file\"")))
		return
	}
	defer file.Close()

	result, err := s.service.SaveUpload(r.Context(), header.Filename, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, result)
}
