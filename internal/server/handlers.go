package server

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"docscan/internal/ocr"
	"docscan/internal/pixel"
	"docscan/internal/session"
	"docscan/pkg/models"
	"docscan/pkg/services"
)

type scanResponse struct {
	ID    string             `json:"id"`
	State services.ScanState `json:"state"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"user_message,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createScan(w http.ResponseWriter, r *http.Request) {
	img, ok := s.readImage(w, r)
	if !ok {
		return
	}

	service, known := models.ParseService(r.FormValue("preferredService"))
	if !known {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown preferredService"})
		return
	}
	opts := ocr.Options{
		Language:         r.FormValue("language"),
		DocumentType:     models.ParseDocumentType(r.FormValue("documentType")),
		PreferredService: service,
	}

	id := uuid.New()
	c := session.New(s.scanner, id.String())
	s.sessions.add(id, c)

	ctx, cancel := context.WithTimeout(s.base, s.config.ScanTimeout)
	s.watch(id, cancel, c.Submit(ctx, img, opts))

	writeJSON(w, http.StatusAccepted, scanResponse{ID: id.String(), State: c.State()})
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{ID: id.String(), State: c.State()})
}

func (s *Server) retryScan(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.lookup(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(s.base, s.config.ScanTimeout)
	done, err := c.SubmitRetry(ctx)
	if err != nil {
		cancel()
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	s.watch(id, cancel, done)

	writeJSON(w, http.StatusAccepted, scanResponse{ID: id.String(), State: c.State()})
}

func (s *Server) deleteScan(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid scan ID"})
		return
	}
	c, ok := s.sessions.remove(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "scan not found"})
		return
	}
	c.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) assessQuality(w http.ResponseWriter, r *http.Request) {
	img, ok := s.readImage(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.assessor.Assess(img))
}

// watch releases the scan context once the run ends.
func (s *Server) watch(id uuid.UUID, cancel context.CancelFunc, done <-chan error) {
	go func() {
		defer cancel()
		if err := <-done; err != nil && !errors.Is(err, session.ErrSuperseded) {
			s.log.Debug().Err(err).Str("scan_id", id.String()).Msg("Scan run ended with error")
		}
	}()
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (uuid.UUID, *session.Controller, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid scan ID"})
		return uuid.Nil, nil, false
	}
	c, ok := s.sessions.get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "scan not found"})
		return uuid.Nil, nil, false
	}
	return id, c, true
}

// readImage decodes the multipart "image" part and writes the error response
// itself when that fails.
func (s *Server) readImage(w http.ResponseWriter, r *http.Request) (*image.NRGBA, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error:   pixel.ErrImageTooLarge.Error(),
				Message: ocr.UserMessage(pixel.ErrImageTooLarge),
			})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart form"})
		return nil, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "image required"})
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.config.MaxUploadBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "reading image: " + err.Error()})
		return nil, false
	}
	if int64(len(data)) > s.config.MaxUploadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
			Error:   pixel.ErrImageTooLarge.Error(),
			Message: ocr.UserMessage(pixel.ErrImageTooLarge),
		})
		return nil, false
	}

	img, err := pixel.Decode(data, header.Header.Get("Content-Type"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Message: ocr.UserMessage(err)})
		return nil, false
	}
	return img, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
