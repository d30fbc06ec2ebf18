package web

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	undertone "github.com/menta2k/undertone-analyzer"
	"github.com/menta2k/undertone-analyzer/internal/utils"
	"github.com/menta2k/undertone-analyzer/pkg/loader"
	"github.com/menta2k/undertone-analyzer/pkg/types"
)

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": undertone.Version,
	})
}

func parseSkinType(value string) (*types.SkinType, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	skinType, err := types.ParseSkinType(value)
	if err != nil {
		return nil, err
	}
	return &skinType, nil
}

// analyze accepts a multipart upload with an "image" file and an optional
// "skin_type" field
func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.config.Server.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "upload exceeds "+utils.FormatFileSize(maxBytes))
			return
		}
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	skinType, err := parseSkinType(r.FormValue("skin_type"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "image is empty")
		return
	}

	name := utils.SanitizeFilename(filepath.Base(header.Filename))
	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = utils.MediaTypeForFile(name)
	}
	if mediaType == "" {
		mediaType = loader.SniffMediaType(data)
	}
	src := types.ImageSource{Data: data, MediaType: mediaType, Name: name}

	id, created := sessionID(r)
	if created {
		setSessionCookie(w, r, id)
	}
	w.Header().Set(sessionHeader, id)

	outcome, err := s.sessions.acquire(id).Analyze(r.Context(), src)
	switch {
	case errors.Is(err, types.ErrSuperseded):
		respondError(w, http.StatusConflict, "analysis superseded by a newer upload")
		return
	case err != nil:
		log.Printf("analysis of %s cancelled: %v", sanitizeForLog(name), err)
		respondError(w, http.StatusServiceUnavailable, "analysis cancelled")
		return
	}

	report := s.analyzer.Report(name, outcome, skinType)
	if !report.OK {
		respondJSON(w, http.StatusUnprocessableEntity, report)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

type sessionResponse struct {
	ID         string            `json:"id"`
	State      string            `json:"state"`
	Generation uint64            `json:"generation"`
	Last       *undertone.Report `json:"last,omitempty"`
}

func (s *Server) sessionStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, ok := s.sessions.lookup(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	resp := sessionResponse{
		ID:         id,
		State:      session.State().String(),
		Generation: session.Generation(),
	}
	if outcome, ok := session.Last(); ok {
		report := s.analyzer.Report("", outcome, nil)
		resp.Last = &report
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.remove(chi.URLParam(r, "id")) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// products lists catalog entries for ?label= and optional ?skin_type=
func (s *Server) products(w http.ResponseWriter, r *http.Request) {
	label, err := types.ParseUndertone(r.URL.Query().Get("label"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	skinType, err := parseSkinType(r.URL.Query().Get("skin_type"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.analyzer.Catalog().Filter(label, skinType))
}
