package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/patrickmn/go-cache"

	"adstoryboard/internal/app"
	"adstoryboard/internal/storage"
	"adstoryboard/internal/storyboard"
)

type storyboardResponse struct {
	ID     string             `json:"id"`
	Status storage.Status     `json:"status"`
	Scenes []storyboard.Scene `json:"scenes"`
	Error  string             `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	cfg := s.service.Config()

	r.Body = http.MaxBytesReader(w, r.Body, cfg.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(cfg.Server.MaxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart form"})
		return
	}

	image, err := readFormFile(r, "image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid image upload"})
		return
	}

	req := app.GenerateRequest{
		Description: r.FormValue("description"),
		Selection: storyboard.Selection{
			Vibe:        r.FormValue("vibe"),
			Lighting:    r.FormValue("lighting"),
			ContentType: r.FormValue("contentType"),
		},
		Image: image,
	}

	params, err := s.pipeline.Prepare(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: storyboard.UserMessage(err, cfg.Generation.Locale)})
		return
	}

	release, err := s.acquire(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "request cancelled while waiting"})
		return
	}
	defer release()

	result, err := s.pipeline.Run(r.Context(), params, nil)
	if result == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: storyboard.UserMessage(err, cfg.Generation.Locale)})
		return
	}

	resp := s.remember(result)
	status := http.StatusOK
	if err != nil {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !storage.ValidID(id) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "storyboard not found"})
		return
	}

	if cached, ok := s.results.Get(id); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	sink := s.service.Sink()
	if sink == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "storyboard not found"})
		return
	}

	manifest, err := sink.LoadManifest(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidID) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "storyboard not found"})
		return
	}
	if err != nil {
		slog.Error("Failed to load manifest", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load storyboard"})
		return
	}
	writeJSON(w, http.StatusOK, s.fromManifest(r.Context(), sink, manifest))
}

// fromManifest rebuilds the response shape of a finished run from stored
// objects. Scenes whose image cannot be read are skipped.
func (s *Server) fromManifest(ctx context.Context, sink storage.Sink, m *storage.Manifest) storyboardResponse {
	resp := storyboardResponse{
		ID:     m.ID,
		Status: m.Status,
		Scenes: []storyboard.Scene{},
		Error:  m.Message,
	}
	if m.Status == storage.StatusFailed && !s.service.Config().Server.KeepPartial {
		return resp
	}

	for _, rec := range m.Scenes {
		if rec.Image == "" {
			continue
		}
		data, err := sink.LoadObject(ctx, rec.Image)
		if err != nil {
			slog.Warn("Failed to load scene image", "id", m.ID, "index", rec.Index, "error", err)
			continue
		}
		resp.Scenes = append(resp.Scenes, storyboard.Scene{
			Index:       rec.Index,
			SceneScript: rec.SceneScript,
			Image:       storyboard.EncodePayload(data, storage.MIMEType(rec.Image)).DataURI(),
		})
	}
	return resp
}

// remember caches the response for a finished run. Unless keep_partial is
// set, a failed run drops the scenes delivered before the failure.
func (s *Server) remember(result *app.GenerateResult) storyboardResponse {
	resp := storyboardResponse{
		ID:     result.Manifest.ID,
		Status: result.Manifest.Status,
		Scenes: result.Scenes,
		Error:  result.Message,
	}
	if result.Err != nil && !s.service.Config().Server.KeepPartial {
		resp.Scenes = nil
	}
	if resp.Scenes == nil {
		resp.Scenes = []storyboard.Scene{}
	}

	s.results.Set(resp.ID, resp, cache.DefaultExpiration)
	return resp
}

func readFormFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	return io.ReadAll(file)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
