package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"conversation-transcriber/internal/app"
	"conversation-transcriber/internal/models"
	"conversation-transcriber/internal/service/audio"
	"conversation-transcriber/internal/service/session"
	"conversation-transcriber/internal/storage"
)

// maxFrameBody bounds one frames request; a second of raw stereo capture
// is 96000 bytes.
const maxFrameBody = 1 << 20

var audioContentTypes = []string{"audio/pcm", "audio/l16", "application/octet-stream"}

type handlers struct {
	app *app.Application
}

type startRequest struct {
	LanguageCode string `json:"languageCode"`
}

type startResponse struct {
	Started   bool   `json:"started"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) startSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, startResponse{Error: "invalid request body"})
			return
		}
	}

	sess, err := h.app.Coordinator.StartSession(r.Context(), req.LanguageCode)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, startResponse{Started: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, startResponse{Started: true, SessionID: sess.ID})
}

func (h *handlers) stopSession(w http.ResponseWriter, r *http.Request) {
	res := session.ResultOf(h.app.Coordinator.Stop())
	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

func (h *handlers) sessionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Coordinator.Status())
}

func (h *handlers) sendFrame(w http.ResponseWriter, r *http.Request) {
	speaker, err := models.ParseSpeaker(chi.URLParam(r, "speaker"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
		return
	}

	err = h.app.Coordinator.SendFrame(r.Context(), speaker, r.Header.Get("Content-Type"), data)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, session.ErrNotActive):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, audio.ErrFormatMismatch):
		writeJSON(w, http.StatusUnsupportedMediaType, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (h *handlers) listTranscripts(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	transcripts, err := h.app.Store.ListTranscripts(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		log.Error().Err(err).Str("sessionId", sessionID).Str("requestId", middleware.GetReqID(r.Context())).Msg("Failed to list transcripts")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list transcripts"})
		return
	}
	if transcripts == nil {
		transcripts = []storage.Transcript{}
	}
	writeJSON(w, http.StatusOK, transcripts)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}
