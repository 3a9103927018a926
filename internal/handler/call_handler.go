package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ClareAI/astra-call-bridge/internal/core/registry"
	"github.com/ClareAI/astra-call-bridge/internal/domain"
	"github.com/ClareAI/astra-call-bridge/internal/telephony"
	"github.com/ClareAI/astra-call-bridge/pkg/logger"
	pkgtranscribe "github.com/ClareAI/astra-call-bridge/pkg/transcribe"
)

// CallService is the part of the call service the HTTP layer uses.
type CallService interface {
	PlayAudio(ctx context.Context, sessionID, audioFile, target string) error
}

// TranscribeService is the part of the transcription manager the HTTP
// layer uses.
type TranscribeService interface {
	Start(ctx context.Context, sessionID string) error
	Stop(ctx context.Context, sessionID string) error
	Transcript(sessionID string) ([]pkgtranscribe.Result, bool)
}

// CallHandler exposes the session control endpoints
type CallHandler struct {
	reg           *registry.Registry
	tel           telephony.Client
	callService   CallService
	transcription TranscribeService
}

// NewCallHandler creates the call control handler
func NewCallHandler(reg *registry.Registry, tel telephony.Client, callService CallService, transcription TranscribeService) *CallHandler {
	return &CallHandler{
		reg:           reg,
		tel:           tel,
		callService:   callService,
		transcription: transcription,
	}
}

// SetupControlRoutes registers the session control endpoints; the
// health probe is registered separately by the handler manager.
func (h *CallHandler) SetupControlRoutes(router *mux.Router) {
	router.HandleFunc("/start-transcription/{sessionId}", h.StartTranscription).Methods("POST")
	router.HandleFunc("/stop-transcription/{sessionId}", h.StopTranscription).Methods("POST")
	router.HandleFunc("/play-audio/{sessionId}", h.PlayAudio).Methods("POST")
	router.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	router.HandleFunc("/transcripts/{sessionId}", h.GetTranscript).Methods("GET")
}

type playAudioRequest struct {
	AudioFile string `json:"audioFile"`
	Target    string `json:"target"`
}

// PlayAudio plays a media file into a session, either bridge-wide or
// whispered to a single party.
func (h *CallHandler) PlayAudio(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	var req playAudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AudioFile == "" {
		writeJSONError(w, http.StatusBadRequest, "audioFile is required")
		return
	}

	if err := h.callService.PlayAudio(r.Context(), sessionID, req.AudioFile, req.Target); err != nil {
		logger.Base().Error("play audio failed",
			zap.String("session_id", sessionID),
			zap.String("audio_file", req.AudioFile),
			zap.String("target", req.Target),
			zap.Error(err),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"sessionId": sessionID,
		"audioFile": req.AudioFile,
	})
}

// StartTranscription begins live transcription of the session's caller
// leg.
func (h *CallHandler) StartTranscription(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	if err := h.transcription.Start(r.Context(), sessionID); err != nil {
		logger.Base().Error("start transcription failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"sessionId": sessionID,
	})
}

// StopTranscription stops transcription for the session. Stopping when
// nothing is running still succeeds.
func (h *CallHandler) StopTranscription(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	if err := h.transcription.Stop(r.Context(), sessionID); err != nil {
		logger.Base().Warn("stop transcription failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"sessionId": sessionID,
	})
}

// ListSessions returns every active session.
func (h *CallHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.reg.List()
	infos := make([]domain.SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(infos),
		"sessions": infos,
	})
}

// GetTranscript returns the utterances captured so far for a session
// with active transcription.
func (h *CallHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	transcript, ok := h.transcription.Transcript(sessionID)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no active transcription for session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId":  sessionID,
		"transcript": transcript,
	})
}

// Health reports service liveness and control-plane connectivity.
func (h *CallHandler) Health(w http.ResponseWriter, r *http.Request) {
	connected := h.tel.Connected()
	status := http.StatusOK
	if !connected {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]interface{}{
		"status":       statusWord(connected),
		"ariConnected": connected,
		"sessions":     len(h.reg.List()),
	})
}

func statusWord(healthy bool) string {
	if healthy {
		return "ok"
	}
	return "degraded"
}

// writeDomainError maps service errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidTarget):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrSessionNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrTranscriptionActive):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrPlaybackTimeout):
		writeJSONError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Base().Warn("writing response failed", zap.Error(err))
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"error": msg})
}
