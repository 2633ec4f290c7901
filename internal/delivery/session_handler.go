package delivery

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/voicememo/internal/domain"
	"github.com/Vovarama1992/voicememo/internal/models"
	"github.com/Vovarama1992/voicememo/internal/ports"
	"github.com/go-chi/chi/v5"
)

const maxFragmentBytes = 8 << 20

type SessionHandler struct {
	sessions ports.SessionService
	log      *logger.ZapLogger
}

func NewSessionHandler(sessions ports.SessionService, log *logger.ZapLogger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		log:      log,
	}
}

type errorResponse struct {
	Error   string                  `json:"error"`
	Session *models.SessionSnapshot `json:"session,omitempty"`
}

// POST /api/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sessions.Create(r.Context())
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// GET /api/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.List(r.Context()))
}

// GET /api/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, snap, err)
}

// DELETE /api/sessions/{id}
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/sessions/{id}/name
func (h *SessionHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	snap, err := h.sessions.Rename(r.Context(), chi.URLParam(r, "id"), req.Name)
	h.respond(w, r, http.StatusOK, snap, err)
}

// PUT /api/sessions/{id}/permission
func (h *SessionHandler) SetPermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Granted *bool `json:"granted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Granted == nil {
		http.Error(w, "granted is required", http.StatusBadRequest)
		return
	}

	snap, err := h.sessions.SetPermission(r.Context(), chi.URLParam(r, "id"), *req.Granted)
	h.respond(w, r, http.StatusOK, snap, err)
}

// POST /api/sessions/{id}/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sessions.Start(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, snap, err)
}

// POST /api/sessions/{id}/stop
func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sessions.Stop(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, snap, err)
}

// POST /api/sessions/{id}/fragments?take=N
//
// A fragment for a take that is no longer recording is dropped and answered
// with 202 and accepted=false, so late chunks from the browser are harmless.
func (h *SessionHandler) AppendFragment(w http.ResponseWriter, r *http.Request) {
	take := 0
	if raw := r.URL.Query().Get("take"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid take", http.StatusBadRequest)
			return
		}
		take = n
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFragmentBytes))
	if err != nil {
		http.Error(w, "fragment too large or unreadable", http.StatusRequestEntityTooLarge)
		return
	}

	accepted, err := h.sessions.AppendFragment(r.Context(), chi.URLParam(r, "id"), take, body)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": accepted})
}

// GET /api/sessions/{id}/audio
//
// ?inline=1 serves the recording for in-page preview instead of as a download.
func (h *SessionHandler) Audio(w http.ResponseWriter, r *http.Request) {
	audio, name, err := h.sessions.Audio(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}

	disposition := "attachment"
	if r.URL.Query().Get("inline") != "" {
		disposition = "inline"
	}

	w.Header().Set("Content-Type", audio.MIMEType())
	w.Header().Set("Content-Length", strconv.Itoa(audio.Len()))
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{
		"filename": downloadName(name),
	}))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, audio.Reader())
}

// POST /api/sessions/{id}/downloaded
func (h *SessionHandler) MarkDownloaded(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sessions.MarkDownloaded(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, snap, err)
}

// POST /api/sessions/{id}/upload
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sessions.Upload(r.Context(), chi.URLParam(r, "id"))
	if err == nil {
		h.log.Log(logger.LogEntry{
			Level:   "info",
			Message: "upload accepted",
			Fields:  map[string]any{"sessionID": snap.ID, "bytes": snap.AudioSize},
		})
	}
	h.respond(w, r, http.StatusAccepted, snap, err)
}

// ========================================================================
// helpers
// ========================================================================

func (h *SessionHandler) respond(w http.ResponseWriter, r *http.Request, status int, snap models.SessionSnapshot, err error) {
	if err != nil {
		var withSnap *models.SessionSnapshot
		if snap.ID != "" {
			withSnap = &snap
		}
		h.fail(w, r, err, withSnap)
		return
	}
	writeJSON(w, status, snap)
}

func (h *SessionHandler) fail(w http.ResponseWriter, r *http.Request, err error, snap *models.SessionSnapshot) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Log(logger.LogEntry{
			Level:   "error",
			Message: "request failed",
			Error:   err,
			Fields:  map[string]any{"path": r.URL.Path, "method": r.Method},
		})
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Session: snap})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, domain.ErrNameRequired), errors.Is(err, domain.ErrNoAudio):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusPreconditionFailed
	case errors.Is(err, domain.ErrAlreadyRecording),
		errors.Is(err, domain.ErrNotRecording),
		errors.Is(err, domain.ErrUploadInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func downloadName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, name)
	if name == "" {
		name = "recording"
	}
	return name + ".webm"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
