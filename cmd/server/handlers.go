package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spongelab/sponge"
	"github.com/spongelab/sponge/store"
)

type handler struct {
	engine         *sponge.Engine
	maxUploadBytes int64
}

func newHandler(e *sponge.Engine, maxUploadBytes int64) *handler {
	return &handler{engine: e, maxUploadBytes: maxUploadBytes}
}

// POST /onboard
func (h *handler) handleOnboard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectName string `json:"project_name"`
		Topic       string `json:"topic"`
		Audience    string `json:"audience"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sess, err := h.engine.Onboard(r.Context(), req.ProjectName, req.Topic, req.Audience)
	if err != nil {
		writeEngineError(w, err, "onboard")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// POST /chat_turn
func (h *handler) handleChatTurn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	var req struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.engine.ChatTurn(ctx, req.SessionID, req.Message)
	if err != nil {
		writeEngineError(w, err, "chat_turn")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /upload
// Multipart form with a "file" part and a "session_id" field.
func (h *handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form upload")
		return
	}
	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read upload")
		slog.Error("reading upload", "error", err)
		return
	}

	// Sanitise filename to prevent path traversal.
	safeName := filepath.Base(header.Filename)

	result, err := h.engine.UploadDocument(ctx, sessionID, safeName, header.Header.Get("Content-Type"), data)
	if err != nil {
		writeEngineError(w, err, "upload")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GET /graph_view?session_id=...
func (h *handler) handleGraphView(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	view, err := h.engine.Graph(r.Context(), sessionID)
	if err != nil {
		writeEngineError(w, err, "graph_view")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GET /node/{id}
func (h *handler) handleNode(w http.ResponseWriter, r *http.Request) {
	detail, err := h.engine.Node(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err, "node")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// GET /nuggets?session_id=...&type=...&status=...&sort=...
func (h *handler) handleListNuggets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	nuggets, err := h.engine.ListNuggets(r.Context(), sessionID, store.ListNuggetsOptions{
		NuggetType: q.Get("type"),
		Status:     q.Get("status"),
		SortBy:     q.Get("sort"),
	})
	if err != nil {
		writeEngineError(w, err, "nuggets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"nuggets": nuggets})
}

// POST /nugget/{id}/feedback
func (h *handler) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Feedback string `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	nugget, err := h.engine.SubmitFeedback(r.Context(), r.PathValue("id"), req.Feedback)
	if err != nil {
		writeEngineError(w, err, "feedback")
		return
	}
	writeJSON(w, http.StatusOK, nugget)
}

// GET /nugget/{id}/feedback
func (h *handler) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	feedback, err := h.engine.Feedback(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err, "feedback")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"feedback": feedback})
}

// POST /nugget/{id}/status
func (h *handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	nugget, err := h.engine.UpdateStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		writeEngineError(w, err, "status")
		return
	}
	writeJSON(w, http.StatusOK, nugget)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeEngineError maps engine sentinel errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, sponge.ErrSessionNotFound),
		errors.Is(err, sponge.ErrNodeNotFound),
		errors.Is(err, sponge.ErrNuggetNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, sponge.ErrEmptyMessage),
		errors.Is(err, sponge.ErrInvalidStatus),
		errors.Is(err, sponge.ErrInvalidFeedback),
		errors.Is(err, sponge.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sponge.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, sponge.ErrUnsupportedFormat):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
		slog.Error(op+" error", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
