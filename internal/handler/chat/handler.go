package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatservice "github.com/voralis/skycast/backend/internal/service/chat"
	"github.com/voralis/skycast/backend/pkg/utils"
)

// Handler exposes session lifecycle and transcript endpoints.
type Handler struct {
	chatSvc *chatservice.Service
}

// New creates the chat handler.
func New(chatSvc *chatservice.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes registers session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Post("/session/{sessionID}/reset", h.handleResetSession)
	r.Get("/session/{sessionID}/messages", h.handleTranscript)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

// handleResetSession starts a fresh conversation. The old session id is
// simply abandoned; no history migrates to the new one.
func (h *Handler) handleResetSession(w http.ResponseWriter, r *http.Request) {
	oldID := chi.URLParam(r, "sessionID")

	session, err := h.chatSvc.ResetSession(r.Context(), oldID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	messages, err := h.chatSvc.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chatservice.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, messages)
}
