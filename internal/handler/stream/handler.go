package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	chatservice "github.com/voralis/skycast/backend/internal/service/chat"
	"github.com/voralis/skycast/backend/internal/service/dialogue"
	"github.com/voralis/skycast/backend/pkg/utils"
)

// Handler delivers dialogue turns via Server-Sent Events.
type Handler struct {
	engine *dialogue.Engine
}

// New creates a new stream handler.
func New(engine *dialogue.Engine) *Handler {
	return &Handler{engine: engine}
}

// StreamResponse represents a streaming response chunk.
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HandleStreamRequest runs one dialogue turn and streams its fragments.
// A turn already in flight for the session is rejected with 409 before
// the event stream opens.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID string, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	fragments, err := h.engine.HandleTurn(ctx, sessionID, userMessage)
	if err != nil {
		if errors.Is(err, chatservice.ErrSessionBusy) {
			utils.RespondError(w, http.StatusConflict, "session busy")
			return err
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to start turn")
		return err
	}
	defer fragments.Close()

	utils.SetupSSEHeaders(w)

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "start",
		SessionID: sessionID,
	})

	var full strings.Builder
	for {
		fragment, recvErr := fragments.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			h.sendSSE(w, flusher, StreamResponse{Event: "error", Error: recvErr.Error()})
			return recvErr
		}

		full.WriteString(fragment)
		h.sendSSE(w, flusher, StreamResponse{
			Event:     "delta",
			SessionID: sessionID,
			Content:   fragment,
		})
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   full.String(),
	})

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "end",
		SessionID: sessionID,
		Finished:  true,
	})

	log.Printf("[stream] completed turn for session=%s", sessionID)
	return nil
}

func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	utils.SendSSEChunk(w, flusher, response)
}
