package handler

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/voralis/skycast/backend/internal/handler/chat"
	"github.com/voralis/skycast/backend/internal/handler/stream"
	"github.com/voralis/skycast/backend/internal/handler/ws"
	middlewarePkg "github.com/voralis/skycast/backend/internal/middleware"
	chatService "github.com/voralis/skycast/backend/internal/service/chat"
	"github.com/voralis/skycast/backend/internal/service/dialogue"
	"github.com/voralis/skycast/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. The dialogue engine may
// be nil when model credentials are absent; session management still
// works so the frontend can render history.
func NewRouter(chatSvc *chatService.Service, engine *dialogue.Engine) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(chatSvc)

	var streamHandler *stream.Handler
	var wsHandler *ws.Handler
	if engine != nil {
		streamHandler = stream.New(engine)
		wsHandler = ws.New(engine, chatSvc)
	}

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)

		api.Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionID")
			userMessage := r.URL.Query().Get("message")

			if streamHandler == nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "ai streaming unavailable")
				return
			}
			if userMessage == "" {
				utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
				return
			}

			if err := streamHandler.HandleStreamRequest(r.Context(), w, sessionID, userMessage); err != nil {
				log.Printf("[stream] error handling request: %v", err)
			}
		})

		if wsHandler != nil {
			wsHandler.RegisterRoutes(api)
		}
	})

	return r
}
