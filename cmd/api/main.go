package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voralis/skycast/backend/internal/config"
	"github.com/voralis/skycast/backend/internal/handler"
	"github.com/voralis/skycast/backend/internal/service/ai"
	"github.com/voralis/skycast/backend/internal/service/chat"
	"github.com/voralis/skycast/backend/internal/service/dialogue"
	"github.com/voralis/skycast/backend/internal/tools"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	chatService := chat.NewService()

	registry := tools.NewRegistry(
		tools.NewGeocoder(cfg.Providers.Geocode),
		tools.NewForecastClient(cfg.Providers.Forecast),
	)

	var engine *dialogue.Engine
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI, registry.Infos())
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without dialogue functionality - check the ARK_* environment variables")
		} else {
			engine = dialogue.NewEngine(chatService, aiService, registry, cfg.Dialogue)
			log.Println("dialogue engine initialized successfully")
		}
	} else {
		log.Println("model credentials not configured, skipping dialogue initialization")
	}

	router := handler.NewRouter(chatService, engine)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Skycast backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
