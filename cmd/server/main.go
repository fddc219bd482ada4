// scamtrap - conversational honeypot server for scam intelligence gathering
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/honeygrid/scamtrap/internal/api"
	"github.com/honeygrid/scamtrap/internal/config"
	"github.com/honeygrid/scamtrap/internal/detect"
	"github.com/honeygrid/scamtrap/internal/domain"
	"github.com/honeygrid/scamtrap/internal/events"
	"github.com/honeygrid/scamtrap/internal/honeypot"
	"github.com/honeygrid/scamtrap/internal/intel"
	"github.com/honeygrid/scamtrap/internal/llm"
	"github.com/honeygrid/scamtrap/internal/middleware"
	"github.com/honeygrid/scamtrap/internal/patterns"
	"github.com/honeygrid/scamtrap/internal/persona"
	"github.com/honeygrid/scamtrap/internal/report"
	"github.com/honeygrid/scamtrap/internal/session"
	"github.com/honeygrid/scamtrap/internal/store"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.Dev)

	// Initialize the intelligence archive.
	archive, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize archive database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := archive.Close(); closeErr != nil {
			slog.Error("Failed to close archive", "error", closeErr)
		}
	}()

	if err := archive.Ping(context.Background()); err != nil {
		slog.Error("Archive health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Archive database connected")

	hub := events.NewHub(64)
	lib := patterns.New()

	// Retired sessions go to the archive and onto the operator feed.
	retire := func(ctx context.Context, s *domain.Session) {
		if err := archive.SaveSession(ctx, s); err != nil {
			slog.Error("Failed to archive session", "session_id", s.ID, "error", err)
		}
		hub.Publish(events.Event{Type: events.TypeSessionExpired, SessionID: s.ID})
	}
	sessions := session.NewMemoryStore(cfg.SessionWindow, retire)

	// Initialize the generation collaborator (optional).
	var generator llm.Generator
	if cfg.GenerationEnabled() {
		gemini, err := llm.NewGemini(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GenerationTimeout)
		if err != nil {
			slog.Warn("Failed to initialize Gemini client, falling back to template replies", "error", err)
		} else {
			generator = gemini
			slog.Info("Generation collaborator ready", "model", cfg.GeminiModel)
		}
	}
	if generator == nil {
		slog.Info("Generation disabled, persona will use template replies only")
	}

	var assist llm.Generator
	if cfg.AssistEnabled {
		assist = generator
	}
	detector := detect.New(lib, assist, detect.Config{
		Threshold:  cfg.ScamThreshold,
		AssistBand: cfg.AssistBand,
	})
	extractor := intel.NewExtractor(lib)
	agent := persona.NewAgent(domain.DefaultPersona(), lib, generator)

	var reporter report.Reporter
	if cfg.ReportingEnabled() {
		reporter = report.NewHTTPReporter(cfg.CallbackURL, cfg.CallbackTimeout)
		slog.Info("Callback reporting enabled", "url", cfg.CallbackURL)
	} else {
		slog.Info("Callback reporting disabled (CALLBACK_URL not set)")
	}

	svc := honeypot.NewService(sessions, detector, extractor, agent, lib, honeypot.Options{
		Reporter:           reporter,
		Hub:                hub,
		HighScoreThreshold: cfg.HighScoreThreshold,
		CallbackTimeout:    cfg.CallbackTimeout,
	})

	handler := api.NewHandler(svc, sessions, archive, generator != nil)
	feedHandler := api.NewFeedHandler(hub, cfg.Dev)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes.
	handler.RegisterHealth(r)

	// Protected routes behind the pre-shared key.
	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKey(cfg.APIKey))
		handler.RegisterRoutes(r)
		r.Get("/ws/feed", feedHandler.ServeHTTP)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Idle sessions are archived by the sweeper; lazy expiry on access
	// remains the correctness mechanism.
	sessions.StartSweeper(ctx, cfg.SweepInterval)
	slog.Info("Session sweeper started", "interval", cfg.SweepInterval, "window", cfg.SessionWindow)

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Archive whatever is still active so no intelligence is lost.
	if err := sessions.Close(shutdownCtx); err != nil {
		slog.Error("Failed to retire remaining sessions", "error", err)
	}

	slog.Info("Server stopped successfully")
}
