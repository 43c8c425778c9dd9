package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dennisdiepolder/monti/switchboard/internal/aggregator"
	"github.com/dennisdiepolder/monti/switchboard/internal/api"
	"github.com/dennisdiepolder/monti/switchboard/internal/auth"
	"github.com/dennisdiepolder/monti/switchboard/internal/callqueue"
	"github.com/dennisdiepolder/monti/switchboard/internal/carrier"
	"github.com/dennisdiepolder/monti/switchboard/internal/command"
	"github.com/dennisdiepolder/monti/switchboard/internal/config"
	"github.com/dennisdiepolder/monti/switchboard/internal/ingestion"
	"github.com/dennisdiepolder/monti/switchboard/internal/metrics"
	"github.com/dennisdiepolder/monti/switchboard/internal/routing"
	"github.com/dennisdiepolder/monti/switchboard/internal/storage"
	"github.com/dennisdiepolder/monti/switchboard/internal/websocket"
	"github.com/dennisdiepolder/monti/switchboard/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// services bundles everything the router needs
type services struct {
	cfg        *config.Config
	engine     *routing.Engine
	hub        *websocket.Hub
	gateway    *command.Gateway
	receiver   *ingestion.Receiver
	auth       *auth.Authenticator
	store      storage.Store
	aggregator *aggregator.Aggregator
}

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Str("carrier_mode", string(cfg.CarrierMode)).
		Int("parking_slots", cfg.ParkingSlots).
		Msg("starting switchboard server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize call record store")
	}

	svc, err := buildServices(cfg, store, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize services")
	}

	go svc.hub.Run()
	go svc.aggregator.Start(ctx)

	if cfg.RosterFile != "" {
		entries, err := api.LoadRosterFile(cfg.RosterFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.RosterFile).Msg("failed to load roster")
		}
		svc.engine.RegisterAgents(entries)
		log.Info().Int("agents", len(entries)).Str("file", cfg.RosterFile).Msg("roster loaded")
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(svc, log.Logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop the aggregator
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// buildServices creates the engine and everything that talks to it
func buildServices(cfg *config.Config, store storage.Store, logger zerolog.Logger) (*services, error) {
	hub := websocket.NewHub(logger)

	engine, err := routing.NewEngine(routing.Config{
		ParkingSlots:   cfg.ParkingSlots,
		EndedRetention: cfg.EndedRetention,
		Queue: callqueue.Config{
			SLTarget:  cfg.SLTarget,
			SLSeconds: cfg.SLSeconds,
		},
	}, hub, logger)
	if err != nil {
		return nil, fmt.Errorf("routing engine: %w", err)
	}
	engine.SetArchiver(store)
	hub.SetSnapshotSource(engine)

	adapter := ingestion.NewAdapter(engine, ingestion.NewDeduper(cfg.DedupCapacity, cfg.DedupTTL), logger)

	var verifier ingestion.RequestVerifier
	if cfg.VerifyCarrierSignature {
		verifier = carrier.NewSignatureValidator(cfg.TwilioAuthToken, cfg.PublicURL)
	}
	receiver := ingestion.NewReceiver(adapter, verifier, logger)

	var c carrier.Carrier
	switch cfg.CarrierMode {
	case config.CarrierTwilio:
		c = carrier.NewTwilioClient(carrier.TwilioConfig{
			AccountSID:  cfg.TwilioAccountSID,
			AuthToken:   cfg.TwilioAuthToken,
			PhoneNumber: cfg.TwilioPhoneNumber,
			BaseURL:     cfg.TwilioBaseURL,
			PublicURL:   cfg.PublicURL,
		}, logger)
	default:
		// Without a carrier, hangups are fed straight back as completed events
		noop := carrier.NewNoopCarrier()
		noop.SetSink(adapter)
		c = noop
	}

	authenticator, err := auth.NewAuthenticator(auth.Config{
		SkipAuth:        cfg.SkipAuth,
		VerifySignature: cfg.VerifyJWTSignature,
		Issuer:          cfg.OIDCIssuer,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("authenticator: %w", err)
	}

	return &services{
		cfg:        cfg,
		engine:     engine,
		hub:        hub,
		gateway:    command.NewGateway(engine, c, logger),
		receiver:   receiver,
		auth:       authenticator,
		store:      store,
		aggregator: aggregator.NewAggregator(engine, cfg.StatsInterval, logger),
	}, nil
}

// newRouter mounts every endpoint
func newRouter(svc *services, logger zerolog.Logger) http.Handler {
	wsHandler := websocket.NewHandler(svc.hub, svc.gateway, svc.cfg, logger)
	commands := api.NewCommandHandler(svc.gateway, svc.engine, logger)
	roster := api.NewRosterHandler(svc.engine, logger)
	history := api.NewHistoryHandler(svc.store, logger)
	admin := api.NewAdminHandler(svc.store, logger)
	queueStats := callqueue.NewQueueHandler(svc.engine.Queue(), logger)

	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(svc.cfg.AllowedOrigins))

	// Register public routes (no auth required)
	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler())

	// Carrier webhooks, authenticated by signature when enabled
	r.Route("/carrier", func(r chi.Router) {
		r.Post("/voice", svc.receiver.HandleVoice)
		r.Post("/connect", svc.receiver.HandleConnect)
		r.Post("/status", svc.receiver.HandleStatus)
		r.Post("/events", svc.receiver.HandleEvent)
	})

	// Internal routes (no auth - for internal services like the carrier simulator)
	r.Route("/internal", func(r chi.Router) {
		r.Post("/agents/roster", roster.HandleRoster)
		r.Get("/events/stats", svc.receiver.GetStats)
		r.Get("/queue/stats", queueStats.HandleStats)
		r.Get("/engine/stats", commands.GetEngineStats)
	})

	// Add auth middleware for protected routes
	r.Group(func(r chi.Router) {
		r.Use(svc.auth.Middleware)
		r.Get("/ws", wsHandler.ServeHTTP)

		r.Route("/api", func(r chi.Router) {
			r.Post("/commands", commands.HandleCommand)
			r.Get("/snapshot", commands.GetSnapshot)
			r.Get("/calls/{callId}", commands.GetCall)
			r.Get("/agents/{agentId}/calls", history.GetAgentCalls)

			r.Group(func(r chi.Router) {
				r.Use(api.RequireSupervisor)
				r.Get("/calls/history", history.GetDay)
				r.Post("/agents/{agentId}/calls/{callId}/end", commands.ForceEndCall)
				r.Post("/agents/{agentId}/enable", roster.Enable)
				r.Post("/agents/{agentId}/disable", roster.Disable)
			})

			r.Group(func(r chi.Router) {
				r.Use(api.RequireAdmin)
				r.Delete("/admin/history", admin.WipeHistory)
			})
		})
	})

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"switchboard"}`)
}
