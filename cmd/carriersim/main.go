package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dennisdiepolder/monti/switchboard/internal/callgen"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	defaults := callgen.DefaultConfig()

	// CLI flags
	var (
		controlPort   = flag.String("control-port", "8081", "Control API port")
		backendURL    = flag.String("backend-url", "http://localhost:8080", "Switchboard URL")
		callsPerMin   = flag.Float64("calls-per-min", defaults.CallsPerMin, "Inbound calls per minute")
		minDuration   = flag.Duration("min-duration", defaults.MinDuration, "Shortest call, ringing to completed")
		maxDuration   = flag.Duration("max-duration", defaults.MaxDuration, "Longest call, ringing to completed")
		duplicateRate = flag.Float64("duplicate-rate", defaults.DuplicateRate, "Chance each event is delivered twice")
		autoStart     = flag.Bool("auto-start", false, "Automatically start generating calls")
		logLevel      = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	// Setup logger
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Str("service", "carriersim").
		Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	generator := callgen.NewGenerator(callgen.NewEventClient(*backendURL), defaults, logger)
	cfg := defaults
	cfg.CallsPerMin = *callsPerMin
	cfg.MinDuration = *minDuration
	cfg.MaxDuration = *maxDuration
	cfg.DuplicateRate = *duplicateRate
	if err := generator.SetConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid call generation settings")
	}

	api := callgen.NewAPI(ctx, generator, logger)
	server := &http.Server{
		Addr:    ":" + *controlPort,
		Handler: api.Routes(),
	}

	// Start control API
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("control API started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("control API stopped")
		}
	}()

	if *autoStart {
		logger.Info().Float64("calls_per_min", cfg.CallsPerMin).Msg("auto-starting call generation")
		api.Start()
	}

	logger.Info().
		Str("control_api", fmt.Sprintf("http://localhost:%s", *controlPort)).
		Str("backend_url", *backendURL).
		Msg("carrier simulator ready")

	printUsage(*controlPort)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down carrier simulator")

	// Open calls are completed before exit
	api.Stop()
	cancel()
	generator.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}

func printUsage(port string) {
	fmt.Println()
	fmt.Println("Carrier simulator control API")
	fmt.Println()
	fmt.Println("Available endpoints:")
	fmt.Printf("  GET  http://localhost:%s/health        - Health check\n", port)
	fmt.Printf("  GET  http://localhost:%s/status        - Generation status\n", port)
	fmt.Printf("  POST http://localhost:%s/start         - Start generating calls\n", port)
	fmt.Printf("  POST http://localhost:%s/stop          - Stop and complete open calls\n", port)
	fmt.Printf("  GET  http://localhost:%s/config        - Get configuration\n", port)
	fmt.Printf("  PUT  http://localhost:%s/config        - Update configuration\n", port)
	fmt.Printf("  POST http://localhost:%s/calls/inject  - Start N calls at once\n", port)
	fmt.Printf("  GET  http://localhost:%s/stats         - Delivery statistics\n", port)
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  curl -X POST http://localhost:%s/start\n", port)
	fmt.Printf("  curl -X PUT http://localhost:%s/config -d '{\"callsPerMin\":30,\"duplicateRate\":0.2}'\n", port)
	fmt.Printf("  curl -X POST http://localhost:%s/calls/inject -d '{\"count\":5}'\n", port)
	fmt.Println()
}
