package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sebastiankruger/nodeset-loader/internal/api"
	"github.com/sebastiankruger/nodeset-loader/internal/config"
	"github.com/sebastiankruger/nodeset-loader/internal/health"
	"github.com/sebastiankruger/nodeset-loader/internal/nodeset"
	"github.com/sebastiankruger/nodeset-loader/internal/parser"
	"github.com/sebastiankruger/nodeset-loader/internal/server"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Recover from panics
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
		}
	}()

	log.Info().Msg("Starting OPC UA NodeSet Loader")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	// Command line arguments are additional nodeset files
	cfg.NodesetFiles = append(cfg.NodesetFiles, os.Args[1:]...)
	if len(cfg.NodesetFiles) == 0 {
		log.Fatal().Msg("No nodeset files configured (NODESET_FILES, config file or arguments)")
	}

	log.Info().
		Str("name", cfg.ServerName).
		Int("opcua_port", cfg.OPCUAPort).
		Strs("nodesets", cfg.NodesetFiles).
		Bool("serve", cfg.ServeAddressSpace).
		Msg("Configuration loaded")

	// Setup context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	healthHandler := health.NewHandler()

	// Create and start the OPC UA server first so the loader can install
	// nodes into a live address space
	opcuaServer, err := server.NewServer(cfg.OPCUAPort, cfg.ServerName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create OPC UA server")
	}
	if cfg.ServeAddressSpace {
		if err := opcuaServer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start OPC UA server")
		}
		healthHandler.SetOPCUAReady(opcuaServer.Serving())
	}

	// Load every nodeset file in configuration order
	loader := server.NewLoader(opcuaServer)
	for _, path := range cfg.NodesetFiles {
		if err := loadNodesetFile(path, loader); err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("Failed to load nodeset")
		}
	}
	healthHandler.SetNodesetsReady(true)

	for class, count := range loader.Counts() {
		log.Info().
			Str("class", class.String()).
			Int("count", count).
			Msg("Nodes loaded")
	}
	log.Info().Int("installed", loader.Installed()).Msg("Address space populated")

	// Start HTTP server (health checks + model API)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler.HandleHealth)
	mux.HandleFunc("/health/live", healthHandler.HandleLive)
	mux.HandleFunc("/health/ready", healthHandler.HandleReady)

	apiHandler := api.NewHandler(cfg.ServerName, opcuaServer, loader)
	mux.HandleFunc("/api/status", apiHandler.HandleStatus)
	mux.HandleFunc("/api/nodes", apiHandler.HandleNodes)

	healthServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HealthPort),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HealthPort).Msg("Starting HTTP server (health)")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	if !cfg.ServeAddressSpace {
		log.Info().Msg("Serve mode disabled - model loaded, exiting")
		stop()
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown health server
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Health server shutdown error")
	}

	// Shutdown OPC UA server
	if err := opcuaServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("OPC UA server shutdown error")
	}

	log.Info().Msg("NodeSet loader stopped")
}

// loadNodesetFile parses one file and streams its nodes into the loader
// in dependency order.
func loadNodesetFile(path string, loader *server.Loader) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open nodeset: %w", err)
	}
	defer f.Close()

	start := time.Now()
	values := nodeset.RawValues{}
	set := nodeset.New(loader.AddNamespace)
	defer set.Cleanup()

	if err := parser.New(set, values).Parse(f); err != nil {
		return fmt.Errorf("parse failed: %w", err)
	}

	total := set.NodeCount()
	if err := set.GetSortedNodes(loader.AddNode, values); err != nil {
		return fmt.Errorf("sort failed: %w", err)
	}

	log.Info().
		Str("file", path).
		Int("nodes", total).
		Dur("elapsed", time.Since(start)).
		Msg("Nodeset loaded")
	return nil
}
