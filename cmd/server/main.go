package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/pollchat/internal/chat"
	"github.com/Tyrowin/pollchat/internal/server"
	"github.com/Tyrowin/pollchat/internal/store"
)

func main() {
	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gochat: %v\n", err)
		os.Exit(1)
	}
	if err := applyFlags(cfg, os.Args[1:]); err != nil {
		os.Exit(2)
	}

	logger := server.NewLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	messages, err := store.Open(ctx, cfg.StoreOptions(), logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("message store unavailable")
	}

	ids, err := chat.NewIDGenerator(cfg.MessageIDFormat)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid message id format")
	}

	hub := chat.NewHub(messages,
		chat.WithIDGenerator(ids),
		chat.WithLogger(logger.With().Str("component", "hub").Logger()),
	)

	handler := server.NewHandler(hub, cfg, logger)
	httpServer := server.CreateServer(cfg, server.SetupRoutes(handler))

	errc := make(chan error, 1)
	go func() {
		logger.Info().
			Str("env", cfg.Env).
			Str("store", cfg.Store.Backend).
			Int("buffer_size", cfg.BufferSize).
			Msg("starting GoChat server")
		errc <- server.StartServer(httpServer, logger)
	}()

	select {
	case err := <-errc:
		if err != nil {
			logger.Error().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
	}

	// Parked polls hold requests open, so release them before the HTTP
	// server waits for active requests.
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn().Err(err).Msg("hub shutdown incomplete")
	}
	if err := handler.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn().Err(err).Msg("stream clients did not close in time")
	}
	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}
	if err := messages.Close(); err != nil {
		logger.Warn().Err(err).Msg("error closing message store")
	}

	logger.Info().Msg("server stopped")
}
