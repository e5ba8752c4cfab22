package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	sessionCfg, err := loadSessionConfig(cfg.LiveConfigPath, cfg.CheckpointInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid live config")
	}

	database, err := setupDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup database")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := setupServices(ctx, database, cfg, sessionCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup services")
	}
	defer services.Close()

	server := setupServer(cfg.Port, services.Gateway)

	var wg sync.WaitGroup
	ctrlCtx, stopCtrl := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		services.Controller.Run(ctrlCtx)
	}()

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Bool("nats_enabled", cfg.NATSEnabled).
			Int("period_minutes", sessionCfg.Defaults.PeriodMinutes).
			Int("total_periods", sessionCfg.Defaults.TotalPeriods).
			Dur("checkpoint_interval", sessionCfg.CheckpointInterval).
			Msg("starting live match server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down live match server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	// Releases the locks of connected users before the final checkpoint.
	services.Gateway.Shutdown()
	stopCtrl()
	wg.Wait()
	log.Info().Msg("live match server stopped")
}
