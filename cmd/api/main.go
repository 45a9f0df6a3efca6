package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	zLog "github.com/rs/zerolog/log"
	"go-probe-agent/internal/api"
	"go-probe-agent/internal/batch"
	"go-probe-agent/internal/config"
	"go-probe-agent/pkg/logger"
)

func main() {
	log.Println("starting server")
	cfg, err := config.Load()
	if err != nil {
		log.Panicf("failed to load config: %v", err)
	}
	if err := logger.NewGlobal(cfg.LogLevel, cfg.LogPretty); err != nil {
		log.Panicf("failed to initialize logger: %v", err)
	}

	system := actor.NewActorSystem().Root
	coordinator, err := batch.FromConfig(cfg, system)
	if err != nil {
		zLog.Panic().Err(err).Msg("failed to wire probe coordinator")
	}
	app, err := api.New(cfg.Port, coordinator, cfg.ResultCacheSize)
	if err != nil {
		zLog.Panic().Err(err).Msg("failed to build server")
	}

	go func() {
		err := app.Start()
		if err != nil {
			zLog.Panic().Err(err).Msg("server crash")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	stop()
	zLog.Info().Msg("shutting down gracefully")

	// in-flight batches hold their request open; give them a session's worth of time
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Probe.SessionTimeout()+5*time.Second)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		zLog.Error().Err(err).Msg("server forced to shutdown")
	}

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := coordinator.Stop(ctx); err != nil {
		zLog.Panic().Err(err).Msg("probe sessions did not stop")
	}

	zLog.Info().Msg("server exiting")
}
