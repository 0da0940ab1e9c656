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

	"github.com/sablev/huddle/internal/adapters/auth"
	"github.com/sablev/huddle/internal/adapters/httpapi"
	"github.com/sablev/huddle/internal/adapters/memstore"
	"github.com/sablev/huddle/internal/adapters/sfu"
	"github.com/sablev/huddle/internal/adapters/ws"
	"github.com/sablev/huddle/internal/app"
	"github.com/sablev/huddle/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	resolver := auth.NewResolver(cfg.Secret)
	registry := app.NewRegistry()
	engine := sfu.NewEngine(cfg.STUNServers)
	coordinator := app.NewCoordinator(registry, engine, cfg.PerThreadRooms, cfg.TeardownTimeout)

	store := memstore.New()
	chat := app.NewChatService(store, memstore.LogNotifier{}, registry)

	gateway := ws.NewGateway(resolver, registry, chat, coordinator, cfg)
	r := httpapi.SetupRouter(ctx, cfg, gateway, registry, coordinator, store)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("huddle server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
}
