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
	"golang.org/x/sync/errgroup"

	router "github.com/parleyhq/parley/internal/adapters/http"
	"github.com/parleyhq/parley/internal/app"
	"github.com/parleyhq/parley/internal/app/orch"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	msgStore, err := store.NewRedisMessageStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, "parley")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect message store")
	}
	defer msgStore.Close()

	directory := store.NewStaticUserDirectory()

	rooms := app.NewRoomCatalog()
	for _, seed := range cfg.Rooms {
		room := domain.NewRoom(domain.RoomID(seed.ID), domain.RoomName(seed.Name))
		room.IsDefault = seed.IsDefault
		room.IsBroadcast = seed.IsBroadcast
		room.HostID = domain.UserID(seed.HostID)
		rooms.Add(room)
	}

	o := orch.New(
		app.NewSessionRegistry(),
		app.NewPresenceTracker(cfg.PresenceGrace),
		rooms,
		app.NewDeduplicator(cfg.DedupWindow, cfg.DedupMaxSize),
		msgStore,
		directory,
		app.KickSlowPolicy{},
	)

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Parley server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}
	log.Info().Msg("Server exited gracefully")
}
