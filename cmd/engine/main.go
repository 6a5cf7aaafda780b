// Package main provides the outreach engine entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/blocklist"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/config"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/engine"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/platform"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/server"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/session"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to settings file (YAML)")
	listen := flag.String("listen", "", "Listen address (overrides settings)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load settings, using defaults")
		cfg = config.Default()
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	store := config.NewStore(cfg)

	// Hot reload of the settings file, if one was given.
	if *configPath != "" {
		reloader, err := config.NewReloader(*configPath, store)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create settings reloader")
		} else if err := reloader.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start settings reloader")
		} else {
			defer reloader.Stop()
			log.Info().Str("path", *configPath).Msg("Settings file watcher started")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down engine")
		cancel()
	}()

	api := platform.NewClient(store)
	blocks := blocklist.New()
	states := session.NewStore(store)
	sup := engine.NewSupervisor(api, blocks, states, store)
	svc := server.New(Version, store, api, blocks, states, sup)

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: svc.Router(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		states.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.Info().Str("addr", httpSrv.Addr).Str("version", Version).Msg("Starting engine HTTP server")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		stopped := sup.StopAll()
		if stopped > 0 {
			log.Info().Int("workers", stopped).Msg("Stopped active workers")
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Engine error")
	}
	log.Info().Msg("Engine stopped")
}
