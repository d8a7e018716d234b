// cmd/alertdeck/main.go
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/sentinelhq/alertdeck/alerts"
	"github.com/sentinelhq/alertdeck/cache"
	"github.com/sentinelhq/alertdeck/internal/config"
	"github.com/sentinelhq/alertdeck/internal/server"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	logger.Info().Str("addr", cfg.Addr).Str("upstream", cfg.UpstreamURL).Msg("starting alertdeck")

	// Durable cache backend
	var store cache.Store
	switch cfg.Cache.Backend {
	case "file":
		fs, err := cache.NewFileStore(cfg.Cache.Dir)
		if err != nil {
			logger.Fatal().Err(err).Msg("init file store")
		}
		store = fs
	case "sqlite":
		ss, err := cache.NewSQLiteStore(cfg.Cache.DBPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("init sqlite store")
		}
		defer ss.Close()
		store = ss
	case "memory":
		// store stays nil; cache runs memory-only
	}

	alertCache := cache.New[[]alerts.Alert]("alerts", store,
		cache.WithFreshnessWindow[[]alerts.Alert](cfg.Cache.FreshnessWindow),
		cache.WithEvents[[]alerts.Alert](cache.Events{
			StoreError: func(op, key string, err error) {
				logger.Warn().Str("op", op).Str("key", key).Err(err).Msg("cache store error")
			},
		}))
	if store != nil && !alertCache.DurableAvailable() {
		logger.Warn().Msg("durable cache backend unavailable, running memory-only")
	}

	client := alerts.New(
		alerts.WithBaseURL(cfg.UpstreamURL),
		alerts.WithHTTPClient(&http.Client{Timeout: cfg.UpstreamTimeout}),
	)

	s := server.New(server.Options{
		Client:    client,
		Cache:     alertCache,
		Logger:    logger,
		Threshold: cfg.Entity.Threshold,
	})
	h := hlog.NewHandler(logger)(s.Router)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
