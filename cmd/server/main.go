// Command server runs the invoice conversion HTTP API.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/insightdelivered/invoice-item-converter/internal/advisor"
	"github.com/insightdelivered/invoice-item-converter/internal/api"
	"github.com/insightdelivered/invoice-item-converter/internal/cache"
	"github.com/insightdelivered/invoice-item-converter/internal/config"
	"github.com/insightdelivered/invoice-item-converter/internal/logger"
	"github.com/insightdelivered/invoice-item-converter/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.Get()
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.Log.Level, cfg.Log.Pretty)
	log := logger.WithComponent("server")

	h := api.NewHandler(cfg.Parser)
	h.StaticDir = cfg.Server.StaticDir
	h.Metrics = metrics.New()

	if cfg.Advisor.Enabled {
		summaries := cache.New[advisor.Summary](cfg.Cache.TTL)
		if err := summaries.Start(cfg.Cache.SweepSpec); err != nil {
			log.Fatal().Err(err).Msg("Failed to start cache janitor")
		}
		defer summaries.Stop()

		h.Advisor = advisor.New(advisor.Config{
			BaseURL:           cfg.Advisor.BaseURL,
			APIKey:            cfg.Advisor.APIKey,
			Model:             cfg.Advisor.Model,
			MaxTokens:         cfg.Advisor.MaxTokens,
			RequestsPerMinute: cfg.Advisor.RequestsPerMinute,
			SampleSize:        cfg.Advisor.SampleSize,
			Timeout:           cfg.Advisor.Timeout,
		}, summaries)
		h.AdvisorTimeout = cfg.Advisor.Timeout
		log.Info().Str("model", cfg.Advisor.Model).Str("base_url", cfg.Advisor.BaseURL).Msg("Advisor enabled")
	}

	app := api.NewApp(h, cfg.Server.BodyLimitMB)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.Server.Addr()).Str("version", api.Version).Msg("Server starting")
	if err := app.Listen(cfg.Server.Addr()); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}
