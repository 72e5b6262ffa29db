// Command sweep runs a single escalation pass and exits. Useful for cron-style
// deployments and manual operation; the bot binary runs the same pass on a
// timer.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"photobot/db"
	"photobot/internal/adapter/repo"
	"photobot/internal/domain"
	"photobot/internal/infra"
	"photobot/internal/notify"
	"photobot/internal/pipeline"
	"photobot/internal/providers/cutout"
	"photobot/internal/storage"
	"photobot/internal/sweep"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweep: db connection failed")
	}
	defer pool.Close()

	if err := infra.RunMigrations(pool, db.Migrations); err != nil {
		logger.Fatal().Err(err).Msg("sweep: migrations failed")
	}

	images := repo.NewImageRepository(pool)
	botAPI := notify.NewBotAPI(cfg.BotToken, cfg.TelegramBaseURL, nil, logger)
	store, err := storage.NewChannelStore(botAPI, cfg.StorageChannelID, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweep: storage setup failed")
	}

	transformer, err := cutout.New(cutout.Options{
		APIKey:     cfg.CutoutAPIKey,
		BaseURL:    cfg.CutoutBaseURL,
		Model:      cfg.CutoutModel,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("sweep: cutout client setup failed")
	}

	pricing := domain.DefaultPricing()
	pricing.Base = cfg.Price

	sweeper := sweep.New(sweep.Options{
		Images:   images,
		Pipeline: pipeline.New(transformer, logger),
		Store:    store,
		Channel:  botAPI,
		Logger:   logger,
		Pricing:  pricing,
		Gates: sweep.Gates{
			ImprovedAfter:    cfg.ImprovedAfter,
			Discount290After: cfg.Discount290After,
			Discount190After: cfg.Discount190After,
			Discount99After:  cfg.Discount99After,
		},
		DeletePacing: cfg.DeletePacing,
		ImagePacing:  cfg.SweepPacing,
	})

	if err := sweeper.RunPass(ctx); err != nil {
		logger.Fatal().Err(err).Msg("sweep: pass failed")
	}
	logger.Info().Msg("sweep: pass complete")
}
