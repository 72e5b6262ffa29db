package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"photobot/db"
	"photobot/internal/adapter/repo"
	"photobot/internal/billing"
	"photobot/internal/bot"
	"photobot/internal/domain"
	"photobot/internal/http/handlers"
	"photobot/internal/http/httpapi"
	"photobot/internal/infra"
	"photobot/internal/notify"
	"photobot/internal/pipeline"
	"photobot/internal/providers/cutout"
	"photobot/internal/queue"
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
		logger.Fatal().Err(err).Msg("bot: db connection failed")
	}
	defer pool.Close()

	if err := infra.RunMigrations(pool, db.Migrations); err != nil {
		logger.Fatal().Err(err).Msg("bot: migrations failed")
	}

	users := repo.NewUserRepository(pool)
	images := repo.NewImageRepository(pool)
	invoices := repo.NewInvoiceRepository(pool)

	botAPI := notify.NewBotAPI(cfg.BotToken, cfg.TelegramBaseURL, nil, logger)
	store, err := storage.NewChannelStore(botAPI, cfg.StorageChannelID, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: storage setup failed")
	}

	transformer, err := cutout.New(cutout.Options{
		APIKey:     cfg.CutoutAPIKey,
		BaseURL:    cfg.CutoutBaseURL,
		Model:      cfg.CutoutModel,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: cutout client setup failed")
	}
	pipe := pipeline.New(transformer, logger)

	gateway, err := billing.NewHTTPGateway(billing.GatewayOptions{
		ShopID:    cfg.GatewayShopID,
		SecretKey: cfg.GatewaySecretKey,
		BaseURL:   cfg.GatewayBaseURL,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: payment gateway setup failed")
	}

	pricing := domain.DefaultPricing()
	pricing.Base = cfg.Price
	billingSvc := billing.NewService(billing.ServiceOptions{
		Gateway:      gateway,
		Invoices:     invoices,
		Images:       images,
		Channel:      botAPI,
		Store:        store,
		Logger:       logger,
		ReturnURL:    cfg.SuccessRedirectURL,
		Pricing:      pricing,
		PollInterval: cfg.PollInterval,
		PollDeadline: cfg.PollDeadline,
	})

	dispatcher := queue.New(logger, nil)

	sweeper := sweep.New(sweep.Options{
		Images:   images,
		Pipeline: pipe,
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
	go sweeper.Run(ctx, cfg.SweepInterval)

	app := handlers.NewApp(users, images, logger)
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app))
	go func() {
		logger.Info().Msgf("bot: API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("bot: http server failed")
		}
	}()

	b := bot.New(bot.Options{
		Channel:         botAPI,
		Updates:         botAPI,
		Queue:           dispatcher,
		Pipeline:        pipe,
		Store:           store,
		Users:           users,
		Images:          images,
		Invoices:        invoices,
		Billing:         billingSvc,
		Logger:          logger,
		Pricing:         pricing,
		SupportUsername: cfg.SupportUsername,
		UnpaidLimit:     cfg.UnpaidLimit,
		UnpaidWindow:    cfg.UnpaidWindow,
	})

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("bot: update loop stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("bot: http shutdown failed")
	}
	dispatcher.Wait()
	logger.Info().Msg("bot: stopped")
}
