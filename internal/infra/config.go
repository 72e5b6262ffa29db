package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	BotToken         string
	TelegramBaseURL  string
	StorageChannelID int64

	DatabaseURL string
	DBMaxConns  int
	DBMinConns  int

	CutoutAPIKey  string
	CutoutBaseURL string
	CutoutModel   string

	GatewayShopID      string
	GatewaySecretKey   string
	GatewayBaseURL     string
	SuccessRedirectURL string
	SupportUsername    string

	Price int

	PollInterval time.Duration
	PollDeadline time.Duration

	ImprovedAfter    time.Duration
	Discount290After time.Duration
	Discount190After time.Duration
	Discount99After  time.Duration

	SweepInterval time.Duration
	DeletePacing  time.Duration
	SweepPacing   time.Duration

	UnpaidLimit  int
	UnpaidWindow time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "8080"),

		BotToken:         os.Getenv("BOT_TOKEN"),
		TelegramBaseURL:  getEnv("TELEGRAM_BASE_URL", "https://api.telegram.org"),
		StorageChannelID: getEnvInt64("STORAGE_CHANNEL_ID", 0),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns:  getEnvInt("DB_MIN_CONNS", 1),

		CutoutAPIKey:  os.Getenv("CUTOUT_API_KEY"),
		CutoutBaseURL: getEnv("CUTOUT_BASE_URL", "https://openrouter.ai/api/v1"),
		CutoutModel:   getEnv("CUTOUT_MODEL", "google/gemini-2.5-flash-preview-image"),

		GatewayShopID:      os.Getenv("GATEWAY_SHOP_ID"),
		GatewaySecretKey:   os.Getenv("GATEWAY_SECRET_KEY"),
		GatewayBaseURL:     getEnv("GATEWAY_BASE_URL", "https://api.yookassa.ru/v3"),
		SuccessRedirectURL: getEnv("SUCCESS_REDIRECT_URL", "https://example.com/paid"),
		SupportUsername:    getEnv("SUPPORT_USERNAME", "@support"),

		Price: getEnvInt("PRICE", 490),

		PollInterval: getEnvDuration("POLL_INTERVAL", 10*time.Second),
		PollDeadline: getEnvDuration("POLL_DEADLINE", 10*time.Minute),

		ImprovedAfter:    getEnvDuration("SWEEP_IMPROVED_AFTER", 2*time.Minute),
		Discount290After: getEnvDuration("SWEEP_DISCOUNT_290_AFTER", 4*time.Minute),
		Discount190After: getEnvDuration("SWEEP_DISCOUNT_190_AFTER", 6*time.Minute),
		Discount99After:  getEnvDuration("SWEEP_DISCOUNT_99_AFTER", 8*time.Minute),

		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 30*time.Second),
		DeletePacing:  getEnvDuration("SWEEP_DELETE_PACING", 100*time.Millisecond),
		SweepPacing:   getEnvDuration("SWEEP_IMAGE_PACING", 500*time.Millisecond),

		UnpaidLimit:  getEnvInt("UNPAID_LIMIT", 20),
		UnpaidWindow: getEnvDuration("UNPAID_WINDOW", 24*time.Hour),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.StorageChannelID == 0 {
		return nil, fmt.Errorf("STORAGE_CHANNEL_ID is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
