package config

import (
	"os"
	"strconv"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	DB     PostgresConfig
	OpenAI OpenAIConfig
	Stripe StripeConfig
	Scans  ScanConfig
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
}

type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

type StripeConfig struct {
	SecretKey             string
	WebhookSecret         string
	FrontendURL           string
	PriceIDBasicMonthly   string
	PriceIDPremiumMonthly string
}

type ScanConfig struct {
	FreeMonthlyLimit  int
	BasicMonthlyLimit int
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		DB: PostgresConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			URL:      os.Getenv("POSTGRES_URL"),
			Port:     os.Getenv("POSTGRES_PORT"),
		},
		OpenAI: OpenAIConfig{
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			Model:       envOrDefault("OPENAI_MODEL", "gpt-4o"),
			MaxTokens:   envIntOrDefault("OPENAI_MAX_TOKENS", 1000),
			Temperature: 0.3,
		},
		Stripe: StripeConfig{
			SecretKey:             os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret:         os.Getenv("STRIPE_WEBHOOK_SECRET"),
			FrontendURL:           os.Getenv("FRONTEND_URL"),
			PriceIDBasicMonthly:   os.Getenv("STRIPE_PRICE_BASIC_MONTHLY"),
			PriceIDPremiumMonthly: os.Getenv("STRIPE_PRICE_PREMIUM_MONTHLY"),
		},
		Scans: ScanConfig{
			FreeMonthlyLimit:  envIntOrDefault("FREE_MONTHLY_SCAN_LIMIT", 5),
			BasicMonthlyLimit: envIntOrDefault("BASIC_MONTHLY_SCAN_LIMIT", 50),
		},
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
