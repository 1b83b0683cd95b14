package config

import (
	"fmt"
	"os"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Port        string
	AppURL      string
	DatabaseURL string
	JWTSecret   string

	Stripe StripeConfig
	Google GoogleConfig
	Gemini GeminiConfig

	PexelsAPIKey string

	SendgridAPIKey string
	FromEmail      string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Prices        PriceTable
}

// PriceTable maps configured Stripe price IDs to paid plans. It is
// validated once at startup so a misconfigured mapping fails the boot
// instead of silently downgrading customers to FREE.
type PriceTable struct {
	Basic      string
	Pro        string
	Enterprise string
}

func (t PriceTable) Validate() error {
	if t.Basic == "" || t.Pro == "" || t.Enterprise == "" {
		return fmt.Errorf("price table incomplete: basic=%t pro=%t enterprise=%t",
			t.Basic != "", t.Pro != "", t.Enterprise != "")
	}
	if t.Basic == t.Pro || t.Basic == t.Enterprise || t.Pro == t.Enterprise {
		return fmt.Errorf("price table contains duplicate price IDs")
	}
	return nil
}

// GoogleConfig is optional; OAuth routes return 404 when it is absent.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
}

func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        envOr("PORT", "8080"),
		AppURL:      envOr("APP_URL", "http://localhost:8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			Prices: PriceTable{
				Basic:      os.Getenv("STRIPE_BASIC_PRICE_ID"),
				Pro:        os.Getenv("STRIPE_PRO_PRICE_ID"),
				Enterprise: os.Getenv("STRIPE_ENTERPRISE_PRICE_ID"),
			},
		},
		Google: GoogleConfig{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  envOr("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		PexelsAPIKey:   os.Getenv("PEXELS_API_KEY"),
		SendgridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		FromEmail:      envOr("FROM_EMAIL", "hello@palettestudio.app"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable not set")
	}
	if cfg.Stripe.SecretKey == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY environment variable not set")
	}
	if cfg.Stripe.WebhookSecret == "" {
		return nil, fmt.Errorf("STRIPE_WEBHOOK_SECRET environment variable not set")
	}
	if err := cfg.Stripe.Prices.Validate(); err != nil {
		return nil, err
	}
	if cfg.Gemini.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}
	if cfg.PexelsAPIKey == "" {
		return nil, fmt.Errorf("PEXELS_API_KEY environment variable not set")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
