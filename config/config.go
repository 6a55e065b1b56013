package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"dhanpaper/internal/adapters/logger" // Import the logger package for LogLevel
)

// Quote provider selection values.
const (
	QuoteProviderNone    = "none"
	QuoteProviderDhan    = "dhan"
	QuoteProviderBinance = "binance"
)

// Config holds all application configuration.
type Config struct {
	// Server
	HTTPAddr      string
	WebhookAPIKey string // optional guard for the webhook endpoint

	// Paper-trading simulation constants
	FeePerRoundTrip float64 // flat charge per round trip, allocated across matched slices
	BuySlippage     float64 // points added to BUY fills
	SellSlippage    float64 // points subtracted from SELL fills

	// Quote fetching for market orders
	QuoteProvider string // "none", "dhan" or "binance"
	QuoteTimeout  time.Duration

	// Dhan API
	DhanBaseURL     string
	DhanClientID    string
	DhanAccessToken string

	// Binance API (public ticker endpoint, keys optional)
	BinanceAPIKey    string
	BinanceSecretKey string
	IsTestnet        bool

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Server
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8000")
	cfg.WebhookAPIKey = getEnv("WEBHOOK_API_KEY", "")

	// Simulation constants
	cfg.FeePerRoundTrip, err = getEnvAsFloatRequired("PAPER_CHARGE", 600.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAPER_CHARGE: %v", err))
	} else if cfg.FeePerRoundTrip < 0 {
		errs = append(errs, "PAPER_CHARGE cannot be negative")
	}

	cfg.BuySlippage, err = getEnvAsFloatRequired("PAPER_BUY_SLIPPAGE", 5.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAPER_BUY_SLIPPAGE: %v", err))
	} else if cfg.BuySlippage < 0 {
		errs = append(errs, "PAPER_BUY_SLIPPAGE cannot be negative")
	}

	cfg.SellSlippage, err = getEnvAsFloatRequired("PAPER_SELL_SLIPPAGE", 7.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAPER_SELL_SLIPPAGE: %v", err))
	} else if cfg.SellSlippage < 0 {
		errs = append(errs, "PAPER_SELL_SLIPPAGE cannot be negative")
	}

	// Quote fetching
	cfg.QuoteProvider = strings.ToLower(getEnv("QUOTE_PROVIDER", QuoteProviderNone))
	switch cfg.QuoteProvider {
	case QuoteProviderNone, QuoteProviderDhan, QuoteProviderBinance:
	default:
		errs = append(errs, fmt.Sprintf("QUOTE_PROVIDER must be one of none, dhan, binance (got %q)", cfg.QuoteProvider))
	}

	quoteTimeoutSeconds := getEnvAsInt("QUOTE_TIMEOUT_SECONDS", 8)
	if quoteTimeoutSeconds <= 0 {
		errs = append(errs, "QUOTE_TIMEOUT_SECONDS must be positive")
	}
	cfg.QuoteTimeout = time.Duration(quoteTimeoutSeconds) * time.Second

	// Dhan API
	cfg.DhanBaseURL = getEnv("DHAN_BASE_URL", "https://api.dhan.co/v2")
	cfg.DhanClientID = getEnv("DHAN_CLIENT_ID", "")
	cfg.DhanAccessToken = getEnv("DHAN_ACCESS_TOKEN", "")
	if cfg.QuoteProvider == QuoteProviderDhan && (cfg.DhanClientID == "" || cfg.DhanAccessToken == "") {
		errs = append(errs, "DHAN_CLIENT_ID and DHAN_ACCESS_TOKEN must be set when QUOTE_PROVIDER is dhan")
	}

	// Binance API
	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
	cfg.BinanceSecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	// Database
	cfg.DBPath = getEnv("PAPER_DB", "./data/paper_trades.db")
	if cfg.DBPath == "" {
		errs = append(errs, "PAPER_DB must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
