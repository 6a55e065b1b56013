package binanceclient

import (
	"context"
	"fmt"
	"strconv"

	"dhanpaper/internal/ports"

	"github.com/adshao/go-binance/v2"
)

const (
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"
)

// Client implements ports.QuoteProvider using the go-binance library.
// It serves last-traded prices for crypto symbols; the segment argument is
// ignored because Binance spot has a single market.
type Client struct {
	spot   *binance.Client
	logger ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance client adapter. API keys are optional: the
// ticker-price endpoint is public.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
	}

	return &Client{spot: client, logger: cfg.Logger}, nil
}

// LastTradedPrice retrieves the current ticker price for a symbol.
func (c *Client) LastTradedPrice(ctx context.Context, symbol, securityID, segment string) (float64, error) {
	if symbol == "" {
		symbol = securityID
	}
	if symbol == "" {
		return 0, fmt.Errorf("symbol is required for ticker fetch: %w", ports.ErrQuoteUnavailable)
	}

	prices, err := c.spot.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		c.logger.Warn(ctx, "Ticker price fetch failed", map[string]interface{}{"symbol": symbol, "error": err.Error()})
		return 0, fmt.Errorf("ticker price for %s failed: %w", symbol, ports.ErrQuoteUnavailable)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no ticker price returned for %s: %w", symbol, ports.ErrQuoteUnavailable)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("unusable ticker price %q for %s: %w", prices[0].Price, symbol, ports.ErrQuoteUnavailable)
	}
	c.logger.Debug(ctx, "Ticker price fetched", map[string]interface{}{"symbol": symbol, "price": price})
	return price, nil
}
