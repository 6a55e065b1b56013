package dhanclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"dhanpaper/internal/ports"
)

const defaultBaseURL = "https://api.dhan.co/v2"

// Client implements ports.QuoteProvider against the Dhan market-feed API.
type Client struct {
	baseURL     string
	clientID    string
	accessToken string
	httpClient  *http.Client
	logger      ports.Logger
}

// Config holds configuration specific to the Dhan client adapter.
type Config struct {
	BaseURL     string
	ClientID    string
	AccessToken string
	Logger      ports.Logger
	// HTTPClient is optional; timeouts are driven by the caller's context.
	HTTPClient *http.Client
}

// New creates a new Dhan client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Dhan client")
	}
	if cfg.ClientID == "" || cfg.AccessToken == "" {
		return nil, fmt.Errorf("DHAN_CLIENT_ID and DHAN_ACCESS_TOKEN must be set: %w", ports.ErrConfigurationError)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:     baseURL,
		clientID:    cfg.ClientID,
		accessToken: cfg.AccessToken,
		httpClient:  httpClient,
		logger:      cfg.Logger,
	}, nil
}

// LastTradedPrice fetches the LTP for one instrument from the market-feed
// endpoint. The request is keyed by segment with the security id listed under
// it; numeric security ids are sent as numbers, anything else as a string.
func (c *Client) LastTradedPrice(ctx context.Context, symbol, securityID, segment string) (float64, error) {
	if securityID == "" {
		securityID = symbol
	}
	if securityID == "" || segment == "" {
		return 0, fmt.Errorf("security id and segment are required for LTP fetch: %w", ports.ErrQuoteUnavailable)
	}

	payload := map[string]interface{}{}
	if id, err := strconv.ParseInt(securityID, 10, 64); err == nil {
		payload[segment] = []int64{id}
	} else {
		payload[segment] = []string{securityID}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode LTP request: %w", err)
	}

	url := c.baseURL + "/marketfeed/ltp"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build LTP request: %w", err)
	}
	req.Header.Set("access-token", c.accessToken)
	req.Header.Set("client-id", c.clientID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn(ctx, "LTP request failed", map[string]interface{}{"securityID": securityID, "segment": segment, "error": err.Error()})
		return 0, fmt.Errorf("LTP request for %s failed: %w", securityID, ports.ErrQuoteUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn(ctx, "LTP request returned non-200 status", map[string]interface{}{
			"securityID": securityID, "segment": segment, "status": resp.StatusCode,
		})
		return 0, fmt.Errorf("LTP request for %s returned status %d: %w", securityID, resp.StatusCode, ports.ErrQuoteUnavailable)
	}

	var decoded interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, fmt.Errorf("failed to decode LTP response for %s: %w", securityID, ports.ErrQuoteUnavailable)
	}

	ltp := scanForLTP(decoded)
	if ltp <= 0 {
		return 0, fmt.Errorf("no usable LTP in response for %s: %w", securityID, ports.ErrQuoteUnavailable)
	}
	c.logger.Debug(ctx, "LTP fetched", map[string]interface{}{"securityID": securityID, "segment": segment, "ltp": ltp})
	return ltp, nil
}

// ltpKeys are the field names the market-feed API has been observed to use
// for the last traded price, depending on segment and response shape.
var ltpKeys = []string{"last_price", "lastPrice", "ltp", "LTP", "lastTradedPrice", "last_traded_price"}

// scanForLTP walks an arbitrarily nested response looking for the first
// positive last-price value. Returns 0 when none is found.
func scanForLTP(v interface{}) float64 {
	switch obj := v.(type) {
	case map[string]interface{}:
		for _, k := range ltpKeys {
			if raw, ok := obj[k]; ok {
				if price := asPositiveFloat(raw); price > 0 {
					return price
				}
			}
		}
		for _, nested := range obj {
			if price := scanForLTP(nested); price > 0 {
				return price
			}
		}
	case []interface{}:
		for _, item := range obj {
			if price := scanForLTP(item); price > 0 {
				return price
			}
		}
	case float64:
		// A bare number only counts when it sits under a recognized key,
		// which the map case already handled.
	}
	return 0
}

func asPositiveFloat(raw interface{}) float64 {
	switch n := raw.(type) {
	case float64:
		if n > 0 {
			return n
		}
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil && f > 0 {
			return f
		}
	}
	return 0
}
