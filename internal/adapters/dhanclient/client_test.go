package dhanclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dhanpaper/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(Config{
		BaseURL:     server.URL,
		ClientID:    "client-1",
		AccessToken: "token-1",
		Logger:      &mockLogger{},
	})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Config{Logger: &mockLogger{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = New(Config{ClientID: "c", AccessToken: "t"})
	require.Error(t, err, "logger is required")
}

func TestLastTradedPrice(t *testing.T) {
	var gotPath string
	var gotHeaders http.Header
	var gotPayload map[string]interface{}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeaders = r.Header
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotPayload))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"NSE_FNO":{"12345":{"last_price":101.5}}},"status":"success"}`))
	})

	ltp, err := c.LastTradedPrice(context.Background(), "NIFTY", "12345", "NSE_FNO")
	require.NoError(t, err)
	assert.Equal(t, 101.5, ltp)

	assert.Equal(t, "/marketfeed/ltp", gotPath)
	assert.Equal(t, "token-1", gotHeaders.Get("access-token"))
	assert.Equal(t, "client-1", gotHeaders.Get("client-id"))
	// Numeric security ids are sent as numbers under the segment key.
	ids, ok := gotPayload["NSE_FNO"].([]interface{})
	require.True(t, ok)
	require.Len(t, ids, 1)
	assert.Equal(t, float64(12345), ids[0])
}

func TestLastTradedPrice_AlternateKeysAndStringValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want float64
	}{
		{name: "lastPrice key", body: `{"data":{"IDX_I":{"13":{"lastPrice":22150.75}}}}`, want: 22150.75},
		{name: "ltp key nested in list", body: `{"data":[{"ltp":95.2}]}`, want: 95.2},
		{name: "string-encoded price", body: `{"data":{"NSE_EQ":{"99":{"last_traded_price":"450.10"}}}}`, want: 450.10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			ltp, err := c.LastTradedPrice(context.Background(), "", "99", "NSE_EQ")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ltp)
		})
	}
}

func TestLastTradedPrice_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-200 status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
		},
		{
			name: "no price in response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"data":{"NSE_FNO":{"12345":{"volume":1000}}}}`))
			},
		},
		{
			name: "zero price",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"data":{"NSE_FNO":{"12345":{"last_price":0}}}}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.LastTradedPrice(context.Background(), "NIFTY", "12345", "NSE_FNO")
			require.Error(t, err)
			assert.ErrorIs(t, err, ports.ErrQuoteUnavailable)
		})
	}
}

func TestLastTradedPrice_ContextTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.LastTradedPrice(ctx, "NIFTY", "12345", "NSE_FNO")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrQuoteUnavailable)
}

func TestLastTradedPrice_RequiresIdentifiers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := c.LastTradedPrice(context.Background(), "", "", "NSE_FNO")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrQuoteUnavailable)

	_, err = c.LastTradedPrice(context.Background(), "NIFTY", "12345", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrQuoteUnavailable)
}
