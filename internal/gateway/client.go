package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

// ErrGatewayUnavailable marks transient gateway failures. The order service
// retries these before surfacing a "try again" to the client.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// IntentRequest carries everything the gateway needs to mint a charge intent.
// Notes travel opaquely through the gateway and come back on the capture
// event, but matching is always done on the intent id, never on the notes.
type IntentRequest struct {
	Amount   int64
	Currency string
	Notes    map[string]string
}

// IntentCreator mints charge intents at the external payment gateway.
type IntentCreator interface {
	CreateIntent(ctx context.Context, req IntentRequest) (string, error)
}

// Client talks to the payment gateway's REST API.
type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
	logger    *zap.Logger
}

// NewClient creates a gateway API client
func NewClient(baseURL, keyID, keySecret string) *Client {
	return &Client{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		http:      &http.Client{Timeout: 10 * time.Second},
		logger:    util.GetLogger(),
	}
}

// KeyID returns the publishable key id for the browser checkout widget
func (c *Client) KeyID() string {
	return c.keyID
}

type intentPayload struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type intentResponse struct {
	ID string `json:"id"`
}

// CreateIntent asks the gateway for a new charge intent and returns its id.
func (c *Client) CreateIntent(ctx context.Context, req IntentRequest) (string, error) {
	start := time.Now()
	defer func() {
		util.GatewayIntentLatency.Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(intentPayload{
		Amount:   req.Amount,
		Currency: req.Currency,
		Notes:    req.Notes,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal intent request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.SetBasicAuth(c.keyID, c.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn("Gateway intent call failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		c.logger.Warn("Gateway returned server error", zap.Int("status", resp.StatusCode))
		return "", fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("gateway rejected intent request: status %d", resp.StatusCode)
	}

	var intent intentResponse
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return "", fmt.Errorf("failed to decode intent response: %w", err)
	}
	if intent.ID == "" {
		return "", fmt.Errorf("gateway returned empty intent id")
	}

	return intent.ID, nil
}
