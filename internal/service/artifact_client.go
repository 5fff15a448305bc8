package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

// ArtifactGenerator renders the redeemable ticket for a paid order and
// returns its URL. Treated as a pure function of the order and payment.
type ArtifactGenerator interface {
	Generate(ctx context.Context, order *models.Order, payment *models.Payment) (string, error)
}

// ArtifactClient calls the external ticket rendering service.
type ArtifactClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewArtifactClient creates an artifact client
func NewArtifactClient(baseURL string) *ArtifactClient {
	return &ArtifactClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  util.GetLogger(),
	}
}

type renderRequest struct {
	OrderID  string `json:"order_id"`
	ChargeID string `json:"charge_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

type renderResponse struct {
	URL string `json:"url"`
}

// Generate renders the QR ticket artifact for a paid order.
func (c *ArtifactClient) Generate(ctx context.Context, order *models.Order, payment *models.Payment) (string, error) {
	body, err := json.Marshal(renderRequest{
		OrderID:  order.ID,
		ChargeID: payment.ChargeID,
		Amount:   payment.Amount,
		Currency: payment.Currency,
		Name:     payment.Name,
		Email:    payment.Email,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/tickets", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("artifact service call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("artifact service returned status %d", resp.StatusCode)
	}

	var rendered renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&rendered); err != nil {
		return "", fmt.Errorf("failed to decode artifact response: %w", err)
	}
	if rendered.URL == "" {
		return "", fmt.Errorf("artifact service returned empty url")
	}

	return rendered.URL, nil
}
