// Package pricing triggers recomputation of menu prices that depend on
// inventory cost.
package pricing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/restock/internal/config"
)

// Client notifies the pricing service that a branch's costs changed.
type Client interface {
	TriggerRecompute(ctx context.Context, tenantID, locationID string) error
}

// WebhookClient posts recompute requests to a configured URL.
type WebhookClient struct {
	httpClient *resty.Client
	url        string
}

// NewWebhookClient builds a resty-backed pricing client.
func NewWebhookClient(cfg config.PriceSyncConfig) *WebhookClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookClient{
		httpClient: resty.New().
			SetHeader("Content-Type", "application/json").
			SetTimeout(timeout),
		url: cfg.WebhookURL,
	}
}

type recomputeRequest struct {
	TenantID   string `json:"tenantId"`
	LocationID string `json:"locationId"`
}

// TriggerRecompute asks the pricing service to refresh a branch.
func (c *WebhookClient) TriggerRecompute(ctx context.Context, tenantID, locationID string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(recomputeRequest{TenantID: tenantID, LocationID: locationID}).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("trigger price recompute: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("price recompute rejected: status=%d body=%s", resp.StatusCode(), resp.String())
	}
	return nil
}
