// Package whatsapp sends delivery alerts to branch staff through the
// WhatsApp Cloud API.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/restock/internal/config"
	"github.com/mamadbah2/restock/internal/domain/models"
)

// ErrRejected marks alerts the API refused outright; resending them cannot succeed.
var ErrRejected = errors.New("whatsapp alert rejected")

// Client delivers alerts to the configured staff recipient.
type Client interface {
	SendDeliveryAlert(ctx context.Context, alert Alert) (string, error)
}

// Alert is one plain text message about a stock movement. Reference is echoed
// back by the API in status webhooks so receipts can be traced to an order.
type Alert struct {
	Body      string
	Reference string
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient    *resty.Client
	phoneNumberID string
	recipient     string
}

// NewClient builds a client that sends every alert to cfg.NotifyTo.
func NewClient(cfg config.WhatsAppConfig) *APIClient {
	base := strings.TrimSuffix(cfg.BaseURL, "/")

	restyClient := resty.New().
		SetBaseURL(fmt.Sprintf("%s/%s", base, cfg.APIVersion)).
		SetAuthToken(cfg.AccessToken).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)

	return &APIClient{
		httpClient:    restyClient,
		phoneNumberID: cfg.PhoneNumberID,
		recipient:     cfg.NotifyTo,
	}
}

type textBody struct {
	Body string `json:"body"`
}

type messagePayload struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
	CallbackData     string   `json:"biz_opaque_callback_data,omitempty"`
}

type messageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendDeliveryAlert posts the alert and returns the message id assigned by the API.
// Rate limiting and server failures wrap models.ErrTransient; other 4xx
// responses wrap ErrRejected.
func (c *APIClient) SendDeliveryAlert(ctx context.Context, alert Alert) (string, error) {
	if strings.TrimSpace(alert.Body) == "" {
		return "", fmt.Errorf("empty alert body: %w", ErrRejected)
	}

	result := new(messageResponse)
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(messagePayload{
			MessagingProduct: "whatsapp",
			To:               c.recipient,
			Type:             "text",
			Text:             textBody{Body: alert.Body},
			CallbackData:     alert.Reference,
		}).
		SetResult(result).
		SetError(apiErr).
		Post(fmt.Sprintf("%s/messages", c.phoneNumberID))
	if err != nil {
		return "", fmt.Errorf("send delivery alert: %w: %v", models.ErrTransient, err)
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return "", fmt.Errorf("whatsapp api status %d: %w: %s", status, models.ErrTransient, apiErr.Error.Message)
	case status >= http.StatusBadRequest:
		return "", fmt.Errorf("whatsapp api code %d: %w: %s", apiErr.Error.Code, ErrRejected, apiErr.Error.Message)
	}

	if len(result.Messages) == 0 {
		return "", nil
	}
	return result.Messages[0].ID, nil
}
