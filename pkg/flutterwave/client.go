/**
 * @description
 * This package provides a client for the Flutterwave Standard checkout API and the
 * payload types of its charge webhooks. Only hosted payment link creation is used:
 * the resident completes payment on the gateway page and the outcome arrives as a
 * webhook.
 *
 * @dependencies
 * - github.com/shopspring/decimal: webhook amounts without float rounding.
 */
package flutterwave

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultBaseURL = "https://api.flutterwave.com"

// ErrMissingLink is returned when the gateway accepts a request without a checkout link.
var ErrMissingLink = errors.New("flutterwave response did not include a payment link")

// Client is a client for the Flutterwave API.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

// NewClient creates a new Flutterwave API client.
func NewClient(baseURL, secretKey string) *Client {
	normalized := strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if normalized == "" {
		normalized = DefaultBaseURL
	}
	return &Client{
		BaseURL:   normalized,
		SecretKey: secretKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Customer identifies the payer on the checkout page.
type Customer struct {
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	PhoneNumber string `json:"phonenumber,omitempty"`
}

// Customizations brand the hosted checkout page.
type Customizations struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Logo        string `json:"logo,omitempty"`
}

// PaymentRequest is the body of POST /v3/payments.
type PaymentRequest struct {
	TxRef          string            `json:"tx_ref"`
	Amount         json.Number       `json:"amount"`
	Currency       string            `json:"currency"`
	RedirectURL    string            `json:"redirect_url,omitempty"`
	Customer       Customer          `json:"customer"`
	Customizations Customizations    `json:"customizations,omitempty"`
	Meta           map[string]string `json:"meta,omitempty"`
}

// PaymentResponse is the envelope returned by POST /v3/payments.
type PaymentResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Link string `json:"link"`
	} `json:"data"`
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("flutterwave api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("flutterwave api error: status %d: %s", e.StatusCode, e.Message)
}

// CreatePaymentLink asks the gateway for a hosted checkout link for the request.
func (c *Client) CreatePaymentLink(ctx context.Context, payload PaymentRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v3/payments", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute payment request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read payment response: %w", err)
	}

	var decoded PaymentResponse
	decodeErr := json.Unmarshal(bodyBytes, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("level=warn component=flutterwave_client op=create_payment status=%d message=%q tx_ref=%s", resp.StatusCode, decoded.Message, payload.TxRef)
		return "", &APIError{StatusCode: resp.StatusCode, Message: decoded.Message}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("failed to decode payment response: %w", decodeErr)
	}
	if !strings.EqualFold(decoded.Status, "success") {
		return "", &APIError{StatusCode: resp.StatusCode, Message: decoded.Message}
	}
	if strings.TrimSpace(decoded.Data.Link) == "" {
		return "", ErrMissingLink
	}

	return decoded.Data.Link, nil
}

// WebhookCustomer is the payer block of a charge webhook. Older payloads send
// fullName instead of name.
type WebhookCustomer struct {
	Name     string `json:"name"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// DisplayName returns whichever name field the gateway populated.
func (c WebhookCustomer) DisplayName() string {
	if strings.TrimSpace(c.Name) != "" {
		return strings.TrimSpace(c.Name)
	}
	return strings.TrimSpace(c.FullName)
}

// WebhookData is the charge described by a webhook.
type WebhookData struct {
	ID       json.Number     `json:"id"`
	TxRef    string          `json:"tx_ref"`
	FlwRef   string          `json:"flw_ref"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
	Customer WebhookCustomer `json:"customer"`
}

// WebhookEvent is the body of a charge webhook.
type WebhookEvent struct {
	Event string      `json:"event"`
	Data  WebhookData `json:"data"`
}

// WebhookHashHeader carries the secret hash configured on the gateway dashboard.
const WebhookHashHeader = "verif-hash"

// VerifyWebhookHash compares the header value with the configured secret hash.
func VerifyWebhookHash(header, secret string) bool {
	if secret == "" || header == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(secret)) == 1
}
