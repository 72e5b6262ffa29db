// Package billing creates payment invoices through the external gateway and
// drives each invoice through its polling lifecycle until it settles or
// expires.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"photobot/internal/domain"
	"photobot/internal/infra"
)

// CreateRequest describes one invoice to create at the gateway.
type CreateRequest struct {
	Amount         int
	Description    string
	ReturnURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

// CreatedInvoice is the gateway's answer to a create call.
type CreatedInvoice struct {
	ID              string
	ConfirmationURL string
}

// Gateway is the payment provider surface. The production implementation
// speaks the YooKassa HTTP API.
type Gateway interface {
	CreateInvoice(ctx context.Context, req CreateRequest) (CreatedInvoice, error)
	Status(ctx context.Context, invoiceID string) (domain.InvoiceStatus, error)
}

// GatewayOptions configures the HTTP gateway client.
type GatewayOptions struct {
	ShopID     string
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
	Logger     infra.Logger
}

// HTTPGateway implements Gateway against the YooKassa payments API.
type HTTPGateway struct {
	shopID     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	logger     infra.Logger
}

// NewHTTPGateway validates credentials and constructs the client.
func NewHTTPGateway(opts GatewayOptions) (*HTTPGateway, error) {
	if opts.ShopID == "" || opts.SecretKey == "" {
		return nil, errors.New("billing: gateway credentials are required")
	}
	if opts.BaseURL == "" {
		return nil, errors.New("billing: gateway base url is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPGateway{
		shopID:     opts.ShopID,
		secretKey:  opts.SecretKey,
		baseURL:    opts.BaseURL,
		httpClient: client,
		logger:     opts.Logger,
	}, nil
}

type paymentAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type paymentConfirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type paymentRequest struct {
	Amount       paymentAmount       `json:"amount"`
	Confirmation paymentConfirmation `json:"confirmation"`
	Capture      bool                `json:"capture"`
	Description  string              `json:"description,omitempty"`
	Metadata     map[string]string   `json:"metadata,omitempty"`
}

type paymentResponse struct {
	ID           string               `json:"id"`
	Status       string               `json:"status"`
	Confirmation *paymentConfirmation `json:"confirmation,omitempty"`
	Description  string               `json:"description,omitempty"`
}

// CreateInvoice registers a payment and returns its id and confirmation URL.
// The idempotency key makes gateway-side retries safe.
func (g *HTTPGateway) CreateInvoice(ctx context.Context, req CreateRequest) (CreatedInvoice, error) {
	if req.IdempotencyKey == "" {
		return CreatedInvoice{}, errors.New("billing: idempotency key is required")
	}
	payload := paymentRequest{
		Amount:       paymentAmount{Value: fmt.Sprintf("%d.00", req.Amount), Currency: "RUB"},
		Confirmation: paymentConfirmation{Type: "redirect", ReturnURL: req.ReturnURL},
		Capture:      true,
		Description:  req.Description,
		Metadata:     req.Metadata,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return CreatedInvoice{}, fmt.Errorf("billing: encode payment: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return CreatedInvoice{}, fmt.Errorf("billing: build payment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotence-Key", req.IdempotencyKey)
	httpReq.SetBasicAuth(g.shopID, g.secretKey)

	var resp paymentResponse
	if err := g.do(httpReq, &resp); err != nil {
		return CreatedInvoice{}, err
	}
	if resp.ID == "" || resp.Confirmation == nil || resp.Confirmation.ConfirmationURL == "" {
		return CreatedInvoice{}, fmt.Errorf("%w: incomplete payment response", domain.ErrGatewayFailure)
	}
	g.logger.Info().Str("invoice_id", resp.ID).Msg("billing: invoice created")
	return CreatedInvoice{ID: resp.ID, ConfirmationURL: resp.Confirmation.ConfirmationURL}, nil
}

// Status reports the current lifecycle status of a payment. Any gateway status
// other than succeeded maps to pending.
func (g *HTTPGateway) Status(ctx context.Context, invoiceID string) (domain.InvoiceStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/payments/"+invoiceID, nil)
	if err != nil {
		return "", fmt.Errorf("billing: build status request: %w", err)
	}
	httpReq.SetBasicAuth(g.shopID, g.secretKey)

	var resp paymentResponse
	if err := g.do(httpReq, &resp); err != nil {
		return "", err
	}
	if resp.Status == "succeeded" {
		return domain.InvoiceStatusSucceeded, nil
	}
	return domain.InvoiceStatusPending, nil
}

func (g *HTTPGateway) do(req *http.Request, out any) error {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayFailure, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrGatewayFailure, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", domain.ErrGatewayFailure, resp.StatusCode, bytes.TrimSpace(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrGatewayFailure, err)
	}
	return nil
}

var _ Gateway = (*HTTPGateway)(nil)
