// Package lightning talks to an LNbits instance: wallet provisioning,
// invoice creation and payment status.
package lightning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/bereka/backend/internal/metrics"
	"github.com/bereka/backend/internal/models"
)

// errClient marks 4xx answers. They are the caller's fault and do not trip the breaker.
var errClient = errors.New("client error")

type Wallet struct {
	ID         string `json:"id"`
	AdminKey   string `json:"adminkey"`
	InvoiceKey string `json:"inkey"`
}

type Invoice struct {
	PaymentHash    string `json:"payment_hash"`
	PaymentRequest string `json:"payment_request"`
}

// Payment is the provider's view of an invoice.
type Payment struct {
	Paid bool
	Raw  json.RawMessage
}

type Client struct {
	BaseURL  string
	AdminKey string

	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

func NewClient(baseURL, adminKey string, timeout time.Duration, logger *slog.Logger) *Client {
	c := &Client{
		BaseURL:    baseURL,
		AdminKey:   adminKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "lnbits",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errClient) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Configured reports whether a provider URL is set.
func (c *Client) Configured() bool { return c.BaseURL != "" }

// CreateWallet provisions a user and its default wallet under the admin account.
func (c *Client) CreateWallet(ctx context.Context, userName string) (*Wallet, error) {
	req := map[string]string{"admin_id": "1", "user_name": userName, "wallet_name": "default"}
	var resp struct {
		ID      string   `json:"id"`
		Wallets []Wallet `json:"wallets"`
	}
	if err := c.do(ctx, "create_wallet", http.MethodPost, "/usermanager/api/v1/users", c.AdminKey, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Wallets) == 0 {
		return nil, fmt.Errorf("%w: provider returned no wallet", models.ErrUpstreamProvider)
	}
	w := resp.Wallets[0]
	w.ID = resp.ID
	return &w, nil
}

// CreateInvoice creates an incoming invoice on the wallet owning invoiceKey.
func (c *Client) CreateInvoice(ctx context.Context, invoiceKey string, amount int64, memo string, expiry time.Duration) (*Invoice, error) {
	req := map[string]any{
		"out":    false,
		"amount": amount,
		"memo":   memo,
		"expiry": int64(expiry.Seconds()),
		"unit":   "sat",
	}
	var resp struct {
		Invoice
		Bolt11 string `json:"bolt11"`
	}
	if err := c.do(ctx, "create_invoice", http.MethodPost, "/api/v1/payments", invoiceKey, req, &resp); err != nil {
		return nil, err
	}
	inv := resp.Invoice
	if inv.PaymentRequest == "" {
		inv.PaymentRequest = resp.Bolt11
	}
	if inv.PaymentHash == "" || inv.PaymentRequest == "" {
		return nil, fmt.Errorf("%w: incomplete invoice response", models.ErrUpstreamProvider)
	}
	return &inv, nil
}

// GetPayment fetches the status of an invoice. An invoice the provider does
// not know is reported as unpaid.
func (c *Client) GetPayment(ctx context.Context, invoiceKey, paymentHash string) (*Payment, error) {
	var raw json.RawMessage
	err := c.do(ctx, "get_payment", http.MethodGet, "/api/v1/payments/"+url.PathEscape(paymentHash), invoiceKey, nil, &raw)
	if errors.Is(err, errClient) {
		return &Payment{Paid: false}, nil
	}
	if err != nil {
		return nil, err
	}
	var status struct {
		Paid bool `json:"paid"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("%w: decode payment status: %v", models.ErrUpstreamProvider, err)
	}
	return &Payment{Paid: status.Paid, Raw: raw}, nil
}

func (c *Client) do(ctx context.Context, op, method, path, key string, in, out any) error {
	if !c.Configured() {
		metrics.RecordProviderCall(op, "unconfigured")
		return fmt.Errorf("%w: lightning provider not configured", models.ErrUpstreamProvider)
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, key, in, out)
	})
	switch {
	case err == nil:
		metrics.RecordProviderCall(op, "ok")
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordProviderCall(op, "breaker_open")
		return fmt.Errorf("%w: %v", models.ErrUpstreamProvider, err)
	case errors.Is(err, errClient):
		metrics.RecordProviderCall(op, "rejected")
		c.logger.Warn("lightning provider rejected request", "operation", op, "error", err)
		return fmt.Errorf("%w: %w", models.ErrUpstreamProvider, err)
	default:
		metrics.RecordProviderCall(op, "error")
		c.logger.Error("lightning provider call failed", "operation", op, "error", err)
		return fmt.Errorf("%w: %v", models.ErrUpstreamProvider, err)
	}
}

func (c *Client) roundTrip(ctx context.Context, method, path, key string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network error calling LNbits: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("%w: LNbits returned status %d: %s", errClient, resp.StatusCode, bytes.TrimSpace(msg))
		}
		return fmt.Errorf("LNbits returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid JSON from LNbits: %w", err)
	}
	return nil
}
