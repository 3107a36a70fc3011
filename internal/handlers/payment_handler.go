package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/bereka/backend/internal/httpx"
	"github.com/bereka/backend/internal/middleware"
	"github.com/bereka/backend/internal/models"
	"github.com/bereka/backend/internal/services"
)

// Escrow abstracts the escrow operations needed by the handler.
type Escrow interface {
	FundEscrow(ctx context.Context, jobID, callerID uuid.UUID) error
	ApprovePayout(ctx context.Context, jobID, callerID uuid.UUID) (*services.Payout, error)
	ResolveDispute(ctx context.Context, jobID uuid.UUID, resolution string, adminID uuid.UUID) (*services.Resolution, error)
}

// TopUps creates invoices and polls their status.
type TopUps interface {
	CreateInvoice(ctx context.Context, userID uuid.UUID, amount int64) (*services.TopUpInvoice, error)
	CheckPayment(ctx context.Context, userID uuid.UUID, paymentHash string) (*services.PaymentStatus, error)
}

// Deposits credits confirmed inbound payments.
type Deposits interface {
	ProcessIncomingPayment(ctx context.Context, paymentHash, provider string, raw json.RawMessage) (*services.DepositResult, error)
}

type Validator interface {
	Validate(ctx context.Context, schema string, body []byte) error
}

// PaymentHandler serves the money endpoints: escrow actions, top-ups and the
// provider webhook.
type PaymentHandler struct {
	Escrow    Escrow
	TopUps    TopUps
	Deposits  Deposits
	Validator Validator
	Logger    *slog.Logger
}

type jobActionRequest struct {
	JobID uuid.UUID `json:"jobId"`
}

type resolveDisputeRequest struct {
	JobID      uuid.UUID `json:"jobId"`
	Resolution string    `json:"resolution"`
}

type createInvoiceRequest struct {
	AmountSats int64 `json:"amountSats"`
}

type checkPaymentRequest struct {
	PaymentHash string `json:"paymentHash"`
}

type webhookPayload struct {
	PaymentHash string `json:"payment_hash"`
	Pending     *bool  `json:"pending"`
}

// --- POST /fund-escrow ---

func (h *PaymentHandler) FundEscrow(w http.ResponseWriter, r *http.Request) {
	var req jobActionRequest
	if !h.decode(w, r, services.SchemaJobAction, &req) {
		return
	}
	user := middleware.UserFromCtx(r.Context())
	if err := h.Escrow.FundEscrow(r.Context(), req.JobID, user.ID); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

// --- POST /approve-payout ---

func (h *PaymentHandler) ApprovePayout(w http.ResponseWriter, r *http.Request) {
	var req jobActionRequest
	if !h.decode(w, r, services.SchemaJobAction, &req) {
		return
	}
	user := middleware.UserFromCtx(r.Context())
	p, err := h.Escrow.ApprovePayout(r.Context(), req.JobID, user.ID)
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"payout":  p.Payout,
		"fee":     p.Fee,
	})
}

// --- POST /resolve-dispute ---

func (h *PaymentHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	var req resolveDisputeRequest
	if !h.decode(w, r, services.SchemaResolveDispute, &req) {
		return
	}
	user := middleware.UserFromCtx(r.Context())
	res, err := h.Escrow.ResolveDispute(r.Context(), req.JobID, req.Resolution, user.ID)
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"resolution": res.Resolution,
		"details":    res,
	})
}

// --- POST /create-invoice ---

// CreateInvoice runs behind AmountCheck, which has already bounded the amount.
func (h *PaymentHandler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if !h.decode(w, r, services.SchemaCreateInvoice, &req) {
		return
	}
	user := middleware.UserFromCtx(r.Context())
	inv, err := h.TopUps.CreateInvoice(r.Context(), user.ID, req.AmountSats)
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, inv)
}

// --- POST /check-payment ---

func (h *PaymentHandler) CheckPayment(w http.ResponseWriter, r *http.Request) {
	var req checkPaymentRequest
	if !h.decode(w, r, services.SchemaCheckPayment, &req) {
		return
	}
	user := middleware.UserFromCtx(r.Context())
	st, err := h.TopUps.CheckPayment(r.Context(), user.ID, req.PaymentHash)
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

// --- POST /webhooks/lnbits ---

// Webhook always answers 200 so the provider does not retry; payments it
// fails to credit are picked up by the owner's poll.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	ack := map[string]any{"received": true, "processed": false}

	body, err := httpx.ReadBody(w, r)
	if err == nil {
		err = h.Validator.Validate(r.Context(), services.SchemaLNbitsWebhook, body)
	}
	var p webhookPayload
	if err == nil {
		err = json.Unmarshal(body, &p)
	}
	if err != nil {
		h.Logger.Warn("webhook payload rejected", "error", err)
		httpx.WriteJSON(w, http.StatusOK, ack)
		return
	}
	if p.Pending != nil && *p.Pending {
		h.Logger.Info("webhook for pending payment ignored", "payment_hash", p.PaymentHash)
		httpx.WriteJSON(w, http.StatusOK, ack)
		return
	}

	res, err := h.Deposits.ProcessIncomingPayment(r.Context(), p.PaymentHash, models.ProviderWebhook, body)
	switch {
	case errors.Is(err, models.ErrNotFound):
		h.Logger.Warn("webhook for unknown payment", "payment_hash", p.PaymentHash)
		ack["message"] = "payment not found"
	case err != nil:
		h.Logger.Error("webhook processing failed", "payment_hash", p.PaymentHash, "error", err)
		ack["error"] = "processing failed"
	default:
		ack["processed"] = !res.AlreadyProcessed
		ack["amount"] = res.Amount
	}
	httpx.WriteJSON(w, http.StatusOK, ack)
}

func (h *PaymentHandler) decode(w http.ResponseWriter, r *http.Request, schema string, v any) bool {
	body, err := httpx.ReadBody(w, r)
	if err == nil {
		err = h.Validator.Validate(r.Context(), schema, body)
	}
	if err == nil {
		err = httpx.Decode(body, v)
	}
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return false
	}
	return true
}
