package router

import (
	"context"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bereka/backend/internal/auth"
	"github.com/bereka/backend/internal/dashboard"
	"github.com/bereka/backend/internal/handlers"
	"github.com/bereka/backend/internal/httpx"
	"github.com/bereka/backend/internal/jobs"
	"github.com/bereka/backend/internal/metrics"
	"github.com/bereka/backend/internal/middleware"
	"github.com/bereka/backend/internal/wallet"
)

const base = "/api/v1"

// Deps is everything the HTTP surface needs.
type Deps struct {
	Auth      *auth.Handler
	Jobs      *jobs.Handler
	Payments  *handlers.PaymentHandler
	Wallet    *wallet.Handler
	Dashboard *dashboard.Handler

	Tokens        middleware.TokenValidator
	InvoiceLimits middleware.InvoiceLimits
	Pending       middleware.PendingCounter
	PollLimiter   *middleware.RateLimiter
	WebhookSecret string

	// Ping reports storage health for /healthz. Nil means always healthy.
	Ping   func(ctx context.Context) error
	Logger *slog.Logger
}

// New returns an http.Handler that serves the API under /api/v1 plus
// /healthz and /metrics.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()

	bearer := middleware.BearerAuth(d.Tokens)
	route := func(pattern string, h http.Handler) {
		mux.Handle(pattern, middleware.Instrument(pattern, h))
	}
	public := func(pattern string, h http.HandlerFunc) { route(pattern, h) }
	private := func(pattern string, h http.HandlerFunc) { route(pattern, bearer(h)) }

	public("POST "+base+"/auth/register", d.Auth.Register)
	public("POST "+base+"/auth/login", d.Auth.Login)

	private("GET "+base+"/me", d.Dashboard.GetMe)
	private("GET "+base+"/me/ledger", d.Dashboard.GetLedger)
	private("POST "+base+"/wallet", d.Wallet.CreateWallet)

	private("POST "+base+"/jobs", d.Jobs.CreateJob)
	private("GET "+base+"/jobs", d.Jobs.ListJobs)
	private("GET "+base+"/jobs/{id}", d.Jobs.GetJob)
	private("POST "+base+"/jobs/{id}/assign", d.Jobs.AssignWorker)
	private("POST "+base+"/jobs/{id}/submit", d.Jobs.SubmitWork)
	private("POST "+base+"/jobs/{id}/dispute", d.Jobs.OpenDispute)
	private("POST "+base+"/jobs/{id}/cancel", d.Jobs.CancelJob)

	private("POST "+base+"/fund-escrow", d.Payments.FundEscrow)
	private("POST "+base+"/approve-payout", d.Payments.ApprovePayout)
	private("POST "+base+"/resolve-dispute", d.Payments.ResolveDispute)

	// Auth -> AmountCheck -> CreateInvoice
	route("POST "+base+"/create-invoice", bearer(middleware.AmountCheck(d.InvoiceLimits, d.Pending)(http.HandlerFunc(d.Payments.CreateInvoice))))

	// Auth -> RateLimit -> CheckPayment
	var poll http.Handler = http.HandlerFunc(d.Payments.CheckPayment)
	if d.PollLimiter != nil {
		poll = d.PollLimiter.Handler(poll)
	}
	route("POST "+base+"/check-payment", bearer(poll))

	// Shared secret -> Webhook
	route("POST "+base+"/webhooks/lnbits", middleware.WebhookSecret(d.WebhookSecret, d.Logger)(http.HandlerFunc(d.Payments.Webhook)))

	private("GET "+base+"/admin/disputes", d.Dashboard.ListDisputes)
	private("GET "+base+"/admin/payment-events", d.Dashboard.ListPaymentEvents)
	private("GET "+base+"/admin/reconcile", d.Dashboard.Reconcile)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ping != nil {
			if err := d.Ping(r.Context()); err != nil {
				d.Logger.Error("health check failed", "error", err)
				httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", metrics.Handler())

	var h http.Handler = mux
	h = middleware.RequestLogger(d.Logger)(h)
	h = chimw.Recoverer(h)
	h = chimw.RequestID(h)
	return h
}
