package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bereka/backend/internal/auth"
	"github.com/bereka/backend/internal/config"
	"github.com/bereka/backend/internal/dashboard"
	"github.com/bereka/backend/internal/handlers"
	"github.com/bereka/backend/internal/jobs"
	"github.com/bereka/backend/internal/ledger"
	"github.com/bereka/backend/internal/lightning"
	"github.com/bereka/backend/internal/middleware"
	"github.com/bereka/backend/internal/notify"
	"github.com/bereka/backend/internal/router"
	"github.com/bereka/backend/internal/services"
	"github.com/bereka/backend/internal/wallet"
)

// buildRoutes assembles services and handlers over st and returns the API
// handler.
func buildRoutes(
	cfg *config.Config,
	st *stores,
	notifier notify.Notifier,
	pollLimiter *middleware.RateLimiter,
	ping func(ctx context.Context) error,
	logger *slog.Logger,
) (http.Handler, error) {
	validator, err := services.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("compile request schemas: %w", err)
	}
	fees, err := services.NewFeePolicy(cfg.PlatformFeeRate)
	if err != nil {
		return nil, fmt.Errorf("fee policy: %w", err)
	}

	rail := lightning.NewClient(cfg.LNbitsURL, cfg.LNbitsAdminKey, cfg.ProviderTimeout, logger)
	if !rail.Configured() {
		logger.Warn("LNBITS_URL not set, wallet and invoice calls will fail")
	}

	l := ledger.New(st.Accounts, st.Entries)
	policy := &auth.Policy{Profiles: st.Profiles}

	escrow := &services.EscrowManager{
		DB:       st.DB,
		Ledger:   l,
		Jobs:     st.Jobs,
		Holds:    st.Holds,
		Disputes: st.Disputes,
		Entries:  st.Entries,
		Fees:     fees,
		Admins:   policy,
		Notifier: notifier,
		Logger:   logger,
	}
	deposits := &services.DepositIntake{
		DB:       st.DB,
		Ledger:   l,
		Intents:  st.Intents,
		Events:   st.Events,
		Notifier: notifier,
		Logger:   logger,
	}
	topUps := &services.TopUpService{
		Profiles: st.Profiles,
		Intents:  st.Intents,
		Rail:     rail,
		Deposits: deposits,
		Expiry:   cfg.InvoiceExpiry,
		Logger:   logger,
	}

	authSvc := auth.NewService(st.DB, st.Profiles, st.Accounts, cfg.JWTSecret, logger).WithAdminEmails(cfg.AdminEmails)
	jobsSvc := jobs.NewService(jobs.Deps{
		DB:       st.DB,
		Jobs:     st.Jobs,
		Disputes: st.Disputes,
		Profiles: st.Profiles,
		Escrow:   escrow,
		Notifier: notifier,
		Logger:   logger,
	})
	walletSvc := wallet.NewService(st.Profiles, rail, logger)

	return router.New(router.Deps{
		Auth:   auth.NewHandler(authSvc, logger),
		Jobs:   jobs.NewHandler(jobsSvc, validator, logger),
		Wallet: wallet.NewHandler(walletSvc, logger),
		Payments: &handlers.PaymentHandler{
			Escrow:    escrow,
			TopUps:    topUps,
			Deposits:  deposits,
			Validator: validator,
			Logger:    logger,
		},
		Dashboard: dashboard.NewHandler(st.Profiles, st.Accounts, st.Entries, st.Disputes, st.Events, l, policy, logger),

		Tokens: authSvc,
		InvoiceLimits: middleware.InvoiceLimits{
			MinSats:    cfg.MinInvoiceSats,
			MaxSats:    cfg.MaxInvoiceSats,
			MaxPending: cfg.MaxPendingInvoices,
		},
		Pending:       st.Intents,
		PollLimiter:   pollLimiter,
		WebhookSecret: cfg.LNbitsWebhookSecret,
		Ping:          ping,
		Logger:        logger,
	}), nil
}
