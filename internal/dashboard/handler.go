// Package dashboard serves the read side: the caller's balances and ledger,
// and the admin views over disputes, payment events and reconciliation.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/bereka/backend/internal/httpx"
	"github.com/bereka/backend/internal/ledger"
	"github.com/bereka/backend/internal/middleware"
	"github.com/bereka/backend/internal/models"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type ProfileReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

type AccountLister interface {
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Account, error)
}

type EntryLister interface {
	ListByAccountIDs(ctx context.Context, accountIDs []uuid.UUID, limit int) ([]*models.LedgerEntry, error)
}

type DisputeLister interface {
	ListOpen(ctx context.Context) ([]*models.Dispute, error)
}

type EventLister interface {
	ListRecent(ctx context.Context, limit int) ([]*models.PaymentEvent, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context) (*ledger.Report, error)
}

type AdminGate interface {
	RequireAdmin(ctx context.Context, userID uuid.UUID) error
}

type Handler struct {
	profiles ProfileReader
	accounts AccountLister
	entries  EntryLister
	disputes DisputeLister
	events   EventLister
	ledger   Reconciler
	admins   AdminGate
	log      *slog.Logger
}

func NewHandler(
	profiles ProfileReader,
	accounts AccountLister,
	entries EntryLister,
	disputes DisputeLister,
	events EventLister,
	reconciler Reconciler,
	admins AdminGate,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		profiles: profiles,
		accounts: accounts,
		entries:  entries,
		disputes: disputes,
		events:   events,
		ledger:   reconciler,
		admins:   admins,
		log:      log,
	}
}

// Balances are the caller's cached account balances in sats.
type Balances struct {
	Available int64 `json:"available"`
	Escrow    int64 `json:"escrow"`
}

type MeResponse struct {
	*models.Profile
	HasWallet bool     `json:"has_wallet"`
	Balances  Balances `json:"balances"`
}

// GET /api/v1/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	p, err := h.profiles.GetByID(r.Context(), user.ID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	accs, err := h.accounts.ListByOwner(r.Context(), user.ID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	resp := MeResponse{Profile: p, HasWallet: p.HasWallet()}
	for _, a := range accs {
		switch a.Kind {
		case models.AccountAvailable:
			resp.Balances.Available = a.Balance
		case models.AccountEscrow:
			resp.Balances.Escrow = a.Balance
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// LedgerLine is an entry seen from the caller's side.
type LedgerLine struct {
	*models.LedgerEntry
	Account string `json:"account"`
	Delta   int64  `json:"delta"`
}

// GET /api/v1/me/ledger?limit=
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	accs, err := h.accounts.ListByOwner(r.Context(), user.ID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	kinds := make(map[uuid.UUID]string, len(accs))
	ids := make([]uuid.UUID, 0, len(accs))
	for _, a := range accs {
		kinds[a.ID] = a.Kind
		ids = append(ids, a.ID)
	}
	lines := []LedgerLine{}
	if len(ids) > 0 {
		entries, err := h.entries.ListByAccountIDs(r.Context(), ids, limit)
		if err != nil {
			httpx.WriteError(w, h.log, err)
			return
		}
		for _, e := range entries {
			line := LedgerLine{LedgerEntry: e}
			for id := range kinds {
				line.Delta += e.Delta(id)
			}
			// A move between two own accounts nets to zero and is labelled
			// by the receiving side.
			if k, ok := kinds[e.CreditAccountID]; ok {
				line.Account = k
			} else {
				line.Account = kinds[e.DebitAccountID]
			}
			lines = append(lines, line)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, lines)
}

// GET /api/v1/admin/disputes
func (h *Handler) ListDisputes(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	list, err := h.disputes.ListOpen(r.Context())
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	if list == nil {
		list = []*models.Dispute{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// GET /api/v1/admin/payment-events?limit=
func (h *Handler) ListPaymentEvents(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	list, err := h.events.ListRecent(r.Context(), limit)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	if list == nil {
		list = []*models.PaymentEvent{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// GET /api/v1/admin/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	rep, err := h.ledger.Reconcile(r.Context())
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	if !rep.OK() {
		h.log.Error("ledger reconciliation failed", "mismatches", len(rep.Mismatches), "total", rep.Total)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"ok":         rep.OK(),
		"accounts":   rep.Accounts,
		"total":      rep.Total,
		"mismatches": rep.Mismatches,
	})
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	user := middleware.UserFromCtx(r.Context())
	if err := h.admins.RequireAdmin(r.Context(), user.ID); err != nil {
		httpx.WriteError(w, h.log, err)
		return false
	}
	return true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		httpx.WriteMessage(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return min(n, maxLimit), true
}
