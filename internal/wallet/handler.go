package wallet

import (
	"log/slog"
	"net/http"

	"github.com/bereka/backend/internal/httpx"
	"github.com/bereka/backend/internal/middleware"
)

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// CreateWallet serves POST /wallet.
func (h *Handler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	info, err := h.svc.CreateWallet(r.Context(), user.ID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	status := http.StatusOK
	if info.Created {
		status = http.StatusCreated
	}
	httpx.WriteJSON(w, status, map[string]any{"success": true, "wallet": info})
}
