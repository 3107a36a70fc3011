package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/bereka/backend/internal/httpx"
	"github.com/bereka/backend/internal/models"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	body, err := httpx.ReadBody(w, r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req RegisterRequest
	if err := httpx.Decode(body, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	if req.Email == "" || req.Password == "" || req.Username == "" || req.Role == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "missing required fields")
		return
	}
	p, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Username, req.Role)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			httpx.WriteMessage(w, http.StatusConflict, "email already registered")
			return
		}
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	body, err := httpx.ReadBody(w, r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req LoginRequest
	if err := httpx.Decode(body, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "missing email or password")
		return
	}
	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			httpx.WriteMessage(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, LoginResponse{Token: token})
}
