// Package httpx holds the JSON request and response helpers shared by the
// HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/bereka/backend/internal/models"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteMessage(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WriteError maps a domain error to a status code. Contract violations are
// 400 with their message; anything unclassified is logged and answered as
// 500 without details.
func WriteError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrDuplicatePayment),
		errors.Is(err, models.ErrUnauthorized),
		errors.Is(err, models.ErrUpstreamProvider):
		WriteMessage(w, http.StatusBadRequest, err.Error())
	default:
		log.Error("request failed", "error", err)
		WriteMessage(w, http.StatusInternalServerError, "internal error")
	}
}

// ReadBody reads a bounded request body.
func ReadBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable body", models.ErrInvalidInput)
	}
	return body, nil
}

// Decode unmarshals body into v, reporting malformed JSON as invalid input.
func Decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: invalid JSON", models.ErrInvalidInput)
	}
	return nil
}
