package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

const ctxAmountKey contextKey = "parsed_amount"

// parsedAmount is stored in context so the handler can read the amount
// without re-parsing the body.
type parsedAmount struct {
	AmountSats int64 `json:"amountSats"`
}

// AmountFromCtx returns the amount parsed by AmountCheck, or 0 if not set.
func AmountFromCtx(ctx context.Context) int64 {
	if a, ok := ctx.Value(ctxAmountKey).(*parsedAmount); ok {
		return a.AmountSats
	}
	return 0
}

// InvoiceLimits bounds invoice amounts and the number of unpaid invoices a
// user may hold open.
type InvoiceLimits struct {
	MinSats    int64
	MaxSats    int64
	MaxPending int
}

// PendingCounter counts a user's PENDING payment intents.
type PendingCounter interface {
	CountPending(ctx context.Context, userID uuid.UUID) (int, error)
}

// AmountCheck validates the invoice amount against the configured bounds
// for the user set by BearerAuth. Reads the body to extract "amountSats",
// then replaces r.Body so downstream handlers can re-read it.
func AmountCheck(limits InvoiceLimits, pending PendingCounter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromCtx(r.Context())
			if user == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var peek parsedAmount
			if err := json.Unmarshal(bodyBytes, &peek); err != nil {
				http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
				return
			}
			if peek.AmountSats <= 0 {
				http.Error(w, `{"error":"Invalid amount"}`, http.StatusBadRequest)
				return
			}
			if peek.AmountSats < limits.MinSats {
				http.Error(w, fmt.Sprintf(`{"error":"amount %d is below the minimum of %d sats"}`, peek.AmountSats, limits.MinSats), http.StatusBadRequest)
				return
			}
			if limits.MaxSats > 0 && peek.AmountSats > limits.MaxSats {
				http.Error(w, fmt.Sprintf(`{"error":"amount %d exceeds the maximum of %d sats"}`, peek.AmountSats, limits.MaxSats), http.StatusBadRequest)
				return
			}

			if limits.MaxPending > 0 && pending != nil {
				n, err := pendingCountFn(r.Context(), pending, user.ID)
				if err != nil {
					http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
					return
				}
				if n >= limits.MaxPending {
					http.Error(w, fmt.Sprintf(`{"error":"%d unpaid invoices already open"}`, n), http.StatusBadRequest)
					return
				}
			}

			ctx := context.WithValue(r.Context(), ctxAmountKey, &peek)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// pendingCountFn is the function used to count open invoices.
// Tests can replace this to simulate store failures.
var pendingCountFn = func(ctx context.Context, pending PendingCounter, userID uuid.UUID) (int, error) {
	return pending.CountPending(ctx, userID)
}
