package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// WebhookSecret checks the shared secret a payment provider sends with its
// callbacks, either as the "secret" query parameter or the X-Webhook-Secret
// header. An empty configured secret disables the check.
func WebhookSecret(secret string, log *slog.Logger) func(http.Handler) http.Handler {
	if secret == "" {
		log.Warn("LNBITS_WEBHOOK_SECRET not set: webhook requests are not verified")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" {
				got := r.URL.Query().Get("secret")
				if got == "" {
					got = r.Header.Get("X-Webhook-Secret")
				}
				if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
					log.Warn("webhook rejected: bad secret", "remote_addr", r.RemoteAddr)
					http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
