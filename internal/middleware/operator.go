package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/templui/goalstake/internal/auth"
	"github.com/templui/goalstake/internal/ctxkeys"
)

// RequireOperator rejects requests without a valid operator bearer token
func RequireOperator(ops *auth.Operators) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))

			claims, err := ops.Validate(token)
			if err != nil {
				slog.Warn("operator request rejected", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(ctxkeys.WithOperator(r.Context(), claims)))
		})
	}
}

// writeError writes the same error envelope as the API handlers
func writeError(w http.ResponseWriter, status int, kind, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"kind": kind, "detail": detail},
	})
}
