package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	domain "github.com/bryanwahyu/sonarscan-api/internal/domain/scans"
)

type contextKey string

const TokenKey contextKey = "sonar_token"

// TokenHeader carries the SonarQube token forwarded to the backend.
const TokenHeader = "X-Sonar-Token"

// SonarToken requires the token header and checks it with authorize. The
// token is stored in the request context for the handlers.
func SonarToken(authorize func(token string) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			values, present := r.Header[http.CanonicalHeaderKey(TokenHeader)]
			if !present {
				writeError(w, http.StatusUnauthorized, domain.MsgMissingHeader)
				return
			}
			var token string
			if len(values) > 0 {
				token = values[0]
			}
			if err := authorize(token); err != nil {
				msg := domain.MsgInvalidToken
				var de *domain.Error
				if errors.As(err, &de) && de.Message != "" {
					msg = de.Message
				}
				writeError(w, http.StatusUnauthorized, msg)
				return
			}

			ctx := context.WithValue(r.Context(), TokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromContext extracts the forwarded token from context
func TokenFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(TokenKey).(string); ok {
		return token
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
