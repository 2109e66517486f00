package middleware

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/rpattn/opsreport/internal/auth"

	"github.com/google/uuid"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, string, error)
}

// RequireUser rejects requests without a valid bearer token and stores the
// token subject in the request context.
func RequireUser(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeUnauthorized(w, auth.ErrMissingToken.Error())
				return
			}
			userID, role, err := verifier.Verify(token)
			if err != nil {
				log.Printf("[AUTH] rejected token for %s %s: %v", r.Method, r.URL.Path, err)
				writeUnauthorized(w, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), userID, role)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
