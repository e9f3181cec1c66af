package middlewares

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/apierrors"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/claims"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/response"
)

// ContextKey is the type of the values this package stores in request contexts.
type ContextKey string

const (
	PrincipalKey ContextKey = "principal"
	SessionKey   ContextKey = "session"
)

// ---------- Bearer Handling ----------
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// ---------- Middleware ----------

// AuthMiddleware requires a valid account API bearer token and attaches the
// resulting principal to the request context.
func AuthMiddleware(issuer *claims.Issuer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				response.Error(w, apierrors.NewUnauthorizedError("Missing bearer token"))
				return
			}

			principal, err := issuer.Parse(tokenString)
			if err != nil {
				logger.DebugContext(r.Context(), "bearer token rejected", "error", err)
				response.Error(w, apierrors.NewUnauthorizedError("Invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext returns the principal attached by AuthMiddleware.
func PrincipalFromContext(ctx context.Context) (*claims.Principal, bool) {
	principal, ok := ctx.Value(PrincipalKey).(*claims.Principal)
	return principal, ok && principal != nil
}
