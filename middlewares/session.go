package middlewares

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/session"
)

// Session loads the portal session cookie into the request context. Sessions
// idle for longer than idleTimeout are revoked and the request continues
// signed out. Activity is written back at most every
// session.ActivityWriteInterval.
func Session(store *session.Store, idleTimeout time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			claims, err := store.Load(r)
			if err != nil {
				logger.ErrorContext(ctx, "session lookup failed", "error", err)
			}

			if claims != nil {
				now := time.Now()
				switch {
				case idleTimeout > 0 && claims.IdleFor(now) > idleTimeout:
					if err := store.Revoke(ctx, claims); err != nil {
						logger.ErrorContext(ctx, "revoke idle session", "session_id", claims.ID, "error", err)
					}
					store.Clear(w)
					logger.InfoContext(ctx, "session idle timeout", "session_id", claims.ID)
					claims = nil
				case claims.Touch(now):
					if err := store.Save(w, claims); err != nil {
						logger.ErrorContext(ctx, "save session activity", "error", err)
					}
				}
			}

			next.ServeHTTP(w, r.WithContext(WithSession(ctx, claims)))
		})
	}
}

// WithSession returns a copy of ctx carrying claims.
func WithSession(ctx context.Context, claims *session.Claims) context.Context {
	return context.WithValue(ctx, SessionKey, claims)
}

// SessionFromContext returns the session loaded by Session, or nil.
func SessionFromContext(ctx context.Context) *session.Claims {
	claims, _ := ctx.Value(SessionKey).(*session.Claims)
	return claims
}
