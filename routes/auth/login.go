// Package routes_auth signs portal visitors in with Discord and manages the
// resulting session cookie.
package routes_auth

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"golang.org/x/oauth2"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/session"
)

// OAuthStateCookie holds the OAuth state and callback URL between the
// sign-in redirect and Discord's callback.
const OAuthStateCookie = "portal.oauth-state"

// DefaultCallbackURL is where visitors land after signing in when they did
// not ask for a specific page.
const DefaultCallbackURL = "/dashboard"

// Login error codes shown on the login page.
const (
	ErrorAccessDenied  = "AccessDenied"
	ErrorOAuthCallback = "OAuthCallback"
)

type Handler struct {
	oauth         *oauth2.Config
	discordAPIURL string
	cookies       sessions.Store
	store         *session.Store
	linker        *session.Linker
	logger        *slog.Logger
}

func NewHandler(oauth *oauth2.Config, discordAPIURL string, cookies sessions.Store, store *session.Store, linker *session.Linker, logger *slog.Logger) *Handler {
	return &Handler{
		oauth:         oauth,
		discordAPIURL: discordAPIURL,
		cookies:       cookies,
		store:         store,
		linker:        linker,
		logger:        logger,
	}
}

func (h *Handler) Mount(r chi.Router) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/signin", h.LoginHandler)
		r.Get("/callback/discord", h.AuthCallbackHandler)
		r.Get("/session", h.SessionHandler)
		r.Post("/session", h.RefreshSessionHandler)
		r.Post("/signout", h.SignOutHandler)
	})
}

// LoginHandler redirects to Discord's consent screen.
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	state, err := generateSecureState()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "generate oauth state", "error", err)
		redirectToLogin(w, r, ErrorOAuthCallback)
		return
	}

	stateSession, _ := h.cookies.Get(r, OAuthStateCookie)
	stateSession.Values["state"] = state
	stateSession.Values["callbackUrl"] = SafeCallbackURL(r.URL.Query().Get("callbackUrl"))
	stateSession.Options.MaxAge = 300
	if err := stateSession.Save(r, w); err != nil {
		h.logger.ErrorContext(r.Context(), "save oauth state", "error", err)
		redirectToLogin(w, r, ErrorOAuthCallback)
		return
	}

	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

func generateSecureState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// SafeCallbackURL keeps post-login redirects on this site.
func SafeCallbackURL(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return DefaultCallbackURL
	}
	return raw
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, "/login?error="+code, http.StatusFound)
}
