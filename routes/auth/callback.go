package routes_auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/discord"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/middlewares"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/response"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/session"
)

// AuthCallbackHandler completes the Discord sign-in and starts a portal
// session.
func (h *Handler) AuthCallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	if providerError := query.Get("error"); providerError != "" {
		h.logger.InfoContext(ctx, "discord sign-in declined", "error", providerError)
		redirectToLogin(w, r, ErrorAccessDenied)
		return
	}

	stateSession, _ := h.cookies.Get(r, OAuthStateCookie)
	savedState, ok := stateSession.Values["state"].(string)
	if !ok || savedState == "" || savedState != query.Get("state") {
		h.logger.WarnContext(ctx, "oauth state mismatch")
		redirectToLogin(w, r, ErrorOAuthCallback)
		return
	}
	callbackURL, _ := stateSession.Values["callbackUrl"].(string)

	stateSession.Options.MaxAge = -1
	_ = stateSession.Save(r, w)

	code := query.Get("code")
	if code == "" {
		redirectToLogin(w, r, ErrorOAuthCallback)
		return
	}

	// exchange code for token
	token, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		h.logger.ErrorContext(ctx, "discord token exchange failed", "error", err)
		redirectToLogin(w, r, ErrorOAuthCallback)
		return
	}

	profile, err := discord.FetchProfile(ctx, h.oauth.Client(ctx, token), h.discordAPIURL)
	if err != nil {
		h.logger.ErrorContext(ctx, "fetch discord profile failed", "error", err)
		redirectToLogin(w, r, ErrorOAuthCallback)
		return
	}

	claims, err := h.store.New()
	if err != nil {
		h.logger.ErrorContext(ctx, "start session", "error", err)
		redirectToLogin(w, r, ErrorOAuthCallback)
		return
	}

	if err := h.linker.SignIn(ctx, claims, profile); err != nil {
		if errors.Is(err, session.ErrEmailNotVerified) {
			redirectToLogin(w, r, ErrorAccessDenied)
			return
		}
		h.logger.ErrorContext(ctx, "link discord identity", "error", err)
		redirectToLogin(w, r, ErrorOAuthCallback)
		return
	}

	// the session being replaced, if any, must not outlive this sign-in
	if previous := middlewares.SessionFromContext(ctx); previous != nil {
		if err := h.store.Revoke(ctx, previous); err != nil {
			h.logger.WarnContext(ctx, "revoke previous session", "session_id", previous.ID, "error", err)
		}
	}

	if err := h.store.Save(w, claims); err != nil {
		h.logger.ErrorContext(ctx, "save session", "error", err)
		redirectToLogin(w, r, ErrorOAuthCallback)
		return
	}

	h.logger.InfoContext(ctx, "portal sign-in",
		"discord_id", claims.DiscordID,
		"registered", claims.IsRegistered(),
		"verified", claims.IsVerified,
	)
	http.Redirect(w, r, SafeCallbackURL(callbackURL), http.StatusFound)
}

// ---------- Session ----------

// SessionUser is the part of the session exposed to the browser. The account
// API token stays server-side.
type SessionUser struct {
	DiscordID         string  `json:"discordID"`
	DiscordUsername   string  `json:"discordUsername"`
	DiscordGlobalName *string `json:"discordGlobalName"`
	DiscordEmail      string  `json:"discordEmail"`
	DiscordAvatar     *string `json:"discordAvatar"`
	Image             *string `json:"image"`
	UserID            *uint   `json:"userID"`
	IsVerified        bool    `json:"isVerified"`
	Role              string  `json:"role,omitempty"`
}

type SessionView struct {
	User    SessionUser `json:"user"`
	Expires time.Time   `json:"expires"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func NewSessionView(claims *session.Claims) SessionView {
	view := SessionView{
		User: SessionUser{
			DiscordID:         claims.DiscordID,
			DiscordUsername:   claims.DiscordUsername,
			DiscordGlobalName: optional(claims.DiscordGlobalName),
			DiscordEmail:      claims.Email,
			DiscordAvatar:     optional(claims.AvatarHash),
			Image:             optional(claims.AvatarURL()),
			UserID:            claims.UserID,
			IsVerified:        claims.IsVerified,
			Role:              claims.Role,
		},
	}
	if claims.ExpiresAt != nil {
		view.Expires = claims.ExpiresAt.Time.UTC()
	}
	return view
}

// SessionHandler returns the current session, or an empty object when
// signed out.
func (h *Handler) SessionHandler(w http.ResponseWriter, r *http.Request) {
	claims := middlewares.SessionFromContext(r.Context())
	if claims == nil {
		response.JSON(w, http.StatusOK, struct{}{})
		return
	}
	response.JSON(w, http.StatusOK, NewSessionView(claims))
}

// RefreshSessionHandler re-reads the linked user from the account API, for
// example after registration or verification.
func (h *Handler) RefreshSessionHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := middlewares.SessionFromContext(ctx)
	if claims == nil {
		response.JSON(w, http.StatusUnauthorized, map[string]string{"error": "Not authenticated"})
		return
	}

	h.linker.Refresh(ctx, claims, true)
	if err := h.store.Save(w, claims); err != nil {
		h.logger.ErrorContext(ctx, "save session", "error", err)
		response.JSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to refresh session"})
		return
	}
	response.JSON(w, http.StatusOK, NewSessionView(claims))
}

// SignOutHandler revokes the session and clears its cookie.
func (h *Handler) SignOutHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if claims := middlewares.SessionFromContext(ctx); claims != nil {
		if err := h.store.Revoke(ctx, claims); err != nil {
			h.logger.ErrorContext(ctx, "revoke session", "session_id", claims.ID, "error", err)
		}
		h.logger.InfoContext(ctx, "portal sign-out", "discord_id", claims.DiscordID)
	}
	h.store.Clear(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
