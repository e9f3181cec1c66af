// Package routes_client renders the portal's HTML pages.
package routes_client

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/contracts"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/middlewares"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/session"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/views"
)

// Backend is the part of the account API the pages read from.
type Backend interface {
	GetUser(ctx context.Context, userID uint, token string) (*contracts.BasicUser, error)
	GetUserByDiscordID(ctx context.Context, discordID string) (*contracts.DiscordUser, error)
	VerifyDiscordAccount(ctx context.Context, token string) (*contracts.Message, error)
}

var loginErrors = map[string]string{
	"OAuthAccountNotLinked": "This Discord account is not linked to any game account.",
	"AccessDenied":          "Your Discord account must have a verified email address.",
}

const defaultLoginError = "An error occurred during sign-in. Please try again."

type Handler struct {
	views   *views.Renderer
	backend Backend
	store   *session.Store
	linker  *session.Linker
	logger  *slog.Logger
}

func NewHandler(renderer *views.Renderer, backend Backend, store *session.Store, linker *session.Linker, logger *slog.Logger) *Handler {
	return &Handler{views: renderer, backend: backend, store: store, linker: linker, logger: logger}
}

func (h *Handler) Mount(r chi.Router) {
	r.Get("/", h.IndexHandler)
	r.Get("/login", h.LoginHandler)
	r.Get("/register", h.RegisterHandler)
	r.Get("/pending-verification", h.PendingVerificationHandler)
	r.Get("/verify", h.VerifyHandler)
	r.Get("/dashboard", h.DashboardHandler)
	r.Get("/profile", h.MeHandler)
	r.Get("/accounts", h.AccountsHandler)
	r.Get("/admin/dashboard", h.AdminDashboardHandler)
	r.NotFound(h.NotFoundHandler)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data views.Page) {
	data.Session = middlewares.SessionFromContext(r.Context())
	if err := h.views.Render(w, status, page, data); err != nil {
		h.logger.ErrorContext(r.Context(), "render page", "page", page, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "index", views.Page{Title: "Home"})
}

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := views.Page{Title: "Sign in", CallbackURL: query.Get("callbackUrl")}
	if code := query.Get("error"); code != "" {
		page.Error = loginErrors[code]
		if page.Error == "" {
			page.Error = defaultLoginError
		}
	}
	h.render(w, r, http.StatusOK, "login", page)
}

func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if claims := middlewares.SessionFromContext(r.Context()); claims != nil && claims.IsRegistered() {
		http.Redirect(w, r, middlewares.DashboardPath, http.StatusFound)
		return
	}
	h.render(w, r, http.StatusOK, "register", views.Page{Title: "Register"})
}

// PendingVerificationHandler lets users who verified from another device
// through without signing in again.
func (h *Handler) PendingVerificationHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := middlewares.SessionFromContext(ctx)
	if claims != nil && claims.IsRegistered() && !claims.IsVerified {
		user, err := h.backend.GetUserByDiscordID(ctx, claims.DiscordID)
		if err != nil {
			h.logger.WarnContext(ctx, "load verification status", "discord_id", claims.DiscordID, "error", err)
		}
		if user != nil && user.IsVerified {
			h.linker.Refresh(ctx, claims, true)
			if claims.IsVerified {
				if err := h.store.Save(w, claims); err != nil {
					h.logger.ErrorContext(ctx, "save session", "error", err)
				}
				http.Redirect(w, r, middlewares.DashboardPath, http.StatusFound)
				return
			}
		}
	}
	h.render(w, r, http.StatusOK, "pending-verification", views.Page{Title: "Pending verification"})
}

// VerifyHandler redeems the token from a verification DM and, when the
// visitor is signed in, refreshes their session so the gate lets them in.
func (h *Handler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := r.URL.Query().Get("token")
	if token == "" {
		h.render(w, r, http.StatusBadRequest, "verify", views.Page{Title: "Verify", Error: "No verification token provided."})
		return
	}

	msg, err := h.backend.VerifyDiscordAccount(ctx, token)
	if err != nil {
		status, message := describe(err, "Failed to verify account. Please try again.")
		h.render(w, r, status, "verify", views.Page{Title: "Verify", Error: message})
		return
	}

	if claims := middlewares.SessionFromContext(ctx); claims != nil {
		h.linker.Refresh(ctx, claims, true)
		if err := h.store.Save(w, claims); err != nil {
			h.logger.ErrorContext(ctx, "save session", "error", err)
		}
	}
	h.render(w, r, http.StatusOK, "verify", views.Page{Title: "Verify", Message: msg.Message})
}

func (h *Handler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, "not-found", views.Page{Title: "Not found"})
}
