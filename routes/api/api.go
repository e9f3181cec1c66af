// Package routes_api proxies the portal's browser calls to the account API.
package routes_api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/apiclient"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/contracts"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/middlewares"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/response"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/session"
)

// Backend is the part of the account API the proxies call.
type Backend interface {
	CheckAccountName(ctx context.Context, name string) (*contracts.AccountNameAvailability, error)
	RegisterDiscordUser(ctx context.Context, payload contracts.RegisterDiscordUser) (*contracts.DiscordUser, error)
	VerifyDiscordAccount(ctx context.Context, token string) (*contracts.Message, error)
	ResendVerification(ctx context.Context, discordID string) (*contracts.Message, error)
}

type Handler struct {
	backend Backend
	store   *session.Store
	linker  *session.Linker
	logger  *slog.Logger
}

func NewHandler(backend Backend, store *session.Store, linker *session.Linker, logger *slog.Logger) *Handler {
	return &Handler{backend: backend, store: store, linker: linker, logger: logger}
}

func (h *Handler) Mount(r chi.Router) {
	r.Get("/api/check-account-name", h.CheckAccountName)
	r.Post("/api/register", h.Register)
	r.Get("/api/verify", h.Verify)
	r.Post("/api/resend-verification", h.ResendVerification)
}

type errorBody struct {
	Error string `json:"error"`
}

type successBody struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// writeError passes account API errors through with their status and hides
// everything else behind fallback.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		response.JSON(w, apiErr.Status, errorBody{Error: apiErr.Message})
		return
	}
	h.logger.ErrorContext(r.Context(), "account api call failed", "path", r.URL.Path, "error", err)
	response.JSON(w, http.StatusInternalServerError, errorBody{Error: fallback})
}

func notAuthenticated(w http.ResponseWriter) {
	response.JSON(w, http.StatusUnauthorized, errorBody{Error: "Not authenticated"})
}

func signedIn(r *http.Request) *session.Claims {
	claims := middlewares.SessionFromContext(r.Context())
	if claims == nil || claims.DiscordID == "" {
		return nil
	}
	return claims
}

// refresh re-reads the linked user into the session cookie. It must run
// before the response status is written.
func (h *Handler) refresh(w http.ResponseWriter, r *http.Request, claims *session.Claims) {
	h.linker.Refresh(r.Context(), claims, true)
	if err := h.store.Save(w, claims); err != nil {
		h.logger.ErrorContext(r.Context(), "save session", "error", err)
	}
}

func (h *Handler) CheckAccountName(w http.ResponseWriter, r *http.Request) {
	if signedIn(r) == nil {
		notAuthenticated(w)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		response.JSON(w, http.StatusBadRequest, errorBody{Error: "Name parameter is required"})
		return
	}

	result, err := h.backend.CheckAccountName(r.Context(), name)
	if err != nil {
		h.writeError(w, r, err, "Failed to check account name")
		return
	}
	response.OK(w, result)
}

// Register creates the account API user for the signed-in Discord identity.
// The Discord fields always come from the session, never from the body.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	claims := signedIn(r)
	if claims == nil {
		notAuthenticated(w)
		return
	}

	var payload contracts.RegisterDiscordUser
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		response.JSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		return
	}
	payload.DiscordID = claims.DiscordID
	payload.DiscordUsername = claims.DiscordUsername
	payload.DiscordEmail = claims.Email
	payload.DiscordAvatarHash = nil
	if claims.AvatarHash != "" {
		avatar := claims.AvatarHash
		payload.DiscordAvatarHash = &avatar
	}

	result, err := h.backend.RegisterDiscordUser(r.Context(), payload)
	if err != nil {
		h.writeError(w, r, err, "Registration failed")
		return
	}

	h.refresh(w, r, claims)
	response.Created(w, result)
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		response.JSON(w, http.StatusBadRequest, errorBody{Error: "No verification token provided."})
		return
	}

	if _, err := h.backend.VerifyDiscordAccount(r.Context(), token); err != nil {
		h.writeError(w, r, err, "Failed to verify account. Please try again.")
		return
	}

	if claims := signedIn(r); claims != nil {
		h.refresh(w, r, claims)
	}
	response.OK(w, successBody{Success: true, Message: "Account verified successfully."})
}

func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	claims := signedIn(r)
	if claims == nil {
		notAuthenticated(w)
		return
	}

	if _, err := h.backend.ResendVerification(r.Context(), claims.DiscordID); err != nil {
		h.writeError(w, r, err, "Failed to resend verification")
		return
	}
	response.OK(w, successBody{Success: true})
}
