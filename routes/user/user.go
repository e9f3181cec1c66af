// Package routes_user exposes the account service over HTTP under /User.
package routes_user

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/accounts"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/apierrors"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/contracts"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/middlewares"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/response"
)

type Handler struct {
	service *accounts.Service
}

func NewHandler(service *accounts.Service) *Handler {
	return &Handler{service: service}
}

// Mount registers the /User routes on r. requireBearer guards the routes that
// need an account API token.
func (h *Handler) Mount(r chi.Router, requireBearer func(http.Handler) http.Handler) {
	r.Route("/User", func(r chi.Router) {
		r.Post("/Register", h.Register)
		r.Post("/LogIn", h.LogIn)
		r.Post("/LoginDiscord", h.LogInDiscord)
		r.Post("/RegisterDiscord", h.RegisterDiscord)
		r.Post("/ResendVerification", h.ResendVerification)
		r.Get("/Discord/{discordID}", h.GetUserByDiscordID)
		r.Get("/CheckAccountName/{name}", h.CheckAccountName)
		r.Get("/VerifyDiscord/{token}", h.VerifyDiscord)
		r.With(requireBearer).Get("/{id}", h.GetUser)
	})
}

// ---------- Email registration ----------

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in contracts.RegisterUser
	if err := response.DecodeJSON(r, &in); err != nil {
		response.Error(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), in)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, user)
}

func (h *Handler) LogIn(w http.ResponseWriter, r *http.Request) {
	var in contracts.LogIn
	if err := response.DecodeJSON(r, &in); err != nil {
		response.Error(w, err)
		return
	}

	token, err := h.service.LogIn(r.Context(), in)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, token)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := middlewares.PrincipalFromContext(r.Context())
	if !ok {
		response.Unauthorized(w)
		return
	}

	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil || id == 0 {
		response.Error(w, apierrors.NewValidationError("id", "must be a positive integer"))
		return
	}

	user, err := h.service.GetUser(r.Context(), uint(id), principal.Role)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, user)
}

// ---------- Discord ----------

func (h *Handler) LogInDiscord(w http.ResponseWriter, r *http.Request) {
	var in contracts.LogInDiscord
	if err := response.DecodeJSON(r, &in); err != nil {
		response.Error(w, err)
		return
	}

	token, err := h.service.LogInDiscord(r.Context(), in)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, token)
}

func (h *Handler) GetUserByDiscordID(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUserByDiscordID(r.Context(), chi.URLParam(r, "discordID"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, user)
}

func (h *Handler) RegisterDiscord(w http.ResponseWriter, r *http.Request) {
	var in contracts.RegisterDiscordUser
	if err := response.DecodeJSON(r, &in); err != nil {
		response.Error(w, err)
		return
	}

	user, err := h.service.RegisterDiscord(r.Context(), in)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, user)
}

func (h *Handler) CheckAccountName(w http.ResponseWriter, r *http.Request) {
	availability, err := h.service.CheckAccountName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, availability)
}

func (h *Handler) VerifyDiscord(w http.ResponseWriter, r *http.Request) {
	msg, err := h.service.VerifyDiscord(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, msg)
}

func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var in contracts.LogInDiscord
	if err := response.DecodeJSON(r, &in); err != nil {
		response.Error(w, err)
		return
	}

	msg, err := h.service.ResendVerification(r.Context(), in)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, msg)
}
