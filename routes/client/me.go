package routes_client

import (
	"errors"
	"net/http"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/apiclient"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/contracts"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/middlewares"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/models"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/views"
)

// describe turns an account API error into a status and a message safe to
// show.
func describe(err error, fallback string) (int, string) {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Status, apiErr.Message
	}
	return http.StatusBadGateway, fallback
}

// currentUser loads the signed-in user from the account API with the
// session's bearer token.
func (h *Handler) currentUser(r *http.Request) (*contracts.BasicUser, error) {
	claims := middlewares.SessionFromContext(r.Context())
	if claims == nil || !claims.IsRegistered() || claims.APIToken == "" {
		return nil, errors.New("session is not linked to an account API user")
	}
	user, err := h.backend.GetUser(r.Context(), *claims.UserID, claims.APIToken)
	if err != nil {
		h.logger.WarnContext(r.Context(), "load account api user", "user_id", *claims.UserID, "error", err)
		return nil, err
	}
	return user, nil
}

func (h *Handler) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	// the dashboard still renders from the session when the lookup fails
	user, _ := h.currentUser(r)
	h.render(w, r, http.StatusOK, "dashboard", views.Page{Title: "Dashboard", User: user})
}

// MeHandler renders the signed-in user's profile.
func (h *Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	page := views.Page{Title: "Profile"}
	user, err := h.currentUser(r)
	if err != nil {
		page.Error = "Could not load account details."
	}
	page.User = user
	h.render(w, r, http.StatusOK, "profile", page)
}

func (h *Handler) AdminDashboardHandler(w http.ResponseWriter, r *http.Request) {
	claims := middlewares.SessionFromContext(r.Context())
	if claims == nil || claims.Role != string(models.RoleAdministrator) {
		http.Redirect(w, r, middlewares.DashboardPath, http.StatusFound)
		return
	}
	h.render(w, r, http.StatusOK, "admin-dashboard", views.Page{Title: "Admin"})
}
