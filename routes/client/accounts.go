package routes_client

import (
	"net/http"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/views"
)

// AccountsHandler lists the game accounts of the signed-in user.
func (h *Handler) AccountsHandler(w http.ResponseWriter, r *http.Request) {
	page := views.Page{Title: "Accounts"}
	user, err := h.currentUser(r)
	if err != nil {
		page.Error = "Failed to load accounts."
	}
	page.User = user
	h.render(w, r, http.StatusOK, "accounts", page)
}
