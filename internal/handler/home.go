package handler

import (
	"net/http"
)

// HomeView is the view model for the landing page.
type HomeView struct {
	Page          string            `json:"page"`
	Title         string            `json:"title"`
	Authenticated bool              `json:"authenticated"`
	Links         map[string]string `json:"links"`
}

// HandleHome renders the public landing page with links to the other pages.
//
// HTTP: GET /
func (h *AuthHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	loggedIn := h.auth.IsLoggedIn(sessionToken(r))

	links := map[string]string{
		"login":    PathLogin,
		"register": PathRegister,
	}
	if loggedIn {
		links = map[string]string{
			"dashboard": PathDashboard,
			"logout":    PathLogout,
		}
	}

	writeJSON(w, http.StatusOK, HomeView{
		Page:          "home",
		Title:         "Welcome",
		Authenticated: loggedIn,
		Links:         links,
	})
}

// HandleHealth is a liveness probe.
//
// HTTP: GET /healthz
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
