package adminhttp

import (
	"encoding/json"
	"errors"
	"net/http"
)

// HandleLogin checks the submitted password and starts a session.
func (api *API) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.writeError(ctx, w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		api.opts.Metrics.IncAdminLogin("bad_request")
		api.writeError(ctx, w, http.StatusBadRequest, "Invalid request")
		return
	}

	if !api.opts.Auth.VerifyCredential(req.Password) {
		api.opts.Metrics.IncAdminLogin("failed")
		api.logger.Info(ctx, "admin login rejected")
		api.writeError(ctx, w, http.StatusUnauthorized, "Incorrect password")
		return
	}

	api.opts.Auth.CreateSession(w)
	api.opts.Metrics.IncAdminLogin("ok")
	api.logger.Info(ctx, "admin logged in")
	api.writeJSON(ctx, w, http.StatusOK, successResponse{Success: true})
}

// HandleLogout clears the session cookie. It succeeds without a session.
func (api *API) HandleLogout(w http.ResponseWriter, r *http.Request) {
	api.opts.Auth.DestroySession(w)
	api.writeJSON(r.Context(), w, http.StatusOK, successResponse{Success: true})
}

// HandleLoginPage serves the login form, or sends a signed-in admin
// straight to the dashboard.
func (api *API) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if api.opts.Auth.IsAuthenticated(r) {
		http.Redirect(w, r, DashboardPath, http.StatusSeeOther)
		return
	}
	api.renderPage(w, r, api.loginPage)
}

func (api *API) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	api.renderPage(w, r, api.dashPage)
}
