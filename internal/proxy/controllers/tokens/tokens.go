package tokens

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/vesseldata/vesseldata/internal/proxy/controllers"
	"github.com/vesseldata/vesseldata/internal/store"
)

type tokenRequest struct {
	User   string `json:"user"`
	Secret string `json:"secret"`
}

type tokenResponse struct {
	Token   string `json:"token"`
	Success bool   `json:"success"`
}

// Handler exchanges the shared admin secret for a bearer token.
func Handler(storeInstance *store.Store, adminSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}
		if storeInstance.TokenManager == nil {
			http.Error(w, "token manager unavailable", http.StatusServiceUnavailable)
			return
		}

		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if adminSecret == "" || subtle.ConstantTimeCompare([]byte(req.Secret), []byte(adminSecret)) != 1 {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}

		subject := req.User
		if subject == "" {
			subject = "admin"
		}
		token, err := storeInstance.TokenManager.GenerateToken(subject)
		if err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}
		controllers.WriteJSON(w, tokenResponse{Token: token, Success: true})
	}
}
