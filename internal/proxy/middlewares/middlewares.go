package middlewares

import (
	"net/http"
	"strings"

	"github.com/vesseldata/vesseldata/internal/store"
)

// RequireToken rejects requests without a valid bearer token. The token
// manager is attached to the store at boot.
func RequireToken(storeInstance *store.Store, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if storeInstance.TokenManager == nil {
			http.Error(w, "token manager unavailable", http.StatusServiceUnavailable)
			return
		}

		header := r.Header.Get("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		if _, err := storeInstance.TokenManager.ValidateToken(tokenStr); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}

// CORS answers preflight requests and stamps the permissive headers the
// shipboard web UI needs.
func CORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}
