package httpapi

import (
	"net/http"
	"strings"

	"watchgate/internal/auth"
	"watchgate/internal/utils"
)

// requireAuth guards an endpoint with a bearer JWT obtained from /auth/login.
func (d *Dependencies) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			utils.RespondWithError(w, http.StatusUnauthorized, "Authorization header must be a bearer token")
			return
		}
		if _, err := auth.ValidateJWT(token, d.Config); err != nil {
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		next(w, r)
	}
}
