package httpapi

import (
	"encoding/json"
	"net/http"

	"watchgate/internal/auth"
	"watchgate/internal/utils"
)

type loginRequest struct {
	Password string `json:"password"`
}

// handleLogin exchanges the ops password for a short-lived JWT.
func (d *Dependencies) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if d.Config.OpsPasswordHash == "" {
		utils.RespondWithError(w, http.StatusForbidden, "Login is disabled, OPS_PASSWORD_HASH is not set")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Password == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Password is required")
		return
	}

	valid, err := utils.VerifyPasswordArgon2(req.Password, d.Config.OpsPasswordHash)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error verifying password")
		return
	}
	if !valid {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid password")
		return
	}

	token, exp, err := auth.GenerateJWT("ops", d.Config)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error generating token: "+err.Error())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"exp":   exp,
	})
}

// handleHealth reports process and database health.
func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	status := map[string]interface{}{
		"status":  "ok",
		"backend": d.Config.StoreBackend,
	}
	if d.DB != nil {
		if err := d.DB.Health(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			utils.RespondWithJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	utils.RespondWithJSON(w, http.StatusOK, status)
}
