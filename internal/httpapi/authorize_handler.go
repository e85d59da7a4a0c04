package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"watchgate/internal/billing"
	"watchgate/internal/models"
	"watchgate/internal/storage"
	"watchgate/internal/utils"
)

type authorizeRequest struct {
	SubscriberID string `json:"subscriber_id"`
	TopicID      string `json:"topic_id"`
	Kind         string `json:"kind"`
}

// handleAuthorize runs the check-and-debit for one metered operation. A
// denial pauses the watch and returns 402 with the decision attached; the
// caller must not perform the operation.
func (d *Dependencies) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SubscriberID == "" || req.TopicID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "subscriber_id and topic_id are required")
		return
	}
	kind := models.OperationKind(req.Kind)
	if kind == models.OpRecurringFee {
		// Recurring fees belong to the scheduler, not the API.
		utils.RespondWithError(w, http.StatusBadRequest, "kind recurring_fee cannot be requested")
		return
	}

	decision, err := d.Gate.Authorize(r.Context(), req.SubscriberID, req.TopicID, kind, d.Config.Pricing.MeteredCallCost)
	switch {
	case errors.Is(err, billing.ErrInvalidOperation):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, billing.ErrSubscriptionInactive):
		utils.RespondWithError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, storage.ErrSubscriptionNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Watch not found")
		return
	case err != nil:
		utils.RespondWithError(w, http.StatusInternalServerError, "Error authorizing charge: "+err.Error())
		return
	}

	if !decision.Authorized {
		if err := d.Controller.HandleDenied(r.Context(), req.SubscriberID, req.TopicID, decision); err != nil {
			d.logger.Error("failed to pause watch after denial",
				"subscriber", req.SubscriberID,
				"topic", req.TopicID,
				"error", err)
		}
		utils.RespondWithJSON(w, http.StatusPaymentRequired, decision)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, decision)
}
