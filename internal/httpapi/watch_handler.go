package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"watchgate/internal/lifecycle"
	"watchgate/internal/storage"
	"watchgate/internal/utils"
)

type watchRequest struct {
	SubscriberID string `json:"subscriber_id"`
	TopicID      string `json:"topic_id"`
	Question     string `json:"question,omitempty"`
}

func decodeWatchRequest(w http.ResponseWriter, r *http.Request) (*watchRequest, bool) {
	var req watchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	if req.SubscriberID == "" || req.TopicID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "subscriber_id and topic_id are required")
		return nil, false
	}
	return &req, true
}

// handleWatch starts a watch on a topic and makes sure the fee scheduler
// covers it.
func (d *Dependencies) handleWatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	req, ok := decodeWatchRequest(w, r)
	if !ok {
		return
	}

	sub, err := d.Controller.Subscribe(r.Context(), req.SubscriberID, req.TopicID, req.Question)
	switch {
	case errors.Is(err, lifecycle.ErrInsufficientStartBalance):
		utils.RespondWithError(w, http.StatusPaymentRequired, err.Error())
		return
	case errors.Is(err, lifecycle.ErrAlreadyWatching):
		utils.RespondWithError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		utils.RespondWithError(w, http.StatusInternalServerError, "Error creating watch: "+err.Error())
		return
	}

	d.Supervisor.StartTopic(r.Context(), req.TopicID)
	utils.RespondWithJSON(w, http.StatusCreated, sub)
}

// handleUnwatch stops a watch.
func (d *Dependencies) handleUnwatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	req, ok := decodeWatchRequest(w, r)
	if !ok {
		return
	}

	err := d.Controller.Remove(r.Context(), req.SubscriberID, req.TopicID)
	switch {
	case errors.Is(err, storage.ErrSubscriptionNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Watch not found")
		return
	case err != nil:
		utils.RespondWithError(w, http.StatusInternalServerError, "Error removing watch: "+err.Error())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"subscriber_id": req.SubscriberID,
		"topic_id":      req.TopicID,
		"state":         "removed",
	})
}

// handleResume reactivates a paused watch.
func (d *Dependencies) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	req, ok := decodeWatchRequest(w, r)
	if !ok {
		return
	}

	sub, err := d.Controller.Resume(r.Context(), req.SubscriberID, req.TopicID)
	switch {
	case errors.Is(err, storage.ErrSubscriptionNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Watch not found")
		return
	case errors.Is(err, lifecycle.ErrInsufficientStartBalance):
		utils.RespondWithError(w, http.StatusPaymentRequired, err.Error())
		return
	case errors.Is(err, lifecycle.ErrSubscriptionRemoved):
		utils.RespondWithError(w, http.StatusGone, err.Error())
		return
	case err != nil:
		utils.RespondWithError(w, http.StatusInternalServerError, "Error resuming watch: "+err.Error())
		return
	}

	d.Supervisor.StartTopic(r.Context(), req.TopicID)
	utils.RespondWithJSON(w, http.StatusOK, sub)
}

// handleSubscriptions lists a subscriber's watches in every state.
func (d *Dependencies) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	subscriberID := r.URL.Query().Get("subscriber_id")
	if subscriberID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "subscriber_id is required")
		return
	}

	subs, err := d.Subscriptions.ListBySubscriber(r.Context(), subscriberID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error listing watches: "+err.Error())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"subscriber_id": subscriberID,
		"subscriptions": subs,
	})
}
