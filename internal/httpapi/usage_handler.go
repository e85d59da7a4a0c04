package httpapi

import (
	"net/http"

	"watchgate/internal/utils"
)

// handleUsage reports usage totals. With topic_id it returns the pair's
// summary and per-kind counts; without it, the subscriber's totals across
// all topics.
func (d *Dependencies) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	subscriberID := r.URL.Query().Get("subscriber_id")
	if subscriberID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "subscriber_id is required")
		return
	}

	topicID := r.URL.Query().Get("topic_id")
	if topicID == "" {
		totals, err := d.Ledger.SubscriberTotals(r.Context(), subscriberID)
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Error reading usage: "+err.Error())
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, totals)
		return
	}

	summary, err := d.Ledger.Summary(r.Context(), subscriberID, topicID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error reading usage: "+err.Error())
		return
	}
	counts, err := d.Ledger.CountsByKind(r.Context(), subscriberID, topicID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error reading usage: "+err.Error())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"summary":        summary,
		"counts_by_kind": counts,
	})
}

// handleTopics lists the topic catalog.
func (d *Dependencies) handleTopics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	topics, err := d.Topics.List(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error listing topics: "+err.Error())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"topics": topics})
}

// handleSchedulerTopics lists topics with a running fee task.
func (d *Dependencies) handleSchedulerTopics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"topics": d.Supervisor.Topics(),
	})
}

// handleDeadLetter lists undeliverable notifications.
func (d *Dependencies) handleDeadLetter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if d.DeadLetter == nil {
		utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"items": []interface{}{}})
		return
	}
	items, err := d.DeadLetter.List(r.Context(), 100)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error listing dead letters: "+err.Error())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}
