package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"watchgate/internal/storage"
	"watchgate/internal/utils"
)

type walletRequest struct {
	SubscriberID string          `json:"subscriber_id"`
	Amount       decimal.Decimal `json:"amount"`
}

func decodeWalletRequest(w http.ResponseWriter, r *http.Request) (*walletRequest, bool) {
	var req walletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	if req.SubscriberID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "subscriber_id is required")
		return nil, false
	}
	if req.Amount.Sign() <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "amount must be positive")
		return nil, false
	}
	return &req, true
}

// handleDeposit credits a subscriber's balance.
func (d *Dependencies) handleDeposit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	req, ok := decodeWalletRequest(w, r)
	if !ok {
		return
	}

	balance, err := d.Balances.Credit(r.Context(), req.SubscriberID, req.Amount)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error crediting balance: "+err.Error())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"subscriber_id": req.SubscriberID,
		"balance":       balance,
	})
}

// handleWithdraw debits a subscriber's balance. Withdrawals never overdraw.
func (d *Dependencies) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	req, ok := decodeWalletRequest(w, r)
	if !ok {
		return
	}

	balance, err := d.Balances.Debit(r.Context(), req.SubscriberID, req.Amount)
	if errors.Is(err, storage.ErrInsufficientBalance) {
		utils.RespondWithError(w, http.StatusPaymentRequired, "Insufficient balance")
		return
	}
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error debiting balance: "+err.Error())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"subscriber_id": req.SubscriberID,
		"balance":       balance,
	})
}

// handleBalance reports a subscriber's balance and estimated runway.
func (d *Dependencies) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	subscriberID := r.URL.Query().Get("subscriber_id")
	if subscriberID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "subscriber_id is required")
		return
	}

	balance, err := d.Balances.Balance(r.Context(), subscriberID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error reading balance: "+err.Error())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"subscriber_id":       subscriberID,
		"balance":             balance,
		"estimated_days_left": d.Controller.RunwayDays(balance),
	})
}
