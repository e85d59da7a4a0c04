package billing

import "errors"

var (
	// ErrInvalidOperation marks a charge request that is malformed before any
	// balance is consulted, such as a zero or negative cost.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrSubscriptionInactive marks a charge against a paused or removed
	// subscription. The balance is never touched in this case.
	ErrSubscriptionInactive = errors.New("subscription not active")

	// ErrChargeUnreconciled means a debit was taken but the matching ledger
	// append failed and the compensating credit failed too. The balance and
	// the ledger have diverged by one charge and need operator attention.
	ErrChargeUnreconciled = errors.New("charge not reconciled")
)
