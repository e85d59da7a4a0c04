package storage

import "errors"

var (
	// ErrInsufficientBalance is returned when a debit would overdraw a balance
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrSubscriptionNotFound is returned when a (subscriber, topic) pair has no subscription
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrSubscriptionExists is returned when creating a subscription that already exists
	ErrSubscriptionExists = errors.New("subscription already exists")

	// ErrTopicNotFound is returned when a topic is not found
	ErrTopicNotFound = errors.New("topic not found")

	// ErrLedgerInconsistent is returned when a cached usage total diverges
	// from the sum of its records; the offending append is rolled back
	ErrLedgerInconsistent = errors.New("usage ledger total diverged from records")
)
