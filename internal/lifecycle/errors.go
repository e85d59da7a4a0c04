package lifecycle

import "errors"

var (
	// ErrInsufficientStartBalance is returned when a subscriber tries to
	// start or resume a watch without the minimum balance on deposit.
	ErrInsufficientStartBalance = errors.New("balance below minimum to start watching")

	// ErrAlreadyWatching is returned when the subscriber already has an
	// active watch on the topic.
	ErrAlreadyWatching = errors.New("already watching topic")

	// ErrSubscriptionRemoved is returned when an operation targets a watch
	// the subscriber has explicitly removed. Removed watches can only be
	// recreated through Subscribe.
	ErrSubscriptionRemoved = errors.New("subscription removed")
)
