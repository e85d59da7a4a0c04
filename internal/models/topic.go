package models

import (
	"time"
)

// Topic is an independently monitored subject. The set of subscribers active
// on a topic is derived from the subscriptions table, not stored here.
type Topic struct {
	ID        string    `db:"id" json:"id"`
	Question  string    `db:"question" json:"question"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
