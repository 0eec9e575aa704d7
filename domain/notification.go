package domain

import "time"

// Notification is a durable per-user event record. Created unread; the only
// mutation is the bulk mark-all-read transition.
type Notification struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Message   string    `json:"message"`
	Link      string    `json:"link"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}
