package domain

import "time"

// Message is one chat entry in a project room. Messages are append-only and
// ordered by creation time ascending. The sender name is denormalized so
// history can render without a user lookup.
type Message struct {
	ID         string    `json:"id"`
	Project    string    `json:"project"`
	Sender     string    `json:"sender"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}
