package domain

import "time"

// Task is a single board item. Content and position are the only things
// that change after creation; position changes go through Board.MoveTask.
type Task struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	CreatedBy  string    `json:"createdBy"`
	AuthorName string    `json:"authorName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
