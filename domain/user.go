package domain

// User mirrors the account collection owned by the auth/profile service.
// This service only reads it to resolve display names.
type User struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Bio    string   `json:"bio,omitempty"`
	GitHub string   `json:"github,omitempty"`
	Skills []string `json:"skills,omitempty"`
}
