package domain

import "time"

// Application is a request to join a project, embedded in the project
// document. The applicant name is denormalized for display.
type Application struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Name      string    `json:"name"`
	Skills    []string  `json:"skills"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Member is a resolved team member reference.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Project is the unit of consistency: the board, the applications and the
// membership all live in one document and are mutated together. Revision
// increases by one on every successful board or membership mutation.
type Project struct {
	ID             string        `json:"id"`
	Owner          string        `json:"owner"`
	OwnerName      string        `json:"ownerName,omitempty"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	RequiredSkills []string      `json:"requiredSkills"`
	TeamMembers    []Member      `json:"teamMembers"`
	Applications   []Application `json:"applications"`
	Kanban         Board         `json:"kanban"`
	Revision       int64         `json:"revision"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// IsMember reports whether the user is the owner or on the team.
func (p *Project) IsMember(userID string) bool {
	if p.Owner == userID {
		return true
	}
	for _, m := range p.TeamMembers {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// HasApplied reports whether the user already has a pending application.
func (p *Project) HasApplied(userID string) bool {
	for _, a := range p.Applications {
		if a.User == userID {
			return true
		}
	}
	return false
}
