package api

import (
	"context"

	"collab-api/domain"
)

// ProjectStore is the authoritative board store and task mutation engine.
// Mutation results are authoritative: clients reconcile their optimistic
// state to the returned revision, never the other way around.
type ProjectStore interface {
	CreateProject(ctx context.Context, ownerID, title, description string, requiredSkills []string) (domain.Project, error)
	ListProjects(ctx context.Context) ([]domain.Project, error)
	FetchProject(ctx context.Context, id string) (domain.Project, error)
	Apply(ctx context.Context, projectID, userID, userName, message string, skills []string) (domain.Project, error)
	ResolveApplication(ctx context.Context, projectID, applicationID, requesterID string, accept bool) (domain.Project, error)
	AddTask(ctx context.Context, projectID, columnID, content, authorID string) (domain.Task, int64, error)
	MoveTask(ctx context.Context, projectID, taskID, sourceColumnID, destColumnID string, destIndex int, ifRevision int64) (int64, error)
	DeleteTask(ctx context.Context, projectID, columnID, taskID string, ifRevision int64) (int64, error)
}

// MessageStore persists chat history. Persistence happens before broadcast;
// a failed append suppresses the fan-out.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
	FetchMessages(ctx context.Context, projectID string) ([]domain.Message, error)
}

// NotificationStore is the durable per-user notification ledger.
type NotificationStore interface {
	CreateNotification(ctx context.Context, recipientID, message, link string) (domain.Notification, error)
	ListUnread(ctx context.Context, recipientID string) ([]domain.Notification, error)
	MarkAllRead(ctx context.Context, recipientID string) error
}

// Storage aggregates the persistence surface the handlers need.
type Storage interface {
	ProjectStore
	MessageStore
	NotificationStore
}

// Identity is the authenticated caller, extracted from the bearer token and
// passed explicitly into every handler. There is no ambient request user.
type Identity struct {
	ID   string
	Name string
}

// Authenticator is implemented by types able to extract identities from
// Authorization headers.
type Authenticator interface {
	IdentityFromAuthHeader(string) (Identity, error)
}

// Publisher fans an event out to every socket in a room. Delivery is
// best-effort at-most-once; an error means the event was not published, not
// that it was not delivered.
type Publisher interface {
	Publish(ctx context.Context, room string, frame domain.Frame) error
}

// Deduper prevents re-persisting retried chat messages.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, projectID, key string) (bool, error)
	// Remove deletes a previously added key, used when persistence fails.
	Remove(ctx context.Context, projectID, key string) error
}
