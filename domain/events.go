package domain

import "encoding/json"

// Realtime frame types. Client-to-server frames carry room membership and
// chat sends; server-to-client frames carry persisted entities. Delivery is
// best-effort at-most-once; the HTTP mutation response, not the socket echo,
// is the acknowledgement.
const (
	EventJoinUserRoom = "join_user_room"
	EventJoinProject  = "join_project"
	EventSendMessage  = "send_message"

	EventReceiveMessage  = "receive_message"
	EventNewNotification = "new_notification"
)

// Frame is the wire envelope for both directions of the realtime channel.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinUserRoomData subscribes the socket to its own private room.
type JoinUserRoomData struct {
	UserID string `json:"userId"`
}

// JoinProjectData subscribes the socket to a project room.
type JoinProjectData struct {
	ProjectID string `json:"projectId"`
}

// SendMessageData is the client chat payload. ID is a client-generated
// idempotency key; a retry with the same id is persisted at most once.
type SendMessageData struct {
	ID         string `json:"id,omitempty"`
	ProjectID  string `json:"projectId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
}

// UserRoom and ProjectRoom name the broker rooms for an id. Room names are
// also the Redis channel suffixes used by the fan-out relay.
func UserRoom(userID string) string       { return "user:" + userID }
func ProjectRoom(projectID string) string { return "project:" + projectID }
