package storage

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"collab-api/domain"
)

// AppendMessage persists a chat message to the project's history. The
// message must be durable before any broadcast; the broker calls this first
// and suppresses the fan-out on error. A zero CreatedAt and empty ID are
// filled in here.
func (s *Storage) AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = nextTimestamp()
	}
	data, err := json.Marshal(&msg)
	if err != nil {
		return domain.Message{}, err
	}
	err = s.rc.ZAdd(ctx, messagesKey(msg.Project), redis.Z{
		Score:  float64(msg.CreatedAt.UnixNano()),
		Member: data,
	}).Err()
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// FetchMessages returns the full chat history for a project, oldest first.
// This is the authoritative re-fetch path for clients that missed realtime
// deliveries while disconnected.
func (s *Storage) FetchMessages(ctx context.Context, projectID string) ([]domain.Message, error) {
	raw, err := s.rc.ZRange(ctx, messagesKey(projectID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(raw))
	for _, r := range raw {
		var m domain.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
