package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"collab-api/domain"
)

// CreateNotification persists a new unread notification for the recipient.
// Notification creation is a best-effort side effect of other operations;
// callers log and swallow errors rather than failing the parent request.
func (s *Storage) CreateNotification(ctx context.Context, recipientID, message, link string) (domain.Notification, error) {
	n := domain.Notification{
		ID:        uuid.NewString(),
		User:      recipientID,
		Message:   message,
		Link:      link,
		Read:      false,
		CreatedAt: nextTimestamp(),
	}
	data, err := json.Marshal(&n)
	if err != nil {
		return domain.Notification{}, err
	}
	_, err = s.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, notificationKey(n.ID), data, 0)
		pipe.ZAdd(ctx, unreadKey(recipientID), redis.Z{Score: float64(n.CreatedAt.UnixNano()), Member: n.ID})
		return nil
	})
	if err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

// ListUnread returns the recipient's unread notifications, newest first.
func (s *Storage) ListUnread(ctx context.Context, recipientID string) ([]domain.Notification, error) {
	ids, err := s.rc.ZRevRange(ctx, unreadKey(recipientID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = notificationKey(id)
	}
	vals, err := s.rc.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var n domain.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkAllRead flips every unread notification for the recipient to read in
// one transaction. Either all pending rows transition or none do; a
// notification created concurrently aborts and retries the transaction via
// the watched unread index.
func (s *Storage) MarkAllRead(ctx context.Context, recipientID string) error {
	key := unreadKey(recipientID)
	for i := 0; i < casRetries; i++ {
		err := s.rc.Watch(ctx, func(tx *redis.Tx) error {
			ids, err := tx.ZRange(ctx, key, 0, -1).Result()
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return nil
			}
			keys := make([]string, len(ids))
			for i, id := range ids {
				keys[i] = notificationKey(id)
			}
			vals, err := tx.MGet(ctx, keys...).Result()
			if err != nil {
				return err
			}
			updated := make(map[string][]byte, len(vals))
			for i, v := range vals {
				raw, ok := v.(string)
				if !ok {
					continue
				}
				var n domain.Notification
				if err := json.Unmarshal([]byte(raw), &n); err != nil {
					return err
				}
				n.Read = true
				data, err := json.Marshal(&n)
				if err != nil {
					return err
				}
				updated[keys[i]] = data
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for k, data := range updated {
					pipe.Set(ctx, k, data, 0)
				}
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errors.New("mark notifications read: write contention")
}
