package api

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"collab-api/domain"
)

// channelPrefix namespaces the Redis channels carrying room events.
const channelPrefix = "room:"

// Hub is the realtime broker. It owns ephemeral room membership only:
// sockets join per-user and per-project rooms for the lifetime of their
// connection, and events reach the hub through Redis pub/sub after the
// triggering write has been persisted. The hub keeps no durable event log;
// a disconnected socket misses events until it re-fetches history.
type Hub struct {
	rc     *redis.Client
	logger *log.Logger

	mu    sync.Mutex
	rooms map[string]map[*socket]struct{}
}

// NewHub creates a Hub using the provided Redis client for event transport.
func NewHub(rc *redis.Client, logger *log.Logger) *Hub {
	return &Hub{
		rc:     rc,
		logger: logger,
		rooms:  make(map[string]map[*socket]struct{}),
	}
}

// Publish sends a frame to every socket in the room. The caller must have
// persisted the underlying entity first; an error here means the event was
// not published and the caller should not assume any delivery.
func (h *Hub) Publish(ctx context.Context, room string, frame domain.Frame) error {
	payload, err := sonic.ConfigStd.Marshal(frame)
	if err != nil {
		return err
	}
	return h.rc.Publish(ctx, channelPrefix+room, payload).Err()
}

// Run relays room events from Redis to local sockets until ctx is done.
// The pattern subscription survives transient connection loss.
func (h *Hub) Run(ctx context.Context) {
	for {
		sub := h.rc.PSubscribe(ctx, channelPrefix+"*")
		ch := sub.Channel()
		for msg := range ch {
			room := strings.TrimPrefix(msg.Channel, channelPrefix)
			h.broadcast(room, []byte(msg.Payload))
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		h.logger.Error("room relay channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

func (h *Hub) join(room string, s *socket) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*socket]struct{})
		h.rooms[room] = members
	}
	members[s] = struct{}{}
}

// drop removes the socket from every room. Membership is session-scoped;
// nothing is remembered for a reconnect.
func (h *Hub) drop(s *socket) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, members := range h.rooms {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// broadcast fans the payload out to the room best-effort. A socket whose
// send buffer is full is dropped rather than applying backpressure: a slow
// consumer re-fetches authoritative state on reconnect.
func (h *Hub) broadcast(room string, payload []byte) {
	h.mu.Lock()
	var stalled []*socket
	for s := range h.rooms[room] {
		select {
		case s.send <- payload:
		default:
			stalled = append(stalled, s)
		}
	}
	h.mu.Unlock()

	for _, s := range stalled {
		h.logger.WithField("room", room).Warn("dropping slow realtime consumer")
		s.close()
		h.drop(s)
	}
}

// memberCount reports the current size of a room. Used by tests.
func (h *Hub) memberCount(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}
