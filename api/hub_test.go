package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"collab-api/domain"
)

func newTestHub(t *testing.T) (*Hub, context.Context) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	hub := NewHub(rc, log.New())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	waitForRelay(t, hub, ctx)
	return hub, ctx
}

// waitForRelay blocks until the hub's pattern subscription is receiving,
// so a test publish cannot race the subscriber setup.
func waitForRelay(t *testing.T, hub *Hub, ctx context.Context) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		n, err := hub.rc.Publish(ctx, channelPrefix+"warmup", "ping").Result()
		if err == nil && n > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("relay subscription never came up")
}

func recvFrame(t *testing.T, s *socket) domain.Frame {
	t.Helper()
	select {
	case payload := <-s.send:
		var frame domain.Frame
		if err := sonic.ConfigStd.Unmarshal(payload, &frame); err != nil {
			t.Fatalf("bad frame payload: %v", err)
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
		return domain.Frame{}
	}
}

func TestHubBroadcastsToRoomMembers(t *testing.T) {
	hub, ctx := newTestHub(t)

	s := &socket{send: make(chan []byte, 4)}
	hub.join(domain.ProjectRoom("p1"), s)

	if err := hub.Publish(ctx, domain.ProjectRoom("p1"), domain.Frame{Event: domain.EventReceiveMessage}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	frame := recvFrame(t, s)
	if frame.Event != domain.EventReceiveMessage {
		t.Fatalf("unexpected event: %s", frame.Event)
	}
}

func TestHubScopesRooms(t *testing.T) {
	hub, ctx := newTestHub(t)

	alice := &socket{send: make(chan []byte, 4)}
	bob := &socket{send: make(chan []byte, 4)}
	hub.join(domain.UserRoom("alice"), alice)
	hub.join(domain.UserRoom("bob"), bob)

	if err := hub.Publish(ctx, domain.UserRoom("alice"), domain.Frame{Event: domain.EventNewNotification}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if frame := recvFrame(t, alice); frame.Event != domain.EventNewNotification {
		t.Fatalf("unexpected event: %s", frame.Event)
	}
	select {
	case payload := <-bob.send:
		t.Fatalf("event leaked into another user's room: %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubDropsSlowConsumer(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	hub := NewHub(rc, log.New())

	stalled := &socket{send: make(chan []byte)}
	healthy := &socket{send: make(chan []byte, 4)}
	hub.join("project:p1", stalled)
	hub.join("project:p1", healthy)

	hub.broadcast("project:p1", []byte(`{"event":"receive_message"}`))

	if got := hub.memberCount("project:p1"); got != 1 {
		t.Fatalf("expected stalled socket dropped, member count %d", got)
	}
	if _, ok := <-stalled.send; ok {
		t.Fatal("stalled socket's send channel should be closed")
	}
	if len(healthy.send) != 1 {
		t.Fatalf("healthy socket missed the broadcast")
	}
}

func TestHubDropRemovesFromAllRooms(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	hub := NewHub(rc, log.New())

	s := &socket{send: make(chan []byte, 1)}
	hub.join(domain.UserRoom("alice"), s)
	hub.join(domain.ProjectRoom("p1"), s)

	hub.drop(s)

	if hub.memberCount(domain.UserRoom("alice")) != 0 || hub.memberCount(domain.ProjectRoom("p1")) != 0 {
		t.Fatal("drop must leave no memberships behind")
	}
}

type mockDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMockDeduper() *mockDeduper {
	return &mockDeduper{seen: map[string]bool{}}
}

func (d *mockDeduper) Add(ctx context.Context, projectID, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := projectID + "/" + key
	if d.seen[k] {
		return false, nil
	}
	d.seen[k] = true
	return true, nil
}

func (d *mockDeduper) Remove(ctx context.Context, projectID, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, projectID+"/"+key)
	return nil
}

func dialSocket(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=a.b.c"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		defer resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := sonic.ConfigStd.Marshal(data)
	if err != nil {
		t.Fatalf("encode frame data: %v", err)
	}
	frame := domain.Frame{Event: event, Data: raw}
	payload, err := sonic.ConfigStd.Marshal(frame)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestSocketChatRoundTrip(t *testing.T) {
	hub, _ := newTestHub(t)
	store := newMockStore()
	deduper := newMockDeduper()

	e := echo.New()
	e.GET("/ws", serveSocket(hub, store, alice(), deduper, log.New()))
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	conn := dialSocket(t, server)
	sendFrame(t, conn, domain.EventJoinProject, domain.JoinProjectData{ProjectID: "p1"})

	// The read loop handles frames in order, but joining the room and the
	// relay delivering are async relative to this test goroutine.
	deadline := time.Now().Add(2 * time.Second)
	for hub.memberCount(domain.ProjectRoom("p1")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("socket never joined project room")
		}
		time.Sleep(10 * time.Millisecond)
	}

	sendFrame(t, conn, domain.EventSendMessage, domain.SendMessageData{
		ID:        "m1",
		ProjectID: "p1",
		Content:   "hello team",
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read echoed message: %v", err)
	}
	var frame domain.Frame
	if err := sonic.ConfigStd.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("bad frame: %v", err)
	}
	if frame.Event != domain.EventReceiveMessage {
		t.Fatalf("unexpected event: %s", frame.Event)
	}
	var msg domain.Message
	if err := sonic.ConfigStd.Unmarshal(frame.Data, &msg); err != nil {
		t.Fatalf("bad message payload: %v", err)
	}
	// The sender identity comes from the token, never the payload.
	if msg.Sender != "alice" || msg.SenderName != "Alice" {
		t.Fatalf("unexpected sender: %#v", msg)
	}
	if msg.Content != "hello team" {
		t.Fatalf("unexpected content: %q", msg.Content)
	}

	store.mu.Lock()
	persisted := len(store.messages)
	store.mu.Unlock()
	if persisted != 1 {
		t.Fatalf("expected message persisted before broadcast, got %d", persisted)
	}
}

func TestSocketDuplicateMessagePersistedOnce(t *testing.T) {
	hub, _ := newTestHub(t)
	store := newMockStore()
	deduper := newMockDeduper()

	e := echo.New()
	e.GET("/ws", serveSocket(hub, store, alice(), deduper, log.New()))
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	conn := dialSocket(t, server)
	sendFrame(t, conn, domain.EventJoinProject, domain.JoinProjectData{ProjectID: "p1"})

	deadline := time.Now().Add(2 * time.Second)
	for hub.memberCount(domain.ProjectRoom("p1")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("socket never joined project room")
		}
		time.Sleep(10 * time.Millisecond)
	}

	msg := domain.SendMessageData{ID: "m1", ProjectID: "p1", Content: "once"}
	sendFrame(t, conn, domain.EventSendMessage, msg)
	sendFrame(t, conn, domain.EventSendMessage, msg)

	// Exactly one echo comes back; the retry is silently absorbed.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read echoed message: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("duplicate message was broadcast")
	}

	store.mu.Lock()
	persisted := len(store.messages)
	store.mu.Unlock()
	if persisted != 1 {
		t.Fatalf("expected 1 persisted message, got %d", persisted)
	}
}

func TestSocketRefusesForeignUserRoom(t *testing.T) {
	hub, _ := newTestHub(t)
	store := newMockStore()

	e := echo.New()
	e.GET("/ws", serveSocket(hub, store, alice(), newMockDeduper(), log.New()))
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	conn := dialSocket(t, server)
	sendFrame(t, conn, domain.EventJoinUserRoom, domain.JoinUserRoomData{UserID: "bob"})
	sendFrame(t, conn, domain.EventJoinUserRoom, domain.JoinUserRoomData{UserID: "alice"})

	deadline := time.Now().Add(2 * time.Second)
	for hub.memberCount(domain.UserRoom("alice")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("socket never joined its own room")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if hub.memberCount(domain.UserRoom("bob")) != 0 {
		t.Fatal("socket joined another user's private room")
	}
}

func TestSocketRejectsUnauthenticated(t *testing.T) {
	hub, _ := newTestHub(t)

	e := echo.New()
	auth := mockAuth{err: errMissingAuthorization}
	e.GET("/ws", serveSocket(hub, newMockStore(), auth, newMockDeduper(), log.New()))
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake response, got %+v", resp)
	}
	if resp != nil {
		resp.Body.Close()
	}
}
