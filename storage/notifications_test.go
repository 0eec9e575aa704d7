package storage

import (
	"context"
	"testing"
)

func TestNotificationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateNotification(ctx, "alice", "Bob applied to your project: P", "/projects/p1")
	if err != nil {
		t.Fatalf("create notification: %v", err)
	}
	if first.Read {
		t.Fatal("notifications must be created unread")
	}
	second, err := s.CreateNotification(ctx, "alice", "Carol applied to your project: P", "/projects/p1")
	if err != nil {
		t.Fatalf("create notification: %v", err)
	}

	unread, err := s.ListUnread(ctx, "alice")
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(unread) != 2 {
		t.Fatalf("expected 2 unread, got %d", len(unread))
	}
	// Newest first.
	if unread[0].ID != second.ID || unread[1].ID != first.ID {
		t.Fatalf("expected newest first, got %#v", unread)
	}

	if err := s.MarkAllRead(ctx, "alice"); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	unread, err = s.ListUnread(ctx, "alice")
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(unread) != 0 {
		t.Fatalf("expected no unread after mark all read, got %d", len(unread))
	}

	// A fresh notification yields exactly one unread item.
	if _, err := s.CreateNotification(ctx, "alice", "Dave applied", "/projects/p1"); err != nil {
		t.Fatalf("create notification: %v", err)
	}
	unread, err = s.ListUnread(ctx, "alice")
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(unread) != 1 {
		t.Fatalf("expected exactly 1 unread, got %d", len(unread))
	}
}

func TestMarkAllReadIsScopedToRecipient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateNotification(ctx, "alice", "m", "/l"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateNotification(ctx, "bob", "m", "/l"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.MarkAllRead(ctx, "alice"); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	unread, err := s.ListUnread(ctx, "bob")
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(unread) != 1 {
		t.Fatalf("bob's notifications must be untouched, got %d", len(unread))
	}
}

func TestMarkAllReadEmptyIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.MarkAllRead(context.Background(), "nobody"); err != nil {
		t.Fatalf("mark all read on empty ledger: %v", err)
	}
}
