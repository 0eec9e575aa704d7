package api

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestDeduper(t *testing.T, ttl time.Duration) (*RedisDeduper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return NewRedisDeduper(rc, ttl), mr
}

func TestDeduperAddOnce(t *testing.T) {
	d, _ := newTestDeduper(t, time.Hour)
	ctx := context.Background()

	added, err := d.Add(ctx, "p1", "msg-1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added {
		t.Fatal("first add should report new")
	}

	added, err = d.Add(ctx, "p1", "msg-1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added {
		t.Fatal("duplicate add should report existing")
	}

	// Same id under a different project is a distinct key.
	added, err = d.Add(ctx, "p2", "msg-1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added {
		t.Fatal("same id in another project should be new")
	}
}

func TestDeduperRemoveAllowsRetry(t *testing.T) {
	d, _ := newTestDeduper(t, time.Hour)
	ctx := context.Background()

	if _, err := d.Add(ctx, "p1", "msg-1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := d.Remove(ctx, "p1", "msg-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	added, err := d.Add(ctx, "p1", "msg-1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added {
		t.Fatal("add after remove should report new")
	}
}

func TestDeduperKeysExpire(t *testing.T) {
	d, mr := newTestDeduper(t, time.Minute)
	ctx := context.Background()

	if _, err := d.Add(ctx, "p1", "msg-1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	added, err := d.Add(ctx, "p1", "msg-1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added {
		t.Fatal("expired key should allow a new add")
	}
}
