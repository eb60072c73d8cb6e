package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, time.Hour), mr
}

func TestCreateLookupRevoke(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	sid, err := store.Create(ctx, 42)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ttl := mr.TTL(key(sid)); ttl != time.Hour {
		t.Errorf("expected 1h ttl, got %v", ttl)
	}

	userID, err := store.Lookup(ctx, sid)
	if err != nil || userID != 42 {
		t.Fatalf("Lookup: user=%d err=%v", userID, err)
	}

	if err := store.Revoke(ctx, sid); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := store.Lookup(ctx, sid); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession after revoke, got %v", err)
	}
	if err := store.Revoke(ctx, sid); err != nil {
		t.Errorf("revoking twice should be harmless, got %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	sid, _ := store.Create(ctx, 1)
	mr.FastForward(2 * time.Hour)
	if _, err := store.Lookup(ctx, sid); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession after expiry, got %v", err)
	}
}

func TestLookupCorruptValue(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	mr.Set(key("bad"), "not-a-number")
	if _, err := store.Lookup(ctx, "bad"); err == nil || errors.Is(err, ErrNoSession) {
		t.Errorf("expected corrupt session error, got %v", err)
	}
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	client.Close()

	addr := mr.Addr()
	mr.Close()
	if _, err := Connect(context.Background(), addr, "", 0); err == nil {
		t.Error("expected error connecting to a stopped server")
	}
}
