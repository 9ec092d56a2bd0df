package idempotency

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	got, err := store.Get(ctx, "absent")
	if err != nil || got != nil {
		t.Fatalf("expected miss, got %#v, %v", got, err)
	}

	rec := Record{
		StatusCode: 201,
		Response:   []byte(`{"gameId":1}`),
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  time.Now().Add(time.Minute).UTC(),
	}
	if err := store.Save(ctx, "start-1", rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err = store.Get(ctx, "start-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.StatusCode != 201 || string(got.Response) != `{"gameId":1}` {
		t.Fatalf("unexpected record: %#v", got)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := Record{
		StatusCode: 201,
		Response:   []byte("stale"),
		CreatedAt:  time.Now().Add(-2 * time.Hour).UTC(),
		ExpiresAt:  time.Now().Add(-time.Hour).UTC(),
	}
	if err := store.Save(ctx, "old", rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "old")
	if err != nil || got != nil {
		t.Fatalf("expired record should read as a miss, got %#v, %v", got, err)
	}
}
