package appsec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRecoveryStore(t *testing.T) (*RecoveryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRecoveryStore(client), mr
}

func TestRecoveryCodeConsume(t *testing.T) {
	store, _ := newTestRecoveryStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "app1", "alice", "u-1", "12345678", time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	userID, err := store.Consume(ctx, "app1", "alice", "12345678", 5)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if userID != "u-1" {
		t.Fatalf("userID = %q, want %q", userID, "u-1")
	}

	// Codes are single use.
	if _, err := store.Consume(ctx, "app1", "alice", "12345678", 5); !errors.Is(err, ErrRecoveryCodeInvalid) {
		t.Fatalf("second Consume error = %v, want ErrRecoveryCodeInvalid", err)
	}
}

func TestRecoveryCodeMismatchChargesAttempts(t *testing.T) {
	store, _ := newTestRecoveryStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "app1", "alice", "u-1", "12345678", time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := store.Consume(ctx, "app1", "alice", "00000000", 3); !errors.Is(err, ErrRecoveryCodeInvalid) {
			t.Fatalf("Consume error = %v, want ErrRecoveryCodeInvalid", err)
		}
	}

	// Attempts remain; the right code still works.
	userID, err := store.Consume(ctx, "app1", "alice", "12345678", 3)
	if err != nil {
		t.Fatalf("Consume failed after mismatches: %v", err)
	}
	if userID != "u-1" {
		t.Fatalf("userID = %q, want %q", userID, "u-1")
	}
}

func TestRecoveryCodeAttemptsExhausted(t *testing.T) {
	store, _ := newTestRecoveryStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "app1", "alice", "u-1", "12345678", time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := store.Consume(ctx, "app1", "alice", "00000000", 3); !errors.Is(err, ErrRecoveryCodeInvalid) {
			t.Fatalf("Consume error = %v, want ErrRecoveryCodeInvalid", err)
		}
	}

	// Record deleted after the attempt cap; even the right code fails.
	if _, err := store.Consume(ctx, "app1", "alice", "12345678", 3); !errors.Is(err, ErrRecoveryCodeInvalid) {
		t.Fatalf("Consume error = %v, want ErrRecoveryCodeInvalid", err)
	}
}

func TestRecoveryCodeExpires(t *testing.T) {
	store, mr := newTestRecoveryStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "app1", "alice", "u-1", "12345678", time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.Consume(ctx, "app1", "alice", "12345678", 5); !errors.Is(err, ErrRecoveryCodeInvalid) {
		t.Fatalf("Consume error = %v, want ErrRecoveryCodeInvalid", err)
	}
}

func TestRecoveryCodeUnknownAccount(t *testing.T) {
	store, _ := newTestRecoveryStore(t)
	if _, err := store.Consume(context.Background(), "app1", "nobody", "12345678", 5); !errors.Is(err, ErrRecoveryCodeInvalid) {
		t.Fatalf("Consume error = %v, want ErrRecoveryCodeInvalid", err)
	}
}

func TestRecoveryCodeReplacedBySecondSave(t *testing.T) {
	store, _ := newTestRecoveryStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "app1", "alice", "u-1", "11111111", time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, "app1", "alice", "u-1", "22222222", time.Minute); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	if _, err := store.Consume(ctx, "app1", "alice", "11111111", 5); !errors.Is(err, ErrRecoveryCodeInvalid) {
		t.Fatalf("old code error = %v, want ErrRecoveryCodeInvalid", err)
	}
	// The mismatch above charged one attempt against the new record.
	if _, err := store.Consume(ctx, "app1", "alice", "22222222", 5); err != nil {
		t.Fatalf("new code Consume failed: %v", err)
	}
}

func TestRecoveryStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRecoveryStore(client)
	mr.Close()

	err := store.Save(context.Background(), "app1", "alice", "u-1", "12345678", time.Minute)
	if !errors.Is(err, ErrRecoveryUnavailable) {
		t.Fatalf("Save error = %v, want ErrRecoveryUnavailable", err)
	}
	if _, err := store.Consume(context.Background(), "app1", "alice", "12345678", 5); !errors.Is(err, ErrRecoveryUnavailable) {
		t.Fatalf("Consume error = %v, want ErrRecoveryUnavailable", err)
	}
}
