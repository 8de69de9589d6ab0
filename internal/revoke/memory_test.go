package revoke

import (
	"context"
	"testing"
	"time"
)

func TestRevokeIsOneDirectional(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryWithClock(func() time.Time { return now })
	ctx := context.Background()

	revoked, err := store.IsRevoked(ctx, "tok-1")
	if err != nil || revoked {
		t.Fatalf("fresh token reported revoked=%v err=%v", revoked, err)
	}

	if err := store.Revoke(ctx, "tok-1", now.Add(time.Hour)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	// Revoking twice is a no-op.
	if err := store.Revoke(ctx, "tok-1", now.Add(2*time.Hour)); err != nil {
		t.Fatalf("Revoke twice: %v", err)
	}

	revoked, err = store.IsRevoked(ctx, "tok-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got revoked=%v err=%v", revoked, err)
	}

	// Other tokens stay usable.
	if revoked, _ := store.IsRevoked(ctx, "tok-2"); revoked {
		t.Fatal("unrelated token reported revoked")
	}
}

func TestEntriesAreInertAfterNaturalExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryWithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := store.Revoke(ctx, "tok-1", now.Add(time.Minute)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	now = now.Add(2 * time.Minute)
	revoked, err := store.IsRevoked(ctx, "tok-1")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if revoked {
		t.Fatal("entry should be inert after natural expiry even before any sweep")
	}
}

func TestSweepExpiredBoundsStorage(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryWithClock(func() time.Time { return now })
	ctx := context.Background()

	_ = store.Revoke(ctx, "stale-1", now.Add(-time.Minute))
	_ = store.Revoke(ctx, "stale-2", now.Add(-time.Hour))
	_ = store.Revoke(ctx, "live", now.Add(time.Hour))

	deleted, err := store.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted entries, got %d", deleted)
	}

	if revoked, _ := store.IsRevoked(ctx, "live"); !revoked {
		t.Fatal("live revocation lost by sweep")
	}
}
