package revocation

import (
	"context"
	"testing"
	"time"
)

func TestMemorySetAndLookup(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	revoked, err := m.IsRevoked(ctx, "unknown")
	if err != nil || revoked {
		t.Fatalf("IsRevoked(unknown) = %v, %v", revoked, err)
	}

	if err := m.SetRevoked(ctx, "jti-1", time.Minute); err != nil {
		t.Fatal(err)
	}
	revoked, err = m.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("IsRevoked(jti-1) = %v, %v, want true", revoked, err)
	}
}

func TestMemoryEntriesExpire(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.SetRevoked(ctx, "short", 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	revoked, err := m.IsRevoked(ctx, "short")
	if err != nil || revoked {
		t.Fatalf("entry should have expired, got %v, %v", revoked, err)
	}
}

func TestMemoryNonPositiveTTLIsNoop(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.SetRevoked(ctx, "dead", -time.Second); err != nil {
		t.Fatal(err)
	}
	revoked, _ := m.IsRevoked(ctx, "dead")
	if revoked {
		t.Fatal("expired token should not be recorded")
	}
}
