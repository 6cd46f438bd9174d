package domain

import (
	"testing"
	"time"
)

func TestIdempotencyKey_DeterministicWithinBucket(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 30, 5, 0, time.UTC)

	k1 := IdempotencyKey("asha@example.com", base, time.Minute)
	k2 := IdempotencyKey("asha@example.com", base.Add(20*time.Second), time.Minute)
	if k1 != k2 {
		t.Fatalf("keys inside the same bucket differ: %s vs %s", k1, k2)
	}
	if len(k1) != 64 {
		t.Fatalf("expected hex sha256 (64 chars), got %d", len(k1))
	}
}

func TestIdempotencyKey_DiffersAcrossBuckets(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 30, 59, 0, time.UTC)

	k1 := IdempotencyKey("asha@example.com", base, time.Minute)
	k2 := IdempotencyKey("asha@example.com", base.Add(2*time.Second), time.Minute)
	if k1 == k2 {
		t.Fatal("keys across bucket boundary should differ")
	}
}

func TestIdempotencyKey_EmailNormalized(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	k1 := IdempotencyKey("Asha@Example.COM", at, time.Minute)
	k2 := IdempotencyKey("  asha@example.com ", at, time.Minute)
	if k1 != k2 {
		t.Fatal("email casing/whitespace should not change the key")
	}
}

func TestIdempotencyKey_DifferentEmailsIndependent(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	k1 := IdempotencyKey("a@example.com", at, time.Minute)
	k2 := IdempotencyKey("b@example.com", at, time.Minute)
	if k1 == k2 {
		t.Fatal("different emails must derive different keys")
	}
}

func TestIdempotencyKey_ZeroGranularityDefaults(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 30, 30, 0, time.UTC)

	k1 := IdempotencyKey("a@example.com", at, 0)
	k2 := IdempotencyKey("a@example.com", at, time.Minute)
	if k1 != k2 {
		t.Fatal("zero granularity should fall back to one minute")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail(" Asha@Example.COM "); got != "asha@example.com" {
		t.Fatalf("NormalizeEmail = %q", got)
	}
}
