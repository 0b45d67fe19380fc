package keyhash

import (
	"strings"
	"testing"
)

func TestSumDeterministic(t *testing.T) {
	a := Sum("salt-1", "rk_live_abc")
	b := Sum("salt-1", "rk_live_abc")
	if a != b {
		t.Fatalf("same inputs produced different digests: %q vs %q", a, b)
	}
}

func TestSumShape(t *testing.T) {
	d := Sum("salt", "rk_test_x")
	if len(d) != 64 {
		t.Fatalf("expected 64 hex chars, got %d (%q)", len(d), d)
	}
	if d != strings.ToLower(d) {
		t.Fatalf("digest not lowercase: %q", d)
	}
	for _, c := range d {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("non-hex char %q in digest %q", c, d)
		}
	}
}

func TestSumKeyed(t *testing.T) {
	if Sum("salt-a", "rk_live_x") == Sum("salt-b", "rk_live_x") {
		t.Fatal("different salts must produce different digests")
	}
	if Sum("salt", "rk_live_x") == Sum("salt", "rk_live_y") {
		t.Fatal("different keys must produce different digests")
	}
}

// Pinned vector so a refactor cannot silently change the digest and
// orphan every stored key_hash.
func TestSumKnownVector(t *testing.T) {
	// HMAC-SHA256 with empty key and empty message (RFC 4231 derivable).
	const empty = "b613679a0814d9ec772f95d778c35fc5ff1697c493715653c6c712144292c5ad"
	if got := Sum("", ""); got != empty {
		t.Fatalf("empty-input digest drifted: got %q want %q", got, empty)
	}
}
