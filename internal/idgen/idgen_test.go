package idgen

import (
	"strings"
	"testing"
)

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("req_")

	if !strings.HasPrefix(id, "req_") {
		t.Errorf("Expected req_ prefix, got %q", id)
	}
	if len(id) != len("req_")+24 {
		t.Errorf("Expected 24 hex chars after prefix, got %q", id)
	}
	for _, r := range id[len("req_"):] {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("Non-hex character %q in %q", r, id)
		}
	}
}

func TestWithPrefixUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := WithPrefix("evt_")
		if seen[id] {
			t.Fatalf("Duplicate ID generated: %q", id)
		}
		seen[id] = true
	}
}
