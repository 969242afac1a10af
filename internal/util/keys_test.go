package util

import (
	"strings"
	"testing"
)

func TestEntryKeyIsStableAndScoped(t *testing.T) {
	a := EntryKey("entry:app", "v1", "GET https://example.com/index.html")
	b := EntryKey("entry:app", "v1", "GET https://example.com/index.html")
	if a != b {
		t.Fatalf("key not stable: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "entry:app:v1:") || len(a) != len("entry:app:v1:")+16 {
		t.Fatalf("unexpected shape: %q", a)
	}
	if c := EntryKey("entry:app", "v2", "GET https://example.com/index.html"); c == a {
		t.Fatalf("generations must not share keys")
	}
	if d := EntryKey("entry:app", "v1", "GET https://example.com/app.css"); d == a {
		t.Fatalf("identities must not share keys")
	}
}
