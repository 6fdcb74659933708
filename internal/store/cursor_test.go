package store

import "testing"

func TestCursorRoundTrip(t *testing.T) {
	for _, key := range []string{"usr_123", "grp/with/slashes", "ключ", "a"} {
		token := EncodeCursor(key)
		if token == "" {
			t.Fatalf("empty token for %q", key)
		}
		got, err := DecodeCursor(token)
		if err != nil {
			t.Fatalf("decode %q: %v", token, err)
		}
		if got != key {
			t.Fatalf("round trip: got %q, want %q", got, key)
		}
	}
}

func TestCursorEmpty(t *testing.T) {
	if EncodeCursor("") != "" {
		t.Fatal("empty key must produce empty token")
	}
	got, err := DecodeCursor("")
	if err != nil || got != "" {
		t.Fatalf("empty token must decode to empty key, got %q, %v", got, err)
	}
}

func TestCursorInvalid(t *testing.T) {
	if _, err := DecodeCursor("!!!not-base64!!!"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}
