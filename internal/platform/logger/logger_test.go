package logger

import "testing"

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"stripe_signature", "t=1,v1=abc",
		"cron_secret", "hunter2",
		"path", "/api/analyses",
	})
	if len(out) != 6 {
		t.Fatalf("unexpected length: %d", len(out))
	}
	if out[1] != "[REDACTED]" || out[3] != "[REDACTED]" {
		t.Fatalf("secrets not redacted: %#v", out)
	}
	if out[5] != "/api/analyses" {
		t.Fatalf("plain value altered: %#v", out[5])
	}
}

func TestSanitizeKVsHashesUserID(t *testing.T) {
	out := sanitizeKVs([]interface{}{"user_id", "0b8a5a4e-3c6f-4a55-8f39-0d5d2a9c6f11"})
	got, ok := out[1].(string)
	if !ok || len(got) != len("hash:")+12 || got[:5] != "hash:" {
		t.Fatalf("user_id not hashed: %#v", out[1])
	}
}

func TestSanitizeKVsOddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"path", "/x", "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("dangling key dropped: %#v", out)
	}
}

func TestLooksLikeJWT(t *testing.T) {
	if !looksLikeJWT("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxMjM0NTY3ODkwIn0.sig") {
		t.Fatalf("expected jwt")
	}
	if looksLikeJWT("aluminum.steel.glass") {
		t.Fatalf("short segments should not look like a jwt")
	}
}
