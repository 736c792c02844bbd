package moduleloader

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func sriFor(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256-" + base64.StdEncoding.EncodeToString(sum[:])
}

func TestVerifyIntegrity_EmptyExpectedAlwaysPasses(t *testing.T) {
	if err := VerifyIntegrity([]byte("anything"), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifyIntegrity_MatchingDigestPasses(t *testing.T) {
	data := []byte("export default function Widget() {}")
	if err := VerifyIntegrity(data, sriFor(data)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifyIntegrity_MismatchFails(t *testing.T) {
	data := []byte("export default function Widget() {}")
	tampered := []byte("export default function Evil() {}")
	if err := VerifyIntegrity(tampered, sriFor(data)); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestVerifyIntegrity_MalformedStringFails(t *testing.T) {
	if err := VerifyIntegrity([]byte("x"), "not-a-valid-sri-string-at-all"); err == nil {
		t.Fatalf("expected malformed error")
	}
}

func TestVerifyIntegrity_UnsupportedAlgorithmFails(t *testing.T) {
	if err := VerifyIntegrity([]byte("x"), "md5-deadbeef"); err == nil {
		t.Fatalf("expected unsupported algorithm error")
	}
}
