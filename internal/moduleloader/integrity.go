package moduleloader

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
)

// VerifyIntegrity checks data against a subresource-integrity-style string
// of the form "sha256-<base64>" or "sha384-<base64>"/"sha512-<base64>". An
// empty expected value is treated as "no integrity pinned" and always
// passes — callers that require pinning must check ManifestEntry.Pinned
// separately.
//
// The standard library has no SRI parser, but crypto/sha256,
// crypto/sha512, and crypto/subtle.ConstantTimeCompare cover the entire
// need; no pack repo imports a dedicated SRI library, so this is the
// correct place to stay on stdlib rather than reach for a dependency that
// exists nowhere in the corpus.
func VerifyIntegrity(data []byte, expected string) error {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return nil
	}
	algo, encoded, ok := strings.Cut(expected, "-")
	if !ok {
		return fmt.Errorf("moduleloader: malformed integrity string %q", expected)
	}
	want, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("moduleloader: malformed integrity encoding: %w", err)
	}

	var got []byte
	switch algo {
	case "sha256":
		sum := sha256.Sum256(data)
		got = sum[:]
	case "sha384":
		sum := sha512.Sum384(data)
		got = sum[:]
	case "sha512":
		sum := sha512.Sum512(data)
		got = sum[:]
	default:
		return fmt.Errorf("moduleloader: unsupported integrity algorithm %q", algo)
	}

	if subtle.ConstantTimeCompare(got, want) != 1 {
		return fmt.Errorf("moduleloader: integrity mismatch for algorithm %s", algo)
	}
	return nil
}
