package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

func DigestHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestWithPrefix returns "sha256:<hex>".
func DigestWithPrefix(data []byte) string {
	return "sha256:" + DigestHex(data)
}

// DigestJSON canonicalizes v through its JSON form and digests the result.
func DigestJSON(v any) (string, error) {
	canonical, err := CanonicalizeJSON(v)
	if err != nil {
		return "", err
	}
	return DigestWithPrefix(canonical), nil
}
