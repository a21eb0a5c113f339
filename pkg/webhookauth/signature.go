package webhookauth

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// ComputeSignature returns the hex HMAC-SHA512 of the exact raw body bytes.
// The gateway signs the payload it sends with the shared secret; any
// re-serialization of the JSON (whitespace, key order) produces a different
// signature, which is the point: we authenticate bytes, not parsed content.
func ComputeSignature(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifySignature recomputes the signature and compares it in constant time.
func verifySignature(secret string, body []byte, claimed string) bool {
	if claimed == "" {
		return false
	}
	expected := ComputeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(claimed))
}
