package deliveries

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the HMAC of the request body. It is omitted
// entirely when the webhook has no secret configured.
const SignatureHeader = "X-Webhook-Signature"

// Sign computes the hex HMAC-SHA256 of body keyed with secret.
func Sign(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify recomputes the signature and compares it in constant time. Intended
// for receivers validating inbound webhooks.
func Verify(secret string, body []byte, signature string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
