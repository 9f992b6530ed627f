// Package gateway integrates the external card/mobile-money payment
// gateway: transaction initialization and webhook authentication.
package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// VerifySignature authenticates a webhook delivery. The signature is the
// hex HMAC-SHA512 of the raw request body under the shared secret,
// carried in the X-Signature header. The MAC is computed over the exact
// bytes received; re-serializing the JSON first would break verification.
// Malformed or missing signatures verify as false, never as an error.
func VerifySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)

	return hmac.Equal(provided, mac.Sum(nil))
}

// Sign computes the hex HMAC-SHA512 signature for a payload. Used by
// tests and by tooling that replays webhooks.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
