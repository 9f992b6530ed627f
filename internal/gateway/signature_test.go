package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	secret := "sk_test_abc123"
	body := []byte(`{"event":"charge.success","data":{"reference":"DEP01XYZ","amount":10250}}`)

	t.Run("accepts valid signature", func(t *testing.T) {
		assert.True(t, VerifySignature(body, Sign(body, secret), secret))
	})

	t.Run("rejects tampered body", func(t *testing.T) {
		sig := Sign(body, secret)
		tampered := []byte(`{"event":"charge.success","data":{"reference":"DEP01XYZ","amount":99999}}`)
		assert.False(t, VerifySignature(tampered, sig, secret))
	})

	t.Run("rejects wrong secret", func(t *testing.T) {
		assert.False(t, VerifySignature(body, Sign(body, "sk_test_other"), secret))
	})

	t.Run("rejects missing signature", func(t *testing.T) {
		assert.False(t, VerifySignature(body, "", secret))
	})

	t.Run("rejects non-hex signature without error", func(t *testing.T) {
		assert.False(t, VerifySignature(body, "not-hex-at-all!", secret))
	})

	t.Run("re-serialized body does not verify", func(t *testing.T) {
		sig := Sign(body, secret)
		reserialized := []byte(`{"data":{"amount":10250,"reference":"DEP01XYZ"},"event":"charge.success"}`)
		assert.False(t, VerifySignature(reserialized, sig, secret))
	})
}
