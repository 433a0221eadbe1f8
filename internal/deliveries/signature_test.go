package deliveries

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		body   string
		want   string
	}{
		{
			name:   "Known vector",
			secret: "abc",
			body:   `{"x":1}`,
			want:   "151244191e9fd3d055f407d2825d287f860ad89417a2dcd414fff80158ff976a",
		},
		{
			name:   "Empty body",
			secret: "abc",
			body:   "",
			want:   hmacHex("abc", ""),
		},
		{
			name:   "Empty secret still produces a digest",
			secret: "",
			body:   `{"x":1}`,
			want:   hmacHex("", `{"x":1}`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sign(tt.secret, []byte(tt.body)))
		})
	}
}

func TestSignDeterministic(t *testing.T) {
	body := []byte(`{"eventType":"session.completed"}`)
	first := Sign("secret-key", body)
	second := Sign("secret-key", body)
	assert.Equal(t, first, second)

	// Independent HMAC computation reproduces the signature
	assert.Equal(t, hmacHex("secret-key", string(body)), first)
}

func TestVerify(t *testing.T) {
	body := []byte(`{"x":1}`)
	sig := Sign("abc", body)

	assert.True(t, Verify("abc", body, sig))
	assert.False(t, Verify("wrong-secret", body, sig))
	assert.False(t, Verify("abc", []byte(`{"x":2}`), sig))
	assert.False(t, Verify("abc", body, "deadbeef"))
}

// hmacHex computes HMAC-SHA256 without going through Sign.
func hmacHex(secret, body string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}
