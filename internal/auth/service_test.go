package auth

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formhive/webhook-service/internal/config"
)

func testService() *Service {
	return NewService(nil, &config.Config{
		JWTSecret:    "test-jwt-secret",
		APIKeySecret: "test-api-key-secret",
	})
}

func TestPasswordHashRoundTrip(t *testing.T) {
	s := testService()

	hash, err := s.hashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.Contains(t, hash, ":")
	assert.NotContains(t, hash, "correct horse")

	valid, err := s.verifyPassword("correct horse battery staple", hash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = s.verifyPassword("wrong password", hash)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestPasswordHashIsSalted(t *testing.T) {
	s := testService()

	first, err := s.hashPassword("same password")
	require.NoError(t, err)
	second, err := s.hashPassword("same password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "same password must hash differently per salt")
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	s := testService()

	_, err := s.verifyPassword("anything", "not-a-valid-hash")
	assert.Error(t, err)
}

func TestUserTokenRoundTrip(t *testing.T) {
	s := testService()
	u := &user{ID: uuid.New(), Email: "user@example.com"}

	token, err := s.generateUserToken(u)
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(token, ".")))

	claims, err := s.ValidateUserToken(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, u.Email, claims.Email)
}

func TestValidateUserTokenRejectsTampering(t *testing.T) {
	s := testService()
	u := &user{ID: uuid.New(), Email: "user@example.com"}

	token, err := s.generateUserToken(u)
	require.NoError(t, err)

	_, err = s.ValidateUserToken(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewService(nil, &config.Config{JWTSecret: "different-secret"})
	_, err = other.ValidateUserToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHashAPIKeyDeterministic(t *testing.T) {
	s := testService()

	first := s.hashAPIKey("some-api-key")
	second := s.hashAPIKey("some-api-key")
	assert.Equal(t, first, second)
	assert.Len(t, first, 64) // sha256 hex

	// the keyed hash depends on the server-side secret
	other := NewService(nil, &config.Config{APIKeySecret: "another-secret"})
	assert.NotEqual(t, first, other.hashAPIKey("some-api-key"))
}

func TestValidateScopes(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		want   bool
	}{
		{"All valid", []string{"webhooks:manage", "deliveries:read"}, true},
		{"Single valid", []string{"events:write"}, true},
		{"Empty is valid", nil, true},
		{"Unknown scope", []string{"webhooks:manage", "admin:everything"}, false},
		{"Typo", []string{"webhook:manage"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateScopes(tt.scopes))
		})
	}
}
