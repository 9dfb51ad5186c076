package utils

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret")
	userID := uuid.New().String()

	token, err := svc.GenerateToken(userID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	extracted, err := svc.ExtractUserID(token)
	require.NoError(t, err)
	assert.Equal(t, userID, extracted)
}

func TestTokenWithWrongSecretRejected(t *testing.T) {
	token, err := NewJWTService("secret-a").GenerateToken(uuid.New().String())
	require.NoError(t, err)

	_, err = NewJWTService("secret-b").ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenWithWrongSigningMethodRejected(t *testing.T) {
	// Токен с alg=none не должен проходить проверку
	claims := jwt.MapClaims{"user_id": uuid.New().String()}
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewJWTService("test-secret").ValidateToken(token)
	assert.Error(t, err)
}

func TestGarbageTokenRejected(t *testing.T) {
	_, err := NewJWTService("test-secret").ExtractUserID("not.a.token")
	assert.Error(t, err)
}
