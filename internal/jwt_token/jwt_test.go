package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "discard/pkg/domain"
	dErrors "discard/pkg/domain-errors"
)

var (
	jwtService = NewJWTService("test-signing-key", "test-issuer")
	userID     = id.UserID(uuid.New())
)

func Test_GenerateAndValidate(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(userID, time.Hour)
	require.NoError(t, err)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)

	adapted, err := NewValidator(jwtService).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, claims.ID, adapted.JTI)
}

func Test_ValidateToken_Rejections(t *testing.T) {
	expired, err := jwtService.GenerateAccessToken(userID, -time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewJWTService("test-signing-key", "someone-else").GenerateAccessToken(userID, time.Hour)
	require.NoError(t, err)

	otherKey, err := NewJWTService("another-key", "test-issuer").GenerateAccessToken(userID, time.Hour)
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "not-a-uuid",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "test-issuer"},
	}).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	tests := map[string]struct {
		token string
		msg   string
	}{
		"garbage":      {"invalid-token-string", "invalid token"},
		"expired":      {expired, "token has expired"},
		"wrong issuer": {otherIssuer, "invalid token"},
		"wrong key":    {otherKey, "invalid token"},
		"bad subject":  {badSubject, "invalid token subject"},
		"missing exp":  {noExpiry, "invalid token"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := jwtService.ValidateToken(tt.token)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}
