package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateValidateRoundTrip(t *testing.T) {
	svc := NewJWTService("secret-1", 24)
	userID := uuid.New()
	tenantID := uuid.New()

	token, err := svc.Generate(userID, tenantID, "Ada", "admin")
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, tenantID, claims.TenantID)
	assert.Equal(t, "Ada", claims.Name)
	assert.Equal(t, "admin", claims.Role)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-1", 24).Generate(uuid.New(), uuid.New(), "Ada", "member")
	require.NoError(t, err)

	_, err = NewJWTService("secret-2", 24).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := NewJWTService("secret-1", -1)
	token, err := svc.Generate(uuid.New(), uuid.New(), "Ada", "member")
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsGarbage(t *testing.T) {
	_, err := NewJWTService("secret-1", 24).Validate("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
