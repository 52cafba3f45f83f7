package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatorTokens(t *testing.T) {
	ops := NewOperators("test-secret")

	token, err := ops.Issue("ops@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := ops.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)

	_, err = NewOperators("other-secret").Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ops.Validate("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestOperatorTokenExpired(t *testing.T) {
	ops := NewOperators("test-secret")
	token, err := ops.Issue("ops", -time.Minute)
	require.NoError(t, err)

	_, err = ops.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestOperatorTokenWrongRole(t *testing.T) {
	claims := &OperatorClaims{
		Role:             "user",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = NewOperators("test-secret").Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestOperatorsDisabled(t *testing.T) {
	ops := NewOperators("")
	assert.False(t, ops.Enabled())

	_, err := ops.Issue("ops", time.Hour)
	assert.Error(t, err)
	_, err = ops.Validate("anything")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
