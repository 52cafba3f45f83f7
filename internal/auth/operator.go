// Package auth issues and checks the bearer tokens that guard operator
// endpoints (manual settlement, sweeps).
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("authorization token required")
)

const operatorRole = "operator"

// OperatorClaims identifies the operator a token was issued to.
type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Operators signs and validates HS256 operator tokens.
type Operators struct {
	secretKey []byte
}

func NewOperators(secretKey string) *Operators {
	return &Operators{secretKey: []byte(secretKey)}
}

// Enabled reports whether a signing secret is configured. Without one every
// token is rejected.
func (o *Operators) Enabled() bool {
	return len(o.secretKey) > 0
}

// Issue creates a token for subject valid for ttl.
func (o *Operators) Issue(subject string, ttl time.Duration) (string, error) {
	if !o.Enabled() {
		return "", errors.New("operator secret is not configured")
	}

	now := time.Now()
	claims := &OperatorClaims{
		Role: operatorRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(o.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses a token and returns its claims if it is a valid operator token.
func (o *Operators) Validate(tokenString string) (*OperatorClaims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	if !o.Enabled() {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&OperatorClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return o.secretKey, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid || claims.Role != operatorRole {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
