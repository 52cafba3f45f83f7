package ctxkeys

import (
	"context"

	"github.com/templui/goalstake/internal/auth"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	OperatorKey  contextKey = "operator"
	RequestIDKey contextKey = "request_id"
)

func Operator(ctx context.Context) *auth.OperatorClaims {
	claims, _ := ctx.Value(OperatorKey).(*auth.OperatorClaims)
	return claims
}

func WithOperator(ctx context.Context, claims *auth.OperatorClaims) context.Context {
	return context.WithValue(ctx, OperatorKey, claims)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
