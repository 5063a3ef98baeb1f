package middleware

import (
	"context"

	"github.com/invertase/react-native-firebase/internal/session"
)

type contextKey string

const claimsKey = contextKey("claims")

func GetClaims(ctx context.Context) session.Claims {
	if c, ok := ctx.Value(claimsKey).(session.Claims); ok {
		return c
	}
	return session.Claims{}
}

func setClaimsContext(ctx context.Context, c session.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}
