package rest

import (
	"context"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/service"
	"github.com/google/uuid"
)

type ctxKeyAuth struct{}

type AuthContext struct {
	UserID uuid.UUID
	Role   string
	Ver    int64
}

func (a AuthContext) Actor() service.Actor {
	return service.Actor{UserID: a.UserID, Role: a.Role}
}

func withAuth(ctx context.Context, a AuthContext) context.Context {
	return context.WithValue(ctx, ctxKeyAuth{}, a)
}

func GetAuth(ctx context.Context) (AuthContext, bool) {
	a, ok := ctx.Value(ctxKeyAuth{}).(AuthContext)
	if !ok || a.UserID == uuid.Nil {
		return AuthContext{}, false
	}
	return a, true
}
