package utils

import (
	"kyc-verification-server/models"

	"github.com/google/uuid"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

const userIDKey = "userID"

// UserIDFromTokenMiddleware extracts the user ID from the verified access token
// and stores it in the request values.
func UserIDFromTokenMiddleware(ctx iris.Context) {
	claims, ok := jwt.Get(ctx).(*AccessToken)
	if !ok {
		JSONError(ctx, iris.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	id, err := claims.UserID()
	if err != nil {
		JSONError(ctx, iris.StatusUnauthorized, "unauthorized", "invalid token subject")
		return
	}
	ctx.Values().Set(userIDKey, id)
	ctx.Next()
}

// AdminOnlyMiddleware ensures the requester has the admin role.
func AdminOnlyMiddleware(ctx iris.Context) {
	claims, ok := jwt.Get(ctx).(*AccessToken)
	if !ok || claims.Role != models.RoleAdmin {
		JSONError(ctx, iris.StatusForbidden, "forbidden", "admin access required")
		return
	}
	id, err := claims.UserID()
	if err != nil {
		JSONError(ctx, iris.StatusUnauthorized, "unauthorized", "invalid token subject")
		return
	}
	// Ensure userID is available to downstream handlers
	ctx.Values().Set(userIDKey, id)
	ctx.Next()
}

// CurrentUserID returns the id stored by one of the middlewares above.
func CurrentUserID(ctx iris.Context) uuid.UUID {
	id, _ := ctx.Values().Get(userIDKey).(uuid.UUID)
	return id
}
