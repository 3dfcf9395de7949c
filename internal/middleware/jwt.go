// Package middleware contains the echo middleware of the HTTP surface:
// bearer authentication, role checks, rate limiting and the Redis
// response cache.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-sales-engine/internal/utils"
)

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"kind": "Unauthenticated", "message": msg})
}

// JWTAuth validates a Bearer access token signed with secret and stores
// the caller's Identity in the context.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return unauthorized(c, "missing bearer token")
			}
			claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return unauthorized(c, "invalid token")
			}
			userID, err := strconv.ParseUint(claims.Subject, 10, 64)
			if err != nil || userID == 0 {
				return unauthorized(c, "invalid subject")
			}
			switch claims.Role {
			case RoleBusiness, RoleClient:
			default:
				return unauthorized(c, "unknown role")
			}
			c.Set(identityKey, Identity{UserID: userID, Role: claims.Role, BranchID: claims.BranchID})
			return next(c)
		}
	}
}
