package middleware

import (
	"net/http"
	"strings"

	"auction-engine/internal/domain"

	"github.com/labstack/echo/v4"
)

const userKey = "user"

type Authenticator interface {
	Authenticate(token string) (domain.UserHandle, error)
}

// JWTAuth checks the Bearer token on each request and stores the caller's handle
// in the context for CurrentUser.
func JWTAuth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(header, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token", "code": domain.Code(domain.ErrUnauthorized)})
			}

			user, err := auth.Authenticate(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token", "code": domain.Code(domain.ErrUnauthorized)})
			}

			c.Set(userKey, user)
			return next(c)
		}
	}
}

// RequireRole lets the request through only when JWTAuth has run and the caller
// holds one of roles.
func RequireRole(roles ...domain.Role) echo.MiddlewareFunc {
	allowed := make(map[domain.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := CurrentUser(c)
			if !ok || !allowed[user.Role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "code": domain.Code(domain.ErrForbidden)})
			}
			return next(c)
		}
	}
}

func CurrentUser(c echo.Context) (domain.UserHandle, bool) {
	user, ok := c.Get(userKey).(domain.UserHandle)
	return user, ok
}
