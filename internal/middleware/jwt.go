package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/billpay/internal/auth"
)

// TokenVerifier checks a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// JWTAuth validates bearer access tokens. When accounts is set, user tokens
// whose account no longer exists are rejected.
func JWTAuth(tokens TokenVerifier, accounts auth.AccountLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		if accounts != nil && claims.Role != auth.RoleAdmin {
			ok, err := accounts.Exists(c.UserContext(), claims.Subject)
			if err != nil {
				return fiber.NewError(http.StatusInternalServerError, "account lookup failed")
			}
			if !ok {
				return fiber.NewError(http.StatusUnauthorized, "token invalidated")
			}
		}

		auth.SetIdentity(c, claims)
		return c.Next()
	}
}

// RequireRole rejects callers whose token does not carry role.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if auth.Role(c) != role {
			return fiber.NewError(http.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}
