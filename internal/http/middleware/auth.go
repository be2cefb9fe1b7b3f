package middleware

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"

	"mediagate/internal/auth"
	"mediagate/internal/model"
)

const (
	// SubjectLocalKey holds the authenticated account id.
	SubjectLocalKey = "auth_subject"
	// RoleLocalKey holds the authenticated account role.
	RoleLocalKey = "auth_role"
)

// SessionValidator validates bearer session tokens.
type SessionValidator interface {
	ValidateSession(token string) (*auth.Claims, error)
}

// Authenticate requires a valid "Authorization: Bearer" session token
// whose role is one of roles. A missing or invalid token yields 401, a
// valid token with another role yields 403.
func Authenticate(tokens SessionValidator, roles ...model.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "access token required")
		}

		claims, err := tokens.ValidateSession(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}
		if len(roles) > 0 && !slices.Contains(roles, claims.Role) {
			return fiber.NewError(fiber.StatusForbidden, "insufficient role")
		}

		c.Locals(SubjectLocalKey, claims.Subject)
		c.Locals(RoleLocalKey, claims.Role)
		return c.Next()
	}
}

// Subject returns the account id set by Authenticate, or "".
func Subject(c *fiber.Ctx) string {
	s, _ := c.Locals(SubjectLocalKey).(string)
	return s
}

// Role returns the account role set by Authenticate, or "".
func Role(c *fiber.Ctx) model.Role {
	r, _ := c.Locals(RoleLocalKey).(model.Role)
	return r
}

func bearerToken(header string) (string, bool) {
	scheme, tok, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
