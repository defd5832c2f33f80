package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"docvault-backend/internal/authz"
)

// Principal is the verified identity set on the request by Middleware.
type Principal struct {
	Key            string `json:"key"`
	Department     string `json:"department"`
	Classification string `json:"classification"`
}

// Attributes returns the principal's attribute map as policy rules see it.
func (p *Principal) Attributes() map[string]any {
	return map[string]any{
		"department":     p.Department,
		"classification": p.Classification,
	}
}

// Middleware returns a Fiber middleware that validates bearer tokens and
// sets the Principal on the request. Any credential failure terminates the
// request with an unauthorized outcome.
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return authz.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return authz.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseToken(parts[1], secret)
		if err != nil {
			return authz.UnauthorizedError("Invalid or expired token")
		}

		c.Locals("principal", &Principal{
			Key:            claims.Subject,
			Department:     claims.Department,
			Classification: claims.Classification,
		})

		return c.Next()
	}
}

// GetPrincipal extracts the Principal from a Fiber context.
func GetPrincipal(c *fiber.Ctx) *Principal {
	p, _ := c.Locals("principal").(*Principal)
	return p
}
