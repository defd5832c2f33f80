package docs

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"docvault-backend/internal/auth"
	"docvault-backend/internal/authz"
	"docvault-backend/internal/store"
)

// Gate is the request-time authorization middleware: authenticate (done
// upstream), resolve the target resource, build the permission query, and
// let the engine decide. Outcomes stay distinct: missing resource is 404,
// a denied check is 403, anything unexpected is 500.
type Gate struct {
	resolver *Resolver
	checker  authz.Checker
	tenant   string
}

func NewGate(resolver *Resolver, checker authz.Checker, tenant string) *Gate {
	return &Gate{resolver: resolver, checker: checker, tenant: tenant}
}

// Require returns a Fiber middleware gating the route's action on the
// resource denoted by the :id parameter. On allow, the resolved resource is
// attached to the request for the protected handler.
func (g *Gate) Require(action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal := auth.GetPrincipal(c)
		if principal == nil {
			return authz.UnauthorizedError("Authentication required")
		}

		id := c.Params("id")
		if id == "" {
			return authz.NewAppError("INVALID_PAYLOAD", 400, "Missing resource id")
		}

		resource, err := g.resolver.Resolve(c.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			return authz.NotFoundError("Resource not found")
		}
		if err != nil {
			log.Printf("ERROR: resolve resource %s: %v", id, err)
			return authz.InternalError("Internal server error")
		}

		ref, err := resource.InstanceRef(g.tenant)
		if err != nil {
			log.Printf("ERROR: build instance ref for %s: %v", id, err)
			return authz.InternalError("Internal server error")
		}

		allowed, err := g.checker.Check(c.Context(), principal.Key, action, ref)
		if err != nil {
			log.Printf("ERROR: permission check %s %s on %s:%s: %v", principal.Key, action, ref.Type, ref.Key, err)
			return authz.InternalError("Internal server error")
		}
		if !allowed {
			return authz.ForbiddenError("Access denied")
		}

		c.Locals("resource", resource)
		return c.Next()
	}
}

// GetResource extracts the resolved resource attached by Require.
func GetResource(c *fiber.Ctx) *Resource {
	res, _ := c.Locals("resource").(*Resource)
	return res
}
