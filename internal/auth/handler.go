package auth

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"docvault-backend/internal/authz"
	"docvault-backend/internal/policy"
	"docvault-backend/internal/store"
)

// Handler handles registration and login. Registration synchronizes the new
// account into the policy namespace so attribute rules can see it.
type Handler struct {
	store     *store.Store
	policy    *policy.Service
	jwtSecret string
}

func NewHandler(s *store.Store, p *policy.Service, jwtSecret string) *Handler {
	return &Handler{store: s, policy: p, jwtSecret: jwtSecret}
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(c *fiber.Ctx) error {
	var body struct {
		Email          string `json:"email"`
		Password       string `json:"password"`
		Department     string `json:"department"`
		Classification string `json:"classification"`
	}
	if err := c.BodyParser(&body); err != nil {
		return authz.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Email == "" || body.Password == "" || body.Department == "" {
		return authz.NewAppError("INVALID_PAYLOAD", 400, "Missing required fields")
	}
	if body.Classification == "" {
		body.Classification = "regular"
	}

	hash, err := HashPassword(body.Password)
	if err != nil {
		return authz.InternalError("Failed to process password")
	}

	ctx := c.Context()
	_, err = store.Exec(ctx, h.store.DB,
		`INSERT INTO _users (email, password_hash, department, classification)
		 VALUES ($1, $2, $3, $4)`,
		body.Email, hash, body.Department, body.Classification)
	if err != nil {
		if errors.Is(h.store.MapError(err), store.ErrUniqueViolation) {
			return authz.ConflictError("Account already exists")
		}
		log.Printf("ERROR: insert user %s: %v", body.Email, err)
		return authz.InternalError("Failed to create account")
	}

	// The user row is the source of truth; a failed sync here is repaired on
	// the next login, which re-syncs the account.
	if err := h.policy.SyncUser(ctx, body.Email, map[string]any{
		"department":     body.Department,
		"classification": body.Classification,
	}); err != nil {
		log.Printf("ERROR: sync user %s into policy namespace: %v", body.Email, err)
		return authz.InternalError("Account created but policy sync failed")
	}

	return c.Status(201).JSON(fiber.Map{"message": "User registered successfully"})
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return authz.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return authz.UnauthorizedError("Email and password are required")
	}

	ctx := c.Context()
	user, err := h.findUserByEmail(ctx, body.Email)
	if err != nil {
		return authz.UnauthorizedError("Invalid email or password")
	}

	passwordHash, _ := user["password_hash"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		return authz.UnauthorizedError("Invalid email or password")
	}

	department, _ := user["department"].(string)
	classification, _ := user["classification"].(string)

	// Re-sync on every login so an account whose registration-time sync
	// failed converges once the namespace is writable again. Login itself
	// does not depend on the sync succeeding.
	if err := h.policy.SyncUser(ctx, body.Email, map[string]any{
		"department":     department,
		"classification": classification,
	}); err != nil {
		log.Printf("ERROR: sync user %s into policy namespace: %v", body.Email, err)
	}

	token, err := GenerateToken(body.Email, department, classification, h.jwtSecret)
	if err != nil {
		return authz.InternalError("Failed to generate token")
	}

	return c.JSON(fiber.Map{"token": token, "department": department})
}

// RegisterRoutes registers auth routes on the given Fiber app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	grp := app.Group("/api/auth")
	grp.Post("/register", h.Register)
	grp.Post("/login", h.Login)
}

func (h *Handler) findUserByEmail(ctx context.Context, email string) (map[string]any, error) {
	return store.QueryRow(ctx, h.store.DB,
		"SELECT email, password_hash, department, classification FROM _users WHERE email = $1", email)
}
