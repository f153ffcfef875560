package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"formflow-backend/internal/engine"
	"formflow-backend/internal/metadata"
)

// AuthMiddleware returns a Fiber middleware that validates JWT tokens
// and sets the UserContext on the request.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return engine.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return engine.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}
		id, err := claims.UserID()
		if err != nil {
			return engine.UnauthorizedError("Invalid token subject")
		}

		c.Locals("user", &metadata.UserContext{ID: id, Admin: claims.Admin})
		return c.Next()
	}
}

// RequireAdmin is a Fiber middleware that checks the authenticated user has the admin flag.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := engine.GetUser(c)
		if user == nil {
			return engine.UnauthorizedError("Missing auth token")
		}
		if !user.IsAdmin() {
			return engine.ForbiddenError("Admin access required")
		}
		return c.Next()
	}
}
