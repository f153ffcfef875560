package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"formflow-backend/internal/engine"
	"formflow-backend/internal/metadata"
)

// ErrInvalidCredentials covers every login or refresh failure so callers
// cannot tell which part was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthHandler handles token endpoints.
type AuthHandler struct {
	directory *Directory
	jwtSecret string
	logger    *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(d *Directory, jwtSecret string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{directory: d, jwtSecret: jwtSecret, logger: logger}
}

// Login handles POST /api/token.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError("Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return engine.UnauthorizedError("Email and password are required")
	}

	user, err := h.directory.Authenticate(c.UserContext(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return engine.UnauthorizedError("Invalid email or password")
		}
		return engine.TranslateError(err)
	}

	pair, err := h.issue(c, user)
	if err != nil {
		return err
	}
	h.logger.Info("user logged in", zap.Int64("user_id", user.ID))
	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/token/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError("Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	user, err := h.directory.ConsumeRefreshToken(c.UserContext(), body.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return engine.UnauthorizedError("Invalid or expired refresh token")
		}
		return engine.TranslateError(err)
	}

	pair, err := h.issue(c, user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/token/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError("Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	if err := h.directory.RevokeRefreshToken(c.UserContext(), body.RefreshToken); err != nil {
		return engine.TranslateError(err)
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// RegisterAuthRoutes registers token routes on the given Fiber app.
func RegisterAuthRoutes(app *fiber.App, h *AuthHandler) {
	app.Post("/api/token", h.Login)
	token := app.Group("/api/token")
	token.Post("/refresh", h.Refresh)
	token.Post("/logout", h.Logout)
}

func (h *AuthHandler) issue(c *fiber.Ctx, user *metadata.User) (*TokenPair, error) {
	access, err := GenerateAccessToken(user.ID, user.IsAdmin, h.jwtSecret)
	if err != nil {
		return nil, engine.NewAppError(engine.CodeInternal, 500, "Failed to generate access token")
	}
	refresh, err := h.directory.IssueRefreshToken(c.UserContext(), user.ID)
	if err != nil {
		return nil, engine.TranslateError(err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}
