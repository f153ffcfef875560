package admin

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"formflow-backend/internal/auth"
	"formflow-backend/internal/engine"
	"formflow-backend/internal/metadata"
	"formflow-backend/internal/store"
)

type Handler struct {
	forms     *engine.FormRegistry
	directory *auth.Directory
}

func NewHandler(forms *engine.FormRegistry, directory *auth.Directory) *Handler {
	return &Handler{forms: forms, directory: directory}
}

// RegisterAdminRoutes mounts form, role and user management. authMW guards
// every route; adminMW additionally guards directory writes.
func RegisterAdminRoutes(app *fiber.App, h *Handler, authMW, adminMW fiber.Handler) {
	forms := app.Group("/api/forms", authMW)
	forms.Get("/", h.ListForms)
	forms.Post("/", h.CreateForm)
	forms.Get("/:id", h.GetForm)
	forms.Put("/:id", h.UpdateForm)
	forms.Delete("/:id", h.DeleteForm)

	roles := app.Group("/api/roles", authMW)
	roles.Get("/", h.ListRoles)
	roles.Post("/", adminMW, h.CreateRole)
	roles.Get("/:id", h.GetRole)
	roles.Put("/:id", adminMW, h.UpdateRole)
	roles.Delete("/:id", adminMW, h.DeleteRole)

	users := app.Group("/api/users", authMW)
	users.Get("/", adminMW, h.ListUsers)
	users.Post("/", adminMW, h.CreateUser)
	users.Get("/me", h.Me)
	users.Get("/:id", h.GetUser)
	users.Put("/:id", adminMW, h.UpdateUser)
	users.Delete("/:id", adminMW, h.DeleteUser)

	app.Get("/api/admin", authMW, adminMW, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "Admin access granted"})
	})
}

// --- Form Endpoints ---

type formBody struct {
	Name        string            `json:"name"`
	Fields      metadata.FieldMap `json:"fields"`
	Description string            `json:"description"`
}

func (h *Handler) ListForms(c *fiber.Ctx) error {
	forms, err := h.forms.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": forms})
}

func (h *Handler) GetForm(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	form, err := h.forms.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": form})
}

func (h *Handler) CreateForm(c *fiber.Ctx) error {
	user := engine.GetUser(c)
	var body formBody
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body: " + err.Error())
	}

	form, err := h.forms.Define(c.UserContext(), body.Name, body.Fields, user.ID, body.Description)
	if err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": form})
}

// UpdateForm is limited to the form's owner and admins.
func (h *Handler) UpdateForm(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.checkOwner(c, id); err != nil {
		return err
	}

	var body formBody
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body: " + err.Error())
	}

	form, err := h.forms.Update(c.UserContext(), id, body.Name, body.Fields)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": form})
}

func (h *Handler) DeleteForm(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.checkOwner(c, id); err != nil {
		return err
	}

	if err := h.forms.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

func (h *Handler) checkOwner(c *fiber.Ctx, id int64) error {
	user := engine.GetUser(c)
	if user.IsAdmin() {
		return nil
	}
	form, err := h.forms.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	if form.OwnerID != user.ID {
		return engine.ForbiddenError("Only the form owner or an admin may change a form")
	}
	return nil
}

// --- Role Endpoints ---

func (h *Handler) ListRoles(c *fiber.Ctx) error {
	roles, err := h.directory.ListRoles(c.UserContext())
	if err != nil {
		return engine.TranslateError(err)
	}
	return c.JSON(fiber.Map{"data": roles})
}

func (h *Handler) GetRole(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	role, err := h.directory.ResolveRole(c.UserContext(), id)
	if err != nil {
		return directoryError(err, "Role", id)
	}
	return c.JSON(fiber.Map{"data": role})
}

func (h *Handler) CreateRole(c *fiber.Ctx) error {
	body, capability, err := parseRole(c)
	if err != nil {
		return err
	}

	role, err := h.directory.CreateRole(c.UserContext(), body.Name, capability)
	if err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return engine.ConflictError("Role already exists: " + body.Name)
		}
		return engine.TranslateError(err)
	}
	return c.Status(201).JSON(fiber.Map{"data": role})
}

func (h *Handler) UpdateRole(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	body, capability, err := parseRole(c)
	if err != nil {
		return err
	}

	role, err := h.directory.UpdateRole(c.UserContext(), id, body.Name, capability)
	if err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return engine.ConflictError("Role already exists: " + body.Name)
		}
		return directoryError(err, "Role", id)
	}
	return c.JSON(fiber.Map{"data": role})
}

// DeleteRole refuses roles still held by users or recorded on approvals.
func (h *Handler) DeleteRole(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.directory.DeleteRole(c.UserContext(), id); err != nil {
		if errors.Is(err, store.ErrForeignKeyViolation) {
			return engine.ConflictError("Role is still referenced by users or records")
		}
		return directoryError(err, "Role", id)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

func parseRole(c *fiber.Ctx) (*metadata.Role, metadata.Capability, error) {
	var body metadata.Role
	if err := c.BodyParser(&body); err != nil {
		return nil, "", engine.InvalidPayloadError("Invalid JSON body")
	}

	var details []engine.ErrorDetail
	if body.Name == "" {
		details = append(details, engine.ErrorDetail{Field: "role", Rule: "required", Message: "role name is required"})
	}
	capability, err := metadata.ParseCapability(string(body.Capability))
	if err != nil {
		details = append(details, engine.ErrorDetail{Field: "actions", Rule: "enum", Message: err.Error()})
	}
	if len(details) > 0 {
		return nil, "", engine.ValidationError(details)
	}
	return &body, capability, nil
}

// --- User Endpoints ---

func (h *Handler) ListUsers(c *fiber.Ctx) error {
	users, err := h.directory.ListUsers(c.UserContext())
	if err != nil {
		return engine.TranslateError(err)
	}
	return c.JSON(fiber.Map{"data": users})
}

func (h *Handler) Me(c *fiber.Ctx) error {
	user := engine.GetUser(c)
	u, err := h.directory.ResolveUser(c.UserContext(), user.ID)
	if err != nil {
		return directoryError(err, "User", user.ID)
	}
	return c.JSON(fiber.Map{"data": u})
}

// GetUser is limited to the user themself and admins.
func (h *Handler) GetUser(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	caller := engine.GetUser(c)
	if !caller.IsAdmin() && caller.ID != id {
		return engine.ForbiddenError("Admin access required")
	}

	u, err := h.directory.LookupUser(c.UserContext(), id)
	if err != nil {
		return directoryError(err, "User", id)
	}
	return c.JSON(fiber.Map{"data": u})
}

func (h *Handler) CreateUser(c *fiber.Ctx) error {
	var body auth.NewUser
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body")
	}
	if details := validateUser(&body); len(details) > 0 {
		return engine.ValidationError(details)
	}

	user, err := h.directory.CreateUser(c.UserContext(), body)
	if err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return engine.ConflictError("A user with this email or phone already exists")
		}
		return engine.TranslateError(err)
	}
	return c.Status(201).JSON(fiber.Map{"data": user})
}

func (h *Handler) UpdateUser(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body auth.UserUpdate
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body")
	}

	var details []engine.ErrorDetail
	if body.Name != nil && *body.Name == "" {
		details = append(details, engine.ErrorDetail{Field: "name", Rule: "required", Message: "name cannot be empty"})
	}
	if body.Email != nil && *body.Email == "" {
		details = append(details, engine.ErrorDetail{Field: "email", Rule: "required", Message: "email cannot be empty"})
	}
	if body.Password != nil && len(*body.Password) < 8 {
		details = append(details, engine.ErrorDetail{Field: "password", Rule: "min_length", Message: "password must be at least 8 characters"})
	}
	if len(details) > 0 {
		return engine.ValidationError(details)
	}

	user, err := h.directory.UpdateUser(c.UserContext(), id, body)
	if err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return engine.ConflictError("A user with this email or phone already exists")
		}
		return directoryError(err, "User", id)
	}
	return c.JSON(fiber.Map{"data": user})
}

// DeleteUser refuses users that own forms or are stamped on records;
// deactivate them instead.
func (h *Handler) DeleteUser(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.directory.DeleteUser(c.UserContext(), id); err != nil {
		if errors.Is(err, store.ErrForeignKeyViolation) {
			return engine.ConflictError("User is still referenced by forms or records")
		}
		return directoryError(err, "User", id)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

func validateUser(u *auth.NewUser) []engine.ErrorDetail {
	var details []engine.ErrorDetail
	if u.Name == "" {
		details = append(details, engine.ErrorDetail{Field: "name", Rule: "required", Message: "name is required"})
	}
	if u.Email == "" {
		details = append(details, engine.ErrorDetail{Field: "email", Rule: "required", Message: "email is required"})
	}
	if len(u.Password) < 8 {
		details = append(details, engine.ErrorDetail{Field: "password", Rule: "min_length", Message: "password must be at least 8 characters"})
	}
	return details
}

func directoryError(err error, what string, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return engine.NotFoundError(what, id)
	}
	return engine.TranslateError(err)
}

func parseID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, engine.InvalidPayloadError("Invalid id: " + c.Params("id"))
	}
	return int64(id), nil
}
