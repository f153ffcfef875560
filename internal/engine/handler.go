package engine

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"formflow-backend/internal/metadata"
)

// Handler translates the /api/data routes onto RecordStore and Approver.
type Handler struct {
	records  *RecordStore
	approver *Approver
}

func NewHandler(records *RecordStore, approver *Approver) *Handler {
	return &Handler{records: records, approver: approver}
}

// Insert handles POST /api/data/:table/insert
func (h *Handler) Insert(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return err
	}
	body, err := parseBody(c)
	if err != nil {
		return err
	}

	res, err := h.records.Insert(c.UserContext(), c.Params("table"), body, user.ID)
	if err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": res})
}

// List handles GET /api/data/:table
func (h *Handler) List(c *fiber.Ctx) error {
	rows, err := h.records.List(c.UserContext(), c.Params("table"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

// Get handles GET /api/data/:table/:id
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	row, err := h.records.Get(c.UserContext(), c.Params("table"), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// Update handles PUT /api/data/:table/:id
func (h *Handler) Update(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	body, err := parseBody(c)
	if err != nil {
		return err
	}

	res, err := h.records.Update(c.UserContext(), c.Params("table"), id, body, user.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": res})
}

// Approve handles POST /api/data/:table/:id/approve. The approver is the
// caller; admins may approve on behalf of another user via user_id.
func (h *Handler) Approve(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var body struct {
		UserID int64 `json:"user_id"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return InvalidPayloadError("Invalid JSON body")
		}
	}
	approverID := user.ID
	if body.UserID != 0 && body.UserID != user.ID {
		if !user.IsAdmin() {
			return ForbiddenError("Only admins may approve on behalf of another user")
		}
		approverID = body.UserID
	}

	res, err := h.approver.Approve(c.UserContext(), c.Params("table"), id, approverID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": res})
}

// Delete handles POST /api/data/:table/:id/delete
func (h *Handler) Delete(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}

	res, err := h.records.Delete(c.UserContext(), c.Params("table"), id, user.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": res})
}

// NewErrorHandler renders AppErrors as {"error": {...}} and hides anything
// else behind INTERNAL_ERROR.
func NewErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *AppError
		if errors.As(err, &appErr) {
			if appErr.Code == CodeStorageUnavailable {
				logger.Error("storage unavailable", zap.String("path", c.Path()), zap.Error(errors.Unwrap(appErr)))
			}
			return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code := CodeInvalidPayload
			switch {
			case fiberErr.Code == fiber.StatusNotFound:
				code = CodeNotFound
			case fiberErr.Code >= 500:
				code = CodeInternal
			}
			return c.Status(fiberErr.Code).JSON(ErrorResponse{
				Error: &AppError{Code: code, Message: fiberErr.Message},
			})
		}

		logger.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: &AppError{Code: CodeInternal, Message: "Internal server error"},
		})
	}
}

// GetUser returns the caller set by the auth middleware, or nil.
func GetUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}

func requireUser(c *fiber.Ctx) (*metadata.UserContext, error) {
	user := GetUser(c)
	if user == nil {
		return nil, UnauthorizedError("Authentication required")
	}
	return user, nil
}

func parseID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, InvalidPayloadError("Invalid record id: " + c.Params("id"))
	}
	return int64(id), nil
}

// parseBody decodes a record payload keeping numbers as json.Number so
// integers beyond float64 precision reach coercion intact.
func parseBody(c *fiber.Ctx) (map[string]any, error) {
	var body map[string]any
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, InvalidPayloadError("Invalid JSON body")
	}
	if dec.More() {
		return nil, InvalidPayloadError("Invalid JSON body: trailing data")
	}
	return body, nil
}
