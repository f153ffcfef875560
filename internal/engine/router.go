package engine

import "github.com/gofiber/fiber/v2"

func RegisterDataRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	data := app.Group("/api/data", middleware...)

	data.Post("/:table/insert", h.Insert)
	data.Get("/:table", h.List)
	data.Get("/:table/:id", h.Get)
	data.Put("/:table/:id", h.Update)
	data.Post("/:table/:id/approve", h.Approve)
	data.Post("/:table/:id/delete", h.Delete)
}
