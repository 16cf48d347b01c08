package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/smartdustbin/ecorewards/internal/bins"
)

// RegisterBinRoutes wires read-only bin endpoints.
func RegisterBinRoutes(r fiber.Router, h *bins.Handler) {
	r.Get("/bins", h.List)
	r.Get("/bins/:binId", h.Get)
}
