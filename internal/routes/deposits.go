package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/smartdustbin/ecorewards/internal/deposit"
)

// RegisterDepositRoutes wires the caller's deposit endpoints. limiter throttles
// submissions only.
func RegisterDepositRoutes(r fiber.Router, h *deposit.Handler, limiter fiber.Handler) {
	r.Post("/deposits", limiter, h.Record)
	r.Get("/deposits", h.Mine)
}
