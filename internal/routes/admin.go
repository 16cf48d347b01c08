package routes

import (
	"github.com/gofiber/fiber/v2"
)

// RegisterAdminRoutes wires endpoints used by operators and the registration
// and scanner simulation collaborators.
func RegisterAdminRoutes(r fiber.Router, h handlers) {
	r.Post("/users", h.balance.Open)
	r.Get("/users/:userId/balance", h.balance.Get)

	r.Get("/bins", h.bins.List)
	r.Post("/bins", h.bins.Provision)
	r.Post("/bins/:binId/empty", h.bins.Empty)
	r.Put("/bins/:binId/status", h.bins.SetStatus)

	r.Post("/simulate/deposit", h.deposits.Simulate)
	r.Get("/deposits", h.deposits.List)
	r.Post("/deposits/resume", h.deposits.Resume)

	r.Get("/dashboard", h.impact.Dashboard)
}
