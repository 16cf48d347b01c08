package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/smartdustbin/ecorewards/internal/balance"
	"github.com/smartdustbin/ecorewards/internal/impact"
)

// RegisterAccountRoutes wires the caller's balance and impact stats.
func RegisterAccountRoutes(r fiber.Router, b *balance.Handler, s *impact.Handler) {
	r.Get("/balance", b.Mine)
	r.Get("/stats", s.Mine)
}
