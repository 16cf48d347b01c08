package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/smartdustbin/ecorewards/internal/offers"
	"github.com/smartdustbin/ecorewards/internal/redemption"
)

// RegisterRewardRoutes wires the offer catalog and redemptions.
func RegisterRewardRoutes(r fiber.Router, o *offers.Handler, h *redemption.Handler) {
	r.Get("/offers", o.List)
	r.Post("/redemptions", h.Redeem)
	r.Get("/redemptions", h.Mine)
	r.Post("/redemptions/:id/use", h.Use)
}
