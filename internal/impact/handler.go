package impact

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/smartdustbin/ecorewards/internal/middleware"
)

// Handler exposes statistics endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a statistics handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Mine returns the caller's stats.
func (h *Handler) Mine(c *fiber.Ctx) error {
	uid := middleware.UserIDFrom(c)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	stats, err := h.service.UserStats(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(stats)
}

// Dashboard returns the admin overview.
func (h *Handler) Dashboard(c *fiber.Ctx) error {
	d, err := h.service.Dashboard(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(d)
}
