package balance

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/smartdustbin/ecorewards/internal/middleware"
)

// Handler exposes balance reads and account provisioning.
type Handler struct {
	service *Service
}

// NewHandler builds a balance HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type openRequest struct {
	UserID string `json:"user_id"`
}

type balanceResponse struct {
	UserID          string    `json:"user_id"`
	TotalPoints     int64     `json:"total_points"`
	UsedPoints      int64     `json:"used_points"`
	AvailablePoints int64     `json:"available_points"`
	Rank            string    `json:"rank"`
	Level           int       `json:"level"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toResponse(a Account) balanceResponse {
	return balanceResponse{
		UserID:          a.UserID,
		TotalPoints:     a.TotalPoints,
		UsedPoints:      a.UsedPoints,
		AvailablePoints: a.Available(),
		Rank:            a.Rank,
		Level:           a.Level,
		UpdatedAt:       a.UpdatedAt,
	}
}

// Mine returns the caller's balance.
func (h *Handler) Mine(c *fiber.Ctx) error {
	uid := middleware.UserIDFrom(c)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	account, err := h.service.Get(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(account))
}

// Get returns the balance of the user in the path.
func (h *Handler) Get(c *fiber.Ctx) error {
	account, err := h.service.Get(c.UserContext(), c.Params("userId"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(account))
}

// Open provisions a zero balance for a newly registered user.
func (h *Handler) Open(c *fiber.Ctx) error {
	var req openRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	account, err := h.service.Open(c.UserContext(), req.UserID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(account))
}
