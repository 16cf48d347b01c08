package bins

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes bin HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a bin HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type provisionRequest struct {
	ID        string  `json:"id"`
	Location  string  `json:"location"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type binResponse struct {
	ID          string    `json:"id"`
	Location    string    `json:"location"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	FillLevel   float64   `json:"fill_level"`
	Status      string    `json:"status"`
	LastEmptied time.Time `json:"last_emptied"`
	CreatedAt   time.Time `json:"created_at"`
}

func toResponse(b Bin) binResponse {
	return binResponse{
		ID:          b.ID,
		Location:    b.Location,
		Latitude:    b.Latitude,
		Longitude:   b.Longitude,
		FillLevel:   b.FillLevel,
		Status:      string(b.Status),
		LastEmptied: b.LastEmptied,
		CreatedAt:   b.CreatedAt,
	}
}

// List returns bins, filtered by the optional status query parameter.
func (h *Handler) List(c *fiber.Ctx) error {
	bins, err := h.service.List(c.UserContext(), c.Query("status"))
	if err != nil {
		return err
	}
	out := make([]binResponse, 0, len(bins))
	for _, b := range bins {
		out = append(out, toResponse(b))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"bins": out})
}

// Get returns a single bin.
func (h *Handler) Get(c *fiber.Ctx) error {
	bin, err := h.service.Get(c.UserContext(), c.Params("binId"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(bin))
}

// Provision registers a new bin.
func (h *Handler) Provision(c *fiber.Ctx) error {
	var req provisionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	bin, err := h.service.Provision(c.UserContext(), ProvisionInput(req))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(bin))
}

// Empty records a collection.
func (h *Handler) Empty(c *fiber.Ctx) error {
	bin, err := h.service.Empty(c.UserContext(), c.Params("binId"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(bin))
}

// SetStatus switches between active and maintenance.
func (h *Handler) SetStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	bin, err := h.service.SetStatus(c.UserContext(), c.Params("binId"), req.Status)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(bin))
}
