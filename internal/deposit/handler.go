package deposit

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/smartdustbin/ecorewards/internal/middleware"
)

// Handler exposes deposit endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a deposit handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type recordRequest struct {
	UserID    string  `json:"user_id"`
	BinID     string  `json:"bin_id"`
	Category  string  `json:"category"`
	WasteType string  `json:"waste_type"`
	WeightKg  float64 `json:"weight_kg"`
	RequestID string  `json:"request_id"`
}

type depositResponse struct {
	DepositID     string    `json:"deposit_id"`
	RequestID     string    `json:"request_id"`
	UserID        string    `json:"user_id"`
	BinID         string    `json:"bin_id"`
	Category      string    `json:"category"`
	WeightKg      float64   `json:"weight_kg"`
	PointsAwarded int64     `json:"points_awarded"`
	Timestamp     time.Time `json:"timestamp"`
}

type recordResponse struct {
	depositResponse
	NewFillLevel float64 `json:"new_fill_level"`
	BinStatus    string  `json:"bin_status"`
	TotalPoints  int64   `json:"total_points"`
	Rank         string  `json:"rank"`
	Level        int     `json:"level"`
	Replayed     bool    `json:"replayed"`
}

func toResponse(r Record) depositResponse {
	return depositResponse{
		DepositID:     r.ID,
		RequestID:     r.RequestID,
		UserID:        r.UserID,
		BinID:         r.BinID,
		Category:      string(r.Category),
		WeightKg:      r.WeightKg,
		PointsAwarded: r.Points,
		Timestamp:     r.CreatedAt,
	}
}

// Record handles a deposit scanned by the authenticated user.
func (h *Handler) Record(c *fiber.Ctx) error {
	uid := middleware.UserIDFrom(c)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return h.record(c, uid)
}

// Simulate records a deposit on behalf of the user named in the body.
func (h *Handler) Simulate(c *fiber.Ctx) error {
	return h.record(c, "")
}

func (h *Handler) record(c *fiber.Ctx, uid string) error {
	var req recordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if uid == "" {
		uid = req.UserID
	}
	category := req.Category
	if category == "" {
		category = req.WasteType
	}
	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = strings.TrimSpace(utils.CopyString(c.Get("Idempotency-Key")))
	}

	res, err := h.service.Record(c.UserContext(), RecordInput{
		UserID:    uid,
		BinID:     req.BinID,
		Category:  category,
		WeightKg:  req.WeightKg,
		RequestID: requestID,
	})
	if err != nil {
		return err
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	return c.Status(status).JSON(recordResponse{
		depositResponse: toResponse(res.Record),
		NewFillLevel:    res.FillLevel,
		BinStatus:       string(res.BinStatus),
		TotalPoints:     res.Account.TotalPoints,
		Rank:            res.Account.Rank,
		Level:           res.Account.Level,
		Replayed:        res.Replayed,
	})
}

// Mine lists the authenticated user's deposits.
func (h *Handler) Mine(c *fiber.Ctx) error {
	uid := middleware.UserIDFrom(c)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	records, err := h.service.ListByUser(c.UserContext(), uid, c.QueryInt("limit"))
	if err != nil {
		return err
	}
	out := make([]depositResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toResponse(r))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"deposits": out})
}

// List pages through all deposits for the admin dashboard.
func (h *Handler) List(c *fiber.Ctx) error {
	page, err := h.service.List(c.UserContext(), c.Query("cursor"), c.QueryInt("limit"))
	if err != nil {
		return err
	}
	out := make([]depositResponse, 0, len(page.Deposits))
	for _, r := range page.Deposits {
		out = append(out, toResponse(r))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"deposits": out, "next_cursor": page.NextCursor})
}

// Resume re-applies incomplete deposits.
func (h *Handler) Resume(c *fiber.Ctx) error {
	report, err := h.service.Resume(c.UserContext(), c.QueryInt("limit"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(report)
}
