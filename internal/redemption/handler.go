package redemption

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/smartdustbin/ecorewards/internal/apperr"
	"github.com/smartdustbin/ecorewards/internal/middleware"
)

// Handler exposes redemption endpoints for the authenticated user.
type Handler struct {
	service *Service
}

// NewHandler builds a redemption handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type redeemRequest struct {
	OfferID      string `json:"offer_id"`
	RedemptionID string `json:"redemption_id"`
}

type redemptionResponse struct {
	RedemptionID string     `json:"redemption_id"`
	OfferID      string     `json:"offer_id"`
	PartnerName  string     `json:"partner_name"`
	PointsSpent  int64      `json:"points_spent"`
	Code         string     `json:"code"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	Used         bool       `json:"used"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
}

func toResponse(r Record) redemptionResponse {
	resp := redemptionResponse{
		RedemptionID: r.ID,
		OfferID:      r.OfferID,
		PartnerName:  r.PartnerName,
		PointsSpent:  r.PointsSpent,
		Code:         r.Code,
		CreatedAt:    r.CreatedAt,
		ExpiresAt:    r.ExpiresAt,
		Used:         r.Used,
	}
	if r.Used {
		at := r.UsedAt
		resp.UsedAt = &at
	}
	return resp
}

func caller(c *fiber.Ctx) (string, error) {
	uid := middleware.UserIDFrom(c)
	if uid == "" {
		return "", fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return uid, nil
}

// Redeem exchanges points for an offer.
func (h *Handler) Redeem(c *fiber.Ctx) error {
	uid, err := caller(c)
	if err != nil {
		return err
	}
	var req redeemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	redemptionID := strings.TrimSpace(req.RedemptionID)
	if key := strings.TrimSpace(c.Get("Idempotency-Key")); redemptionID == "" && key != "" {
		// Keys are chosen by clients, so derive an id that cannot collide across users.
		redemptionID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(uid+"/"+key)).String()
	}
	if redemptionID == "" {
		// Without a stable id a retry after a lost response would spend again.
		return fiber.NewError(http.StatusBadRequest, "redemption_id or Idempotency-Key is required")
	}
	rec, err := h.service.Redeem(c.UserContext(), RedeemInput{UserID: uid, OfferID: req.OfferID, RedemptionID: redemptionID})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(rec))
}

// Mine lists the caller's redemptions.
func (h *Handler) Mine(c *fiber.Ctx) error {
	uid, err := caller(c)
	if err != nil {
		return err
	}
	records, err := h.service.ListByUser(c.UserContext(), uid, c.QueryInt("limit"))
	if err != nil {
		return err
	}
	out := make([]redemptionResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toResponse(r))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"redemptions": out})
}

// Use marks one of the caller's redemptions as used.
func (h *Handler) Use(c *fiber.Ctx) error {
	uid, err := caller(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	rec, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	if rec.UserID != uid {
		return apperr.NotFound("redemption", id)
	}
	rec, err = h.service.MarkUsed(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(rec))
}
