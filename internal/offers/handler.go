package offers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the catalog over HTTP.
type Handler struct {
	catalog Catalog
	now     func() time.Time
}

// NewHandler builds an offer handler.
func NewHandler(catalog Catalog) *Handler {
	return &Handler{catalog: catalog, now: time.Now}
}

type offerResponse struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	PartnerName    string     `json:"partner_name"`
	Category       string     `json:"category,omitempty"`
	PointsRequired int64      `json:"points_required"`
	ValidFrom      *time.Time `json:"valid_from,omitempty"`
	ValidTo        *time.Time `json:"valid_to,omitempty"`
	Available      bool       `json:"available"`
}

// List returns the catalog. With ?available=true only currently redeemable
// offers are included.
func (h *Handler) List(c *fiber.Ctx) error {
	all, err := h.catalog.List(c.UserContext())
	if err != nil {
		return err
	}
	onlyAvailable := c.QueryBool("available", false)
	now := h.now()
	out := make([]offerResponse, 0, len(all))
	for _, o := range all {
		available := o.AvailableAt(now)
		if onlyAvailable && !available {
			continue
		}
		resp := offerResponse{
			ID:             o.ID,
			Title:          o.Title,
			PartnerName:    o.PartnerName,
			Category:       o.Category,
			PointsRequired: o.PointsRequired,
			Available:      available,
		}
		if !o.ValidFrom.IsZero() {
			from := o.ValidFrom
			resp.ValidFrom = &from
		}
		if !o.ValidTo.IsZero() {
			to := o.ValidTo
			resp.ValidTo = &to
		}
		out = append(out, resp)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"offers": out})
}
