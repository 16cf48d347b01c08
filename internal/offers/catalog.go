// Package offers provides the read-only partner offer catalog consulted by
// redemptions.
package offers

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/smartdustbin/ecorewards/internal/apperr"
)

// Offer is a partner reward purchasable with points. A zero ValidFrom or
// ValidTo leaves that side of the window open.
type Offer struct {
	ID             string    `yaml:"id"`
	Title          string    `yaml:"title"`
	PartnerName    string    `yaml:"partner_name"`
	Category       string    `yaml:"category"`
	PointsRequired int64     `yaml:"points_required"`
	ValidFrom      time.Time `yaml:"valid_from"`
	ValidTo        time.Time `yaml:"valid_to"`
}

// AvailableAt reports whether the offer can be redeemed at t.
func (o Offer) AvailableAt(t time.Time) bool {
	if !o.ValidFrom.IsZero() && t.Before(o.ValidFrom) {
		return false
	}
	if !o.ValidTo.IsZero() && t.After(o.ValidTo) {
		return false
	}
	return true
}

func (o Offer) validate() error {
	switch {
	case strings.TrimSpace(o.ID) == "":
		return apperr.Invalid("offer id is required")
	case strings.TrimSpace(o.PartnerName) == "":
		return apperr.Invalid("offer %s: partner name is required", o.ID)
	case o.PointsRequired <= 0:
		return apperr.Invalid("offer %s: points required must be positive", o.ID)
	case !o.ValidFrom.IsZero() && !o.ValidTo.IsZero() && o.ValidTo.Before(o.ValidFrom):
		return apperr.Invalid("offer %s: validity window ends before it starts", o.ID)
	}
	return nil
}

// Catalog is the read-only lookup used by the redemption service.
type Catalog interface {
	GetOffer(ctx context.Context, id string) (Offer, error)
	List(ctx context.Context) ([]Offer, error)
}

// MemoryCatalog holds a fixed set of offers.
type MemoryCatalog struct {
	offers map[string]Offer
}

// NewMemoryCatalog builds a catalog from offers. Invalid offers are rejected.
func NewMemoryCatalog(offers ...Offer) (*MemoryCatalog, error) {
	c := &MemoryCatalog{offers: make(map[string]Offer, len(offers))}
	for _, o := range offers {
		if err := o.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.offers[o.ID]; dup {
			return nil, apperr.Invalid("offer %s listed twice", o.ID)
		}
		c.offers[o.ID] = o
	}
	return c, nil
}

// GetOffer returns the offer with the given id.
func (c *MemoryCatalog) GetOffer(_ context.Context, id string) (Offer, error) {
	o, ok := c.offers[id]
	if !ok {
		return Offer{}, apperr.NotFound("offer", id)
	}
	return o, nil
}

// List returns all offers sorted by points required then id.
func (c *MemoryCatalog) List(_ context.Context) ([]Offer, error) {
	out := make([]Offer, 0, len(c.offers))
	for _, o := range c.offers {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PointsRequired != out[j].PointsRequired {
			return out[i].PointsRequired < out[j].PointsRequired
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
