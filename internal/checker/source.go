package checker

import (
	"context"

	"github.com/shopspring/decimal"
)

// Source performs the single read-only availability lookup for a product.
type Source interface {
	AppDetails(ctx context.Context, appID string) (AppDetails, error)
}

// AppDetails is the subset of the storefront payload the checker understands.
// Nil pointers mean the field was absent.
type AppDetails struct {
	Success       bool
	ComingSoon    *bool
	IsFree        *bool
	PriceOverview *PriceOverview
	PackageGroups []any
}

// PriceOverview carries the store price in minor currency units.
type PriceOverview struct {
	Currency        string `json:"currency"`
	Initial         int64  `json:"initial"`
	Final           int64  `json:"final"`
	DiscountPercent int    `json:"discount_percent"`
	FinalFormatted  string `json:"final_formatted"`
}

// FinalPrice converts the final price to major units.
func (p PriceOverview) FinalPrice() decimal.Decimal {
	return decimal.New(p.Final, -2)
}

// Flags derives the classify inputs. Absent fields fall to the less-available side.
func (d AppDetails) Flags() (comingSoon, hasPrice, hasPurchaseOptions bool) {
	comingSoon = true
	if d.ComingSoon != nil {
		comingSoon = *d.ComingSoon
	}
	hasPrice = d.PriceOverview != nil
	hasPurchaseOptions = len(d.PackageGroups) > 0
	return comingSoon, hasPrice, hasPurchaseOptions
}
