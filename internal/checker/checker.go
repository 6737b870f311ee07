package checker

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"availwatch/internal/status"
)

// ErrUnsuccessful is recorded when the storefront answers success=false.
var ErrUnsuccessful = errors.New("appdetails returned success=false")

// Observation is the outcome of one availability lookup.
// Err is informational only: the status is already degraded when it is set.
type Observation struct {
	Status      status.Status
	ComingSoon  bool
	HasPrice    bool
	HasPackages bool
	Price       decimal.NullDecimal
	Currency    string
	TestMode    bool
	Err         error
}

// Checker translates a Source lookup into a Status. It never returns an error.
type Checker struct {
	source Source
	appID  string
	logger zerolog.Logger
}

// New builds a checker for a fixed product id.
func New(source Source, appID string, logger zerolog.Logger) *Checker {
	return &Checker{
		source: source,
		appID:  appID,
		logger: logger.With().Str("component", "checker").Str("app_id", appID).Logger(),
	}
}

// Check returns the current availability, NotAvailable on any failure.
func (c *Checker) Check(ctx context.Context, testMode bool) status.Status {
	return c.Observe(ctx, testMode).Status
}

// Observe performs the lookup and keeps the evidence used for classification.
func (c *Checker) Observe(ctx context.Context, testMode bool) Observation {
	if testMode {
		c.logger.Debug().Msg("test mode: skipping lookup")
		return Observation{Status: status.NotAvailable, TestMode: true}
	}

	details, err := c.source.AppDetails(ctx, c.appID)
	if err != nil {
		c.logger.Warn().Err(err).Msg("availability lookup failed; treating as not available")
		return Observation{Status: status.NotAvailable, Err: err}
	}
	if !details.Success {
		c.logger.Warn().Msg("appdetails returned success=false")
		return Observation{Status: status.NotAvailable, Err: ErrUnsuccessful}
	}

	comingSoon, hasPrice, hasPackages := details.Flags()
	obs := Observation{
		Status:      status.Classify(comingSoon, hasPrice, hasPackages),
		ComingSoon:  comingSoon,
		HasPrice:    hasPrice,
		HasPackages: hasPackages,
	}
	if details.PriceOverview != nil {
		obs.Price = decimal.NewNullDecimal(details.PriceOverview.FinalPrice())
		obs.Currency = details.PriceOverview.Currency
	}

	event := c.logger.Info().
		Bool("coming_soon", comingSoon).
		Bool("has_price", hasPrice).
		Bool("has_packages", hasPackages).
		Str("status", obs.Status.StorageKey())
	if details.IsFree != nil {
		event = event.Bool("is_free", *details.IsFree)
	}
	if obs.Price.Valid {
		event = event.Str("price", obs.Price.Decimal.StringFixed(2)).Str("currency", obs.Currency)
	}
	event.Msg("availability observed")

	return obs
}
