package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"order_fulfillment/internal/repository"
	apperrors "order_fulfillment/pkg/errors"
	"order_fulfillment/pkg/shipstation"

	"go.uber.org/zap"
)

type RateSource string

const (
	RateSourceProvider   RateSource = "provider"
	RateSourceCalculated RateSource = "calculated"

	PackageTypeParcel = "package"
)

type RateQuote struct {
	Carrier       string `json:"carrier"`
	CarrierCode   string `json:"carrierCode"`
	Service       string `json:"service"`
	ServiceCode   string `json:"serviceCode"`
	PriceCents    int64  `json:"priceCents"`
	EstimatedDays int    `json:"estimatedDays"`
	PackageType   string `json:"packageType"`
}

type RateResult struct {
	Rates     []RateQuote `json:"rates"`
	Source    RateSource  `json:"source"`
	WeightLbs float64     `json:"weightLbs"`
}

// RateRequest mirrors the public rates endpoint. Weight, when set, wins over CartItems.
type RateRequest struct {
	ToAddress Address      `json:"toAddress"`
	CartItems []WeightItem `json:"cartItems"`
	Weight    *float64     `json:"weight"`
}

// RateProvider is the live carrier rating API.
type RateProvider interface {
	GetRates(ctx context.Context, req shipstation.RateRequest) ([]shipstation.Rate, error)
}

type RateCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type RateService interface {
	GetRates(ctx context.Context, req RateRequest) (*RateResult, error)
	QuoteOrder(ctx context.Context, orderID uint) (*RateResult, error)
}

// RateOptions configures the live path. A nil Provider means fallback only.
type RateOptions struct {
	Provider       RateProvider
	Cache          RateCache
	Timeout        time.Duration
	CacheTTL       time.Duration
	FromPostalCode string
}

type rateService struct {
	orders   repository.OrderRepository
	weights  WeightResolver
	settings SettingsService
	opts     RateOptions
	log      *zap.Logger
}

func NewRateService(orders repository.OrderRepository, weights WeightResolver, settings SettingsService, opts RateOptions, log *zap.Logger) RateService {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	return &rateService{orders: orders, weights: weights, settings: settings, opts: opts, log: log}
}

// liveCarriers is the carrier allow-list for provider quotes.
var liveCarriers = []string{"stamps_com", "fedex"}

type fallbackTier struct {
	carrierCode string
	service     string
	serviceCode string
	baseCents   int64
	perLbCents  int64
}

var fallbackTiers = []fallbackTier{
	{carrierCode: "stamps_com", service: "USPS Ground Advantage", serviceCode: "usps_ground_advantage", baseCents: 595, perLbCents: 75},
	{carrierCode: "stamps_com", service: "USPS Priority Mail", serviceCode: "usps_priority_mail", baseCents: 995, perLbCents: 150},
	{carrierCode: "fedex", service: "FedEx Ground", serviceCode: "fedex_ground", baseCents: 1095, perLbCents: 100},
	{carrierCode: "fedex", service: "FedEx Express Saver", serviceCode: "fedex_express_saver", baseCents: 1995, perLbCents: 200},
}

func (s *rateService) GetRates(ctx context.Context, req RateRequest) (*RateResult, error) {
	to := normalizeAddress(req.ToAddress)
	if err := validateDestination(to); err != nil {
		return nil, err
	}

	hasWeight := req.Weight != nil && *req.Weight > 0
	if !hasWeight && len(req.CartItems) == 0 {
		return nil, &apperrors.ErrValidation{
			Message: "cart items or weight required",
			Fields:  map[string]string{"cartItems": "required"},
		}
	}

	var weightLbs float64
	if hasWeight {
		weightLbs = ShippableWeightLbs(*req.Weight * ouncesPerPound)
	} else {
		sw, err := s.weights.Resolve(ctx, req.CartItems)
		if err != nil {
			return nil, err
		}
		weightLbs = sw.WeightLbs
	}

	return s.quote(ctx, to, weightLbs), nil
}

// QuoteOrder rates an existing order to the address stored on it.
func (s *rateService) QuoteOrder(ctx context.Context, orderID uint) (*RateResult, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	to := normalizeAddress(ParseAddress(order.ShippingAddress))
	if err := validateDestination(to); err != nil {
		return nil, apperrors.Validation("order %s has no usable shipping address: %v", order.OrderNumber, err)
	}
	sw, err := s.weights.Resolve(ctx, WeightItemsFromOrder(order.Items))
	if err != nil {
		return nil, err
	}
	return s.quote(ctx, to, sw.WeightLbs), nil
}

// quote never fails: any provider problem degrades to the calculated table.
func (s *rateService) quote(ctx context.Context, to Address, weightLbs float64) *RateResult {
	if s.opts.Provider != nil && s.settings.Resolve(ctx).RateProviderEnabled {
		if rates, err := s.liveRates(ctx, to, weightLbs); err != nil {
			s.log.Warn("Live rate lookup failed, using calculated rates",
				zap.String("postal_code", to.PostalCode), zap.Float64("weight_lbs", weightLbs), zap.Error(err))
		} else if len(rates) == 0 {
			s.log.Warn("Live rate lookup returned no usable rates, using calculated rates",
				zap.String("postal_code", to.PostalCode), zap.Float64("weight_lbs", weightLbs))
		} else {
			return &RateResult{Rates: rates, Source: RateSourceProvider, WeightLbs: weightLbs}
		}
	}

	return &RateResult{Rates: FallbackRates(weightLbs), Source: RateSourceCalculated, WeightLbs: weightLbs}
}

func (s *rateService) liveRates(ctx context.Context, to Address, weightLbs float64) ([]RateQuote, error) {
	key := rateCacheKey(to, weightLbs)
	if s.opts.Cache != nil {
		var cached []RateQuote
		if err := s.opts.Cache.GetJSON(ctx, key, &cached); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	type carrierResult struct {
		rates []shipstation.Rate
		err   error
	}
	results := make([]carrierResult, len(liveCarriers))
	var wg sync.WaitGroup
	for i, carrier := range liveCarriers {
		wg.Add(1)
		go func(i int, carrier string) {
			defer wg.Done()
			rates, err := s.opts.Provider.GetRates(ctx, shipstation.RateRequest{
				CarrierCode:    carrier,
				FromPostalCode: s.opts.FromPostalCode,
				ToState:        to.State,
				ToCountry:      to.Country,
				ToPostalCode:   to.PostalCode,
				ToCity:         to.City,
				Weight:         shipstation.Weight{Value: weightLbs, Units: "pounds"},
				Dimensions: &shipstation.Dimensions{
					Length: DefaultDimensions.Length,
					Width:  DefaultDimensions.Width,
					Height: DefaultDimensions.Height,
					Units:  DefaultDimensions.Units,
				},
				Residential: true,
			})
			results[i] = carrierResult{rates: rates, err: err}
		}(i, carrier)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return nil, fmt.Errorf("live rates: %w", ctx.Err())
	}

	var quotes []RateQuote
	var errs []error
	for i, res := range results {
		if res.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", liveCarriers[i], res.err))
			continue
		}
		for _, r := range res.rates {
			cents := shipstation.Cents(r.Total())
			if cents <= 0 || r.ServiceCode == "" {
				continue
			}
			quotes = append(quotes, RateQuote{
				Carrier:       CarrierDisplayName(liveCarriers[i]),
				CarrierCode:   liveCarriers[i],
				Service:       r.ServiceName,
				ServiceCode:   r.ServiceCode,
				PriceCents:    cents,
				EstimatedDays: TransitDays(r.ServiceCode),
				PackageType:   PackageTypeParcel,
			})
		}
	}
	// A partial answer would hide a whole carrier, so any failure means fallback.
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	sortQuotes(quotes)
	if s.opts.Cache != nil && len(quotes) > 0 && s.opts.CacheTTL > 0 {
		if err := s.opts.Cache.SetJSON(ctx, key, quotes, s.opts.CacheTTL); err != nil {
			s.log.Debug("Failed to cache rates", zap.String("key", key), zap.Error(err))
		}
	}
	return quotes, nil
}

// FallbackRates is the deterministic rate table used when live rates are unavailable.
// Each tier charges its base price for the first pound and a flat amount per started pound after that.
func FallbackRates(weightLbs float64) []RateQuote {
	tenths := int64(math.Round(weightLbs * 10))
	var extraLbs int64
	if tenths > 10 {
		extraLbs = (tenths - 10 + 9) / 10
	}

	quotes := make([]RateQuote, 0, len(fallbackTiers))
	for _, t := range fallbackTiers {
		quotes = append(quotes, RateQuote{
			Carrier:       CarrierDisplayName(t.carrierCode),
			CarrierCode:   t.carrierCode,
			Service:       t.service,
			ServiceCode:   t.serviceCode,
			PriceCents:    t.baseCents + extraLbs*t.perLbCents,
			EstimatedDays: TransitDays(t.serviceCode),
			PackageType:   PackageTypeParcel,
		})
	}
	sortQuotes(quotes)
	return quotes
}

func sortQuotes(quotes []RateQuote) {
	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].PriceCents < quotes[j].PriceCents
	})
}

func normalizeAddress(a Address) Address {
	a.State = strings.ToUpper(strings.TrimSpace(a.State))
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.City = strings.TrimSpace(a.City)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	if a.Country == "" {
		a.Country = "US"
	}
	return a
}

func validateDestination(a Address) error {
	fields := map[string]string{}
	if a.PostalCode == "" {
		fields["toAddress.postalCode"] = "required"
	}
	if a.State == "" {
		fields["toAddress.state"] = "required"
	}
	if len(fields) > 0 {
		return &apperrors.ErrValidation{Message: "destination postal code and state are required", Fields: fields}
	}
	return nil
}

func rateCacheKey(to Address, weightLbs float64) string {
	return fmt.Sprintf("rates:%s:%s:%s:%.1f", to.Country, to.State, to.PostalCode, weightLbs)
}
