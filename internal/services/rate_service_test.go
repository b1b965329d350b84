package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"order_fulfillment/internal/models"
	"order_fulfillment/internal/redis"
	"order_fulfillment/internal/repository/repotest"
	apperrors "order_fulfillment/pkg/errors"
	"order_fulfillment/pkg/shipstation"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	mu       sync.Mutex
	rates    map[string][]shipstation.Rate
	errs     map[string]error
	requests []shipstation.RateRequest
}

func (f *fakeProvider) GetRates(ctx context.Context, req shipstation.RateRequest) ([]shipstation.Rate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.errs[req.CarrierCode]; err != nil {
		return nil, err
	}
	return f.rates[req.CarrierCode], nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string][]RateQuote
}

func (c *memoryCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	if !ok {
		return redis.ErrCacheMiss
	}
	*(dest.(*[]RateQuote)) = v
	return nil
}

func (c *memoryCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = map[string][]RateQuote{}
	}
	c.items[key] = value.([]RateQuote)
	return nil
}

func rate(name, code, cost string) shipstation.Rate {
	return shipstation.Rate{ServiceName: name, ServiceCode: code, ShipmentCost: decimal.RequireFromString(cost)}
}

var springfield = Address{City: "Springfield", State: "IL", PostalCode: "62704", Country: "US"}

func newRateService(t *testing.T, store *repotest.Store, opts RateOptions, enabled bool) RateService {
	t.Helper()
	return NewRateService(store.Orders(), newResolver(store), StaticSettings{RateProviderEnabled: enabled}, opts, zap.NewNop())
}

func lbs(v float64) *float64 { return &v }

func TestFallbackRates(t *testing.T) {
	quotes := FallbackRates(1)
	require.Len(t, quotes, 4)
	assert.Equal(t, "usps_ground_advantage", quotes[0].ServiceCode)
	assert.Equal(t, int64(595), quotes[0].PriceCents)
	for i := 1; i < len(quotes); i++ {
		assert.LessOrEqual(t, quotes[i-1].PriceCents, quotes[i].PriceCents)
	}
	for _, q := range quotes {
		assert.Equal(t, PackageTypeParcel, q.PackageType)
		assert.Equal(t, TransitDays(q.ServiceCode), q.EstimatedDays)
	}

	// 2.5 lb pays for two started pounds past the first.
	heavier := FallbackRates(2.5)
	assert.Equal(t, int64(595+2*75), heavier[0].PriceCents)
	assert.Equal(t, FallbackRates(2.5), heavier)
	assert.Equal(t, FallbackRates(2.0)[0].PriceCents, int64(595+75))
}

func TestRateService_ProviderFailureFallsBack(t *testing.T) {
	store := repotest.NewStore()
	provider := &fakeProvider{errs: map[string]error{"stamps_com": errors.New("timeout"), "fedex": errors.New("timeout")}}
	svc := newRateService(t, store, RateOptions{Provider: provider}, true)

	got, err := svc.GetRates(context.Background(), RateRequest{ToAddress: springfield, Weight: lbs(2.5)})
	require.NoError(t, err)
	assert.Equal(t, RateSourceCalculated, got.Source)
	assert.Equal(t, 2.5, got.WeightLbs)
	assert.Equal(t, FallbackRates(2.5), got.Rates)
}

// blockingProvider answers only when ctx ends or release is closed.
type blockingProvider struct {
	honorCtx bool
	release  chan struct{}
}

func (p *blockingProvider) GetRates(ctx context.Context, req shipstation.RateRequest) ([]shipstation.Rate, error) {
	if p.honorCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	<-p.release
	return []shipstation.Rate{rate("Late", "usps_priority_mail", "1.00")}, nil
}

func TestRateService_ProviderTimeoutFallsBack(t *testing.T) {
	svc := newRateService(t, repotest.NewStore(), RateOptions{
		Provider: &blockingProvider{honorCtx: true},
		Timeout:  50 * time.Millisecond,
	}, true)

	start := time.Now()
	got, err := svc.GetRates(context.Background(), RateRequest{ToAddress: springfield, Weight: lbs(3)})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, RateSourceCalculated, got.Source)
	assert.Equal(t, FallbackRates(3), got.Rates)
	assert.Less(t, elapsed, time.Second)
}

func TestRateService_TimeoutBoundsProviderIgnoringContext(t *testing.T) {
	provider := &blockingProvider{release: make(chan struct{})}
	t.Cleanup(func() { close(provider.release) })
	svc := newRateService(t, repotest.NewStore(), RateOptions{Provider: provider, Timeout: 50 * time.Millisecond}, true)

	start := time.Now()
	got, err := svc.GetRates(context.Background(), RateRequest{ToAddress: springfield, Weight: lbs(1)})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, RateSourceCalculated, got.Source)
	assert.Len(t, got.Rates, 4)
	assert.Less(t, elapsed, time.Second)
}

func TestRateService_PartialProviderFailureFallsBack(t *testing.T) {
	provider := &fakeProvider{
		rates: map[string][]shipstation.Rate{"stamps_com": {rate("USPS Priority Mail", "usps_priority_mail", "9.10")}},
		errs:  map[string]error{"fedex": errors.New("502 bad gateway")},
	}
	svc := newRateService(t, repotest.NewStore(), RateOptions{Provider: provider}, true)

	got, err := svc.GetRates(context.Background(), RateRequest{ToAddress: springfield, Weight: lbs(1)})
	require.NoError(t, err)
	assert.Equal(t, RateSourceCalculated, got.Source)
}

func TestRateService_EmptyProviderResultFallsBack(t *testing.T) {
	provider := &fakeProvider{rates: map[string][]shipstation.Rate{}}
	svc := newRateService(t, repotest.NewStore(), RateOptions{Provider: provider}, true)

	got, err := svc.GetRates(context.Background(), RateRequest{ToAddress: springfield, Weight: lbs(1)})
	require.NoError(t, err)
	assert.Equal(t, RateSourceCalculated, got.Source)
	assert.Len(t, got.Rates, 4)
}

func TestRateService_ProviderRatesAreNormalizedAndSorted(t *testing.T) {
	provider := &fakeProvider{rates: map[string][]shipstation.Rate{
		"stamps_com": {
			rate("USPS Priority Mail", "usps_priority_mail", "9.10"),
			rate("USPS Ground Advantage", "usps_ground_advantage", "5.45"),
		},
		"fedex": {
			{ServiceName: "FedEx Ground", ServiceCode: "fedex_ground", ShipmentCost: decimal.RequireFromString("10.00"), OtherCost: decimal.RequireFromString("1.25")},
			rate("FedEx Broken", "fedex_broken", "0"),
		},
	}}
	svc := newRateService(t, repotest.NewStore(), RateOptions{Provider: provider, FromPostalCode: "78701"}, true)

	got, err := svc.GetRates(context.Background(), RateRequest{ToAddress: springfield, Weight: lbs(2)})
	require.NoError(t, err)
	assert.Equal(t, RateSourceProvider, got.Source)
	require.Len(t, got.Rates, 3)

	assert.Equal(t, RateQuote{
		Carrier: "USPS", CarrierCode: "stamps_com", Service: "USPS Ground Advantage", ServiceCode: "usps_ground_advantage",
		PriceCents: 545, EstimatedDays: 5, PackageType: PackageTypeParcel,
	}, got.Rates[0])
	assert.Equal(t, int64(910), got.Rates[1].PriceCents)
	assert.Equal(t, "FedEx", got.Rates[2].Carrier)
	assert.Equal(t, int64(1125), got.Rates[2].PriceCents)

	require.Equal(t, 2, provider.calls())
	for _, req := range provider.requests {
		assert.Equal(t, "78701", req.FromPostalCode)
		assert.Equal(t, "62704", req.ToPostalCode)
		assert.Equal(t, 2.0, req.Weight.Value)
		assert.NotEqual(t, "ups", req.CarrierCode)
	}
}

func TestRateService_DisabledProviderIsNotCalled(t *testing.T) {
	provider := &fakeProvider{}
	svc := newRateService(t, repotest.NewStore(), RateOptions{Provider: provider}, false)

	got, err := svc.GetRates(context.Background(), RateRequest{ToAddress: springfield, Weight: lbs(1)})
	require.NoError(t, err)
	assert.Equal(t, RateSourceCalculated, got.Source)
	assert.Zero(t, provider.calls())
}

func TestRateService_CachesProviderRates(t *testing.T) {
	provider := &fakeProvider{rates: map[string][]shipstation.Rate{
		"stamps_com": {rate("USPS Ground Advantage", "usps_ground_advantage", "5.45")},
	}}
	cache := &memoryCache{}
	svc := newRateService(t, repotest.NewStore(), RateOptions{Provider: provider, Cache: cache, CacheTTL: time.Minute}, true)

	first, err := svc.GetRates(context.Background(), RateRequest{ToAddress: springfield, Weight: lbs(1)})
	require.NoError(t, err)
	second, err := svc.GetRates(context.Background(), RateRequest{ToAddress: springfield, Weight: lbs(1)})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, provider.calls())
}

func TestRateService_CartItemsDriveWeight(t *testing.T) {
	store := repotest.NewStore()
	gameID := store.AddGame(models.Game{Title: "Default Weight"})
	merchID := store.AddMerch(models.Merch{Name: "Tote", Weight: "0.5 lbs"})
	svc := newRateService(t, store, RateOptions{}, true)

	got, err := svc.GetRates(context.Background(), RateRequest{
		ToAddress: springfield,
		CartItems: []WeightItem{
			{Kind: models.ProductGame, ProductID: gameID, Quantity: 1},
			{Kind: models.ProductMerch, ProductID: merchID, Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2.5, got.WeightLbs)
	assert.Equal(t, RateSourceCalculated, got.Source)
}

func TestRateService_RequiresPostalCodeAndState(t *testing.T) {
	svc := newRateService(t, repotest.NewStore(), RateOptions{}, true)

	_, err := svc.GetRates(context.Background(), RateRequest{ToAddress: Address{City: "Springfield"}, Weight: lbs(1)})
	require.Error(t, err)
	var verr *apperrors.ErrValidation
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "toAddress.postalCode")
	assert.Contains(t, verr.Fields, "toAddress.state")
}

func TestRateService_RequiresCartItemsOrWeight(t *testing.T) {
	svc := newRateService(t, repotest.NewStore(), RateOptions{}, true)

	for _, req := range []RateRequest{
		{ToAddress: springfield},
		{ToAddress: springfield, Weight: lbs(0)},
	} {
		_, err := svc.GetRates(context.Background(), req)
		var verr *apperrors.ErrValidation
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "required", verr.Fields["cartItems"])
	}
}

func TestRateService_QuoteOrderUsesStoredAddress(t *testing.T) {
	store := repotest.NewStore()
	gameID := store.AddGame(models.Game{Title: "Default Weight"})
	order := &models.Order{
		OrderNumber:     "ORD-RATE",
		CustomerName:    "Jane Doe",
		ShippingAddress: "Jane Doe\n123 Main St\nSpringfield, IL 62704",
		TotalCents:      3000,
		Items:           []models.OrderItem{{Product: models.ProductRef{Kind: models.ProductGame, ID: gameID}, Quantity: 1}},
	}
	require.NoError(t, store.Orders().Create(context.Background(), order))

	provider := &fakeProvider{rates: map[string][]shipstation.Rate{
		"fedex": {rate("FedEx Ground", "fedex_ground", "11.00")},
	}}
	svc := newRateService(t, store, RateOptions{Provider: provider}, true)

	got, err := svc.QuoteOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.WeightLbs)
	assert.Equal(t, RateSourceProvider, got.Source)
	assert.Equal(t, "IL", provider.requests[0].ToState)

	_, err = svc.QuoteOrder(context.Background(), 4242)
	assert.True(t, apperrors.IsNotFound(err))
}
