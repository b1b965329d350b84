package services

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"

	"order_fulfillment/internal/models"
	apperrors "order_fulfillment/pkg/errors"

	"go.uber.org/zap"
)

const (
	DefaultGameWeightOz    = 32.0
	DefaultApparelWeightOz = 8.0
	MinShipmentWeightLbs   = 1.0
	ouncesPerPound         = 16.0
	gramsPerOunce          = 28.349523125
)

// DefaultDimensions is the parcel size quoted when nothing better is known.
var DefaultDimensions = Dimensions{Length: 12, Width: 9, Height: 4, Units: "inches"}

type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Units  string  `json:"units"`
}

// WeightItem is one cart or order line to weigh.
type WeightItem struct {
	Kind      models.ProductKind `json:"type"`
	ProductID uint               `json:"id"`
	Size      string             `json:"size,omitempty"`
	Quantity  int                `json:"quantity"`
}

type ShipmentWeight struct {
	TotalOunces float64    `json:"totalOunces"`
	WeightLbs   float64    `json:"weightLbs"`
	Dimensions  Dimensions `json:"dimensions"`
}

type WeightResolver interface {
	Resolve(ctx context.Context, items []WeightItem) (*ShipmentWeight, error)
	ItemWeightOz(ctx context.Context, ref models.ProductRef) float64
}

type weightResolver struct {
	catalog Catalog
	log     *zap.Logger
}

func NewWeightResolver(catalog Catalog, log *zap.Logger) WeightResolver {
	return &weightResolver{catalog: catalog, log: log}
}

// WeightItemsFromOrder converts order lines to resolver input.
func WeightItemsFromOrder(items []models.OrderItem) []WeightItem {
	out := make([]WeightItem, 0, len(items))
	for _, it := range items {
		out = append(out, WeightItem{Kind: it.Product.Kind, ProductID: it.Product.ID, Size: it.Product.Size, Quantity: it.Quantity})
	}
	return out
}

func (r *weightResolver) Resolve(ctx context.Context, items []WeightItem) (*ShipmentWeight, error) {
	var totalOz float64
	for i, item := range items {
		if !item.Kind.IsValid() {
			return nil, &apperrors.ErrValidation{
				Message: "invalid cart item type",
				Fields:  map[string]string{"cartItems[" + strconv.Itoa(i) + "].type": "must be game or merch"},
			}
		}
		if item.Quantity <= 0 {
			return nil, &apperrors.ErrValidation{
				Message: "invalid cart item quantity",
				Fields:  map[string]string{"cartItems[" + strconv.Itoa(i) + "].quantity": "must be positive"},
			}
		}
		ref := models.ProductRef{Kind: item.Kind, ID: item.ProductID, Size: item.Size}
		totalOz += r.ItemWeightOz(ctx, ref) * float64(item.Quantity)
	}

	return &ShipmentWeight{
		TotalOunces: totalOz,
		WeightLbs:   ShippableWeightLbs(totalOz),
		Dimensions:  DefaultDimensions,
	}, nil
}

// ItemWeightOz never fails: a missing product or a lookup error falls back to the category default.
func (r *weightResolver) ItemWeightOz(ctx context.Context, ref models.ProductRef) float64 {
	info, err := r.catalog.Describe(ctx, ref)
	if err != nil {
		r.log.Warn("Catalog lookup failed, using default weight",
			zap.String("kind", string(ref.Kind)), zap.Uint("product_id", ref.ID), zap.Error(err))
	}

	switch ref.Kind {
	case models.ProductGame:
		if info.GameWeightOz != nil && *info.GameWeightOz > 0 {
			return *info.GameWeightOz
		}
		return DefaultGameWeightOz
	default:
		if oz, ok := ParseWeightOz(info.MerchWeight); ok {
			return oz
		}
		return DefaultApparelWeightOz
	}
}

var weightPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?|\.\d+)\s*([a-z]*)\.?$`)

// ParseWeightOz parses free-text weights such as "8 oz", "0.5 lbs" or "12".
// A bare number is read as ounces. ok is false when no positive number can be read
// or the unit is not a known weight unit.
func ParseWeightOz(raw string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, false
	}
	m := weightPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil || value <= 0 {
		return 0, false
	}

	return unitToOunces(value, m[2])
}

// unitToOunces converts value in units to ounces. No unit means ounces; ok is false for a unit we do not know.
func unitToOunces(value float64, units string) (float64, bool) {
	switch strings.ToLower(strings.TrimSpace(units)) {
	case "", "oz", "ozs", "ounce", "ounces":
		return value, true
	case "lb", "lbs", "pound", "pounds":
		return value * ouncesPerPound, true
	case "g", "gram", "grams":
		return value / gramsPerOunce, true
	case "kg", "kgs", "kilogram", "kilograms":
		return value * 1000 / gramsPerOunce, true
	}
	return 0, false
}

// ShippableWeightLbs converts ounces to pounds, applies the 1 lb carrier minimum
// and rounds to one decimal place.
func ShippableWeightLbs(totalOz float64) float64 {
	lbs := totalOz / ouncesPerPound
	if lbs < MinShipmentWeightLbs {
		lbs = MinShipmentWeightLbs
	}
	return math.Round(lbs*10) / 10
}
