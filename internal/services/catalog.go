package services

import (
	"context"
	"strings"

	"order_fulfillment/internal/models"
	"order_fulfillment/internal/repository"
	apperrors "order_fulfillment/pkg/errors"
)

// ProductInfo is what the fulfillment and shipping code needs to know about a catalog product.
type ProductInfo struct {
	Found          bool
	Name           string
	SKU            string
	Barcode        string
	ImageURL       string
	VariantSKU     string
	VariantBarcode string
	GameWeightOz   *float64
	MerchWeight    string
}

// Codes returns the scannable codes for the product, size variant first.
func (p ProductInfo) Codes() []string {
	var codes []string
	for _, c := range []string{p.VariantSKU, p.VariantBarcode, p.SKU, p.Barcode} {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}

// Matches reports whether a scanned code identifies this product.
func (p ProductInfo) Matches(code string) bool {
	code = strings.TrimSpace(code)
	for _, c := range p.Codes() {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

// Catalog resolves tagged product references against the catalog tables.
type Catalog interface {
	Describe(ctx context.Context, ref models.ProductRef) (ProductInfo, error)
}

type catalog struct {
	products repository.ProductRepository
}

func NewCatalog(products repository.ProductRepository) Catalog {
	return &catalog{products: products}
}

// Describe returns Found=false with a nil error when the product no longer exists.
func (c *catalog) Describe(ctx context.Context, ref models.ProductRef) (ProductInfo, error) {
	switch ref.Kind {
	case models.ProductGame:
		game, err := c.products.GetGame(ctx, ref.ID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return ProductInfo{}, nil
			}
			return ProductInfo{}, err
		}
		return ProductInfo{
			Found:        true,
			Name:         game.Title,
			SKU:          game.SKU,
			Barcode:      game.Barcode,
			ImageURL:     game.ImageURL,
			GameWeightOz: game.WeightOz,
		}, nil

	case models.ProductMerch:
		merch, err := c.products.GetMerch(ctx, ref.ID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return ProductInfo{}, nil
			}
			return ProductInfo{}, err
		}
		info := ProductInfo{
			Found:       true,
			Name:        merch.Name,
			SKU:         merch.SKU,
			Barcode:     merch.Barcode,
			ImageURL:    merch.ImageURL,
			MerchWeight: merch.Weight,
		}
		if ref.Size != "" {
			for _, size := range merch.Sizes {
				if strings.EqualFold(size.Size, ref.Size) {
					info.VariantSKU = size.SKU
					info.VariantBarcode = size.Barcode
					break
				}
			}
		}
		return info, nil
	}
	return ProductInfo{}, apperrors.Validation("unknown product kind %q", ref.Kind)
}
