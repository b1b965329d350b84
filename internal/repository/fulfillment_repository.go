package repository

import (
	"context"

	"order_fulfillment/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FulfillmentRepository interface {
	Create(ctx context.Context, fulfillment *models.Fulfillment) error
	GetByOrderID(ctx context.Context, orderID uint) (*models.Fulfillment, error)
	// LockByOrderID reads the fulfillment row with a row lock held until the
	// surrounding transaction ends. Outside a transaction it behaves like GetByOrderID.
	LockByOrderID(ctx context.Context, orderID uint) (*models.Fulfillment, error)
	Update(ctx context.Context, fulfillment *models.Fulfillment) error

	CreateScan(ctx context.Context, scan *models.FulfillmentScan) error
	ListScans(ctx context.Context, fulfillmentID uint) ([]models.FulfillmentScan, error)
	SetScanPackage(ctx context.Context, scanIDs []uint, packageID *uint) error

	CreatePackage(ctx context.Context, pkg *models.Package) error
	GetPackage(ctx context.Context, fulfillmentID, packageID uint) (*models.Package, error)
	ListPackages(ctx context.Context, fulfillmentID uint) ([]models.Package, error)
}

type fulfillmentRepository struct {
	db *gorm.DB
}

func NewFulfillmentRepository(db *gorm.DB) FulfillmentRepository {
	return &fulfillmentRepository{db: db}
}

func (r *fulfillmentRepository) Create(ctx context.Context, fulfillment *models.Fulfillment) error {
	return duplicate(r.db.WithContext(ctx).Create(fulfillment).Error)
}

func (r *fulfillmentRepository) GetByOrderID(ctx context.Context, orderID uint) (*models.Fulfillment, error) {
	var fulfillment models.Fulfillment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&fulfillment).Error
	if err != nil {
		return nil, notFound(err, "fulfillment", orderID)
	}
	return &fulfillment, nil
}

func (r *fulfillmentRepository) LockByOrderID(ctx context.Context, orderID uint) (*models.Fulfillment, error) {
	var fulfillment models.Fulfillment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		First(&fulfillment).Error
	if err != nil {
		return nil, notFound(err, "fulfillment", orderID)
	}
	return &fulfillment, nil
}

func (r *fulfillmentRepository) Update(ctx context.Context, fulfillment *models.Fulfillment) error {
	return r.db.WithContext(ctx).Omit("Scans", "Packages").Save(fulfillment).Error
}

func (r *fulfillmentRepository) CreateScan(ctx context.Context, scan *models.FulfillmentScan) error {
	return r.db.WithContext(ctx).Create(scan).Error
}

func (r *fulfillmentRepository) ListScans(ctx context.Context, fulfillmentID uint) ([]models.FulfillmentScan, error) {
	var scans []models.FulfillmentScan
	err := r.db.WithContext(ctx).Where("fulfillment_id = ?", fulfillmentID).Order("id ASC").Find(&scans).Error
	return scans, err
}

func (r *fulfillmentRepository) SetScanPackage(ctx context.Context, scanIDs []uint, packageID *uint) error {
	if len(scanIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.FulfillmentScan{}).
		Where("id IN ?", scanIDs).
		Update("package_id", packageID).Error
}

func (r *fulfillmentRepository) CreatePackage(ctx context.Context, pkg *models.Package) error {
	return duplicate(r.db.WithContext(ctx).Create(pkg).Error)
}

func (r *fulfillmentRepository) GetPackage(ctx context.Context, fulfillmentID, packageID uint) (*models.Package, error) {
	var pkg models.Package
	err := r.db.WithContext(ctx).
		Where("fulfillment_id = ? AND id = ?", fulfillmentID, packageID).
		First(&pkg).Error
	if err != nil {
		return nil, notFound(err, "package", packageID)
	}
	return &pkg, nil
}

func (r *fulfillmentRepository) ListPackages(ctx context.Context, fulfillmentID uint) ([]models.Package, error) {
	var packages []models.Package
	err := r.db.WithContext(ctx).Where("fulfillment_id = ?", fulfillmentID).Order("box_number ASC").Find(&packages).Error
	return packages, err
}
