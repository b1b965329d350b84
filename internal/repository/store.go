package repository

import (
	"context"
	"errors"

	apperrors "order_fulfillment/pkg/errors"

	"gorm.io/gorm"
)

// ErrDuplicate is returned when an insert hits a unique constraint.
var ErrDuplicate = errors.New("duplicate record")

// Store groups the repositories that take part in a single unit of work.
type Store interface {
	Orders() OrderRepository
	Fulfillments() FulfillmentRepository
	Labels() ShippingLabelRepository
	Products() ProductRepository
	PackagingTypes() PackagingTypeRepository
	Settings() SettingsRepository
	Users() UserRepository

	// Transaction runs fn against a Store bound to one database transaction.
	// Returning an error from fn rolls the transaction back.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Orders() OrderRepository                 { return NewOrderRepository(s.db) }
func (s *gormStore) Fulfillments() FulfillmentRepository     { return NewFulfillmentRepository(s.db) }
func (s *gormStore) Labels() ShippingLabelRepository         { return NewShippingLabelRepository(s.db) }
func (s *gormStore) Products() ProductRepository             { return NewProductRepository(s.db) }
func (s *gormStore) PackagingTypes() PackagingTypeRepository { return NewPackagingTypeRepository(s.db) }
func (s *gormStore) Settings() SettingsRepository            { return NewSettingsRepository(s.db) }
func (s *gormStore) Users() UserRepository                   { return NewUserRepository(s.db) }

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func notFound(err error, resource string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(resource, id)
	}
	return err
}

func duplicate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}
