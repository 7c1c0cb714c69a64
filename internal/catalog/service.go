package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/asiria/asiriapos/internal/stock"
)

// StockSeeder writes the opening ledger entry for a new product.
type StockSeeder interface {
	RecordInitial(ctx context.Context, input stock.InitialInput) (stock.Movement, error)
}

// Service implements catalog use cases.
type Service struct {
	repo   Repository
	seeder StockSeeder
}

// NewService constructs the catalog service.
func NewService(repo Repository, seeder StockSeeder) *Service {
	return &Service{repo: repo, seeder: seeder}
}

// ListProducts returns a page of products plus the unpaged total.
func (s *Service) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	return s.repo.ListProducts(ctx, filters)
}

// GetProduct returns one product.
func (s *Service) GetProduct(ctx context.Context, tenantID uuid.UUID, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("%w: invalid product id", ErrValidation)
	}
	return s.repo.GetProduct(ctx, tenantID, id)
}

// GetProductByBarcode resolves a scanned barcode to a product.
func (s *Service) GetProductByBarcode(ctx context.Context, tenantID uuid.UUID, barcode string) (Product, error) {
	if barcode == "" {
		return Product{}, fmt.Errorf("%w: barcode required", ErrValidation)
	}
	return s.repo.GetProductByBarcode(ctx, tenantID, barcode)
}

// CreateProduct registers a product and seeds its ledger with an INITIAL
// movement carrying the opening stock, so replaying the ledger from the first
// entry always reproduces the live counter.
func (s *Service) CreateProduct(ctx context.Context, product Product, actorID int64) (Product, error) {
	if err := s.validateProduct(product); err != nil {
		return Product{}, err
	}
	if product.Stock < 0 {
		return Product{}, fmt.Errorf("%w: opening stock cannot be negative", ErrValidation)
	}
	product.IsActive = true
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return Product{}, err
	}
	if s.seeder != nil {
		_, err = s.seeder.RecordInitial(ctx, stock.InitialInput{
			TenantID:        created.TenantID,
			ProductID:       created.ID,
			Quantity:        created.Stock,
			ReferenceNumber: fmt.Sprintf("INIT-%d", created.ID),
			ActorID:         actorID,
		})
		if err != nil {
			return Product{}, fmt.Errorf("seed initial stock: %w", err)
		}
	}
	return created, nil
}

// UpdateProduct changes descriptive and pricing fields. Stock is deliberately
// immutable here: quantity only moves through the ledger.
func (s *Service) UpdateProduct(ctx context.Context, product Product) error {
	if product.ID <= 0 {
		return fmt.Errorf("%w: invalid product id", ErrValidation)
	}
	if err := s.validateProduct(product); err != nil {
		return err
	}
	return s.repo.UpdateProduct(ctx, product)
}

// DeactivateProduct soft-deletes a product. The ledger history stays intact.
func (s *Service) DeactivateProduct(ctx context.Context, tenantID uuid.UUID, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid product id", ErrValidation)
	}
	return s.repo.DeactivateProduct(ctx, tenantID, id)
}

func (s *Service) validateProduct(product Product) error {
	if product.Name == "" {
		return fmt.Errorf("%w: name required", ErrValidation)
	}
	if product.Price < 0 || product.Cost < 0 {
		return fmt.Errorf("%w: price and cost cannot be negative", ErrValidation)
	}
	if product.MinQuantity < 0 {
		return fmt.Errorf("%w: minimum quantity cannot be negative", ErrValidation)
	}
	return nil
}

// ListCategories returns the tenant's categories.
func (s *Service) ListCategories(ctx context.Context, tenantID uuid.UUID) ([]Category, error) {
	return s.repo.ListCategories(ctx, tenantID)
}

// CreateCategory adds a category.
func (s *Service) CreateCategory(ctx context.Context, category Category) (Category, error) {
	if category.Name == "" {
		return Category{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	return s.repo.CreateCategory(ctx, category)
}

// UpdateCategory renames a category.
func (s *Service) UpdateCategory(ctx context.Context, category Category) error {
	if category.ID <= 0 || category.Name == "" {
		return fmt.Errorf("%w: id and name required", ErrValidation)
	}
	return s.repo.UpdateCategory(ctx, category)
}

// DeleteCategory removes an unreferenced category.
func (s *Service) DeleteCategory(ctx context.Context, tenantID uuid.UUID, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid category id", ErrValidation)
	}
	return s.repo.DeleteCategory(ctx, tenantID, id)
}

// ListUnits returns the tenant's units of measure.
func (s *Service) ListUnits(ctx context.Context, tenantID uuid.UUID) ([]Unit, error) {
	return s.repo.ListUnits(ctx, tenantID)
}

// CreateUnit adds a unit of measure.
func (s *Service) CreateUnit(ctx context.Context, unit Unit) (Unit, error) {
	if unit.Name == "" {
		return Unit{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	return s.repo.CreateUnit(ctx, unit)
}

// UpdateUnit renames a unit of measure.
func (s *Service) UpdateUnit(ctx context.Context, unit Unit) error {
	if unit.ID <= 0 || unit.Name == "" {
		return fmt.Errorf("%w: id and name required", ErrValidation)
	}
	return s.repo.UpdateUnit(ctx, unit)
}

// DeleteUnit removes an unreferenced unit of measure.
func (s *Service) DeleteUnit(ctx context.Context, tenantID uuid.UUID, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid unit id", ErrValidation)
	}
	return s.repo.DeleteUnit(ctx, tenantID, id)
}
