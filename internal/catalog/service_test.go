package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/asiria/asiriapos/internal/stock"
)

var testTenant = uuid.MustParse("6f1c32b4-54c9-4da5-9bfe-6f1f50b9a821")

type memCatalogRepo struct {
	nextID     int64
	products   map[int64]Product
	categories map[int64]Category
	units      map[int64]Unit
}

func newMemCatalogRepo() *memCatalogRepo {
	return &memCatalogRepo{
		products:   make(map[int64]Product),
		categories: make(map[int64]Category),
		units:      make(map[int64]Unit),
	}
}

func (r *memCatalogRepo) next() int64 {
	r.nextID++
	return r.nextID
}

func (r *memCatalogRepo) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	var out []Product
	for _, p := range r.products {
		if p.TenantID != filters.TenantID {
			continue
		}
		if filters.CategoryID != 0 && p.CategoryID != filters.CategoryID {
			continue
		}
		if filters.ActiveOnly && !p.IsActive {
			continue
		}
		if filters.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filters.Search)) {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memCatalogRepo) GetProduct(ctx context.Context, tenantID uuid.UUID, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok || p.TenantID != tenantID {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (r *memCatalogRepo) GetProductByBarcode(ctx context.Context, tenantID uuid.UUID, barcode string) (Product, error) {
	for _, p := range r.products {
		if p.TenantID == tenantID && p.Barcode == barcode {
			return p, nil
		}
	}
	return Product{}, ErrNotFound
}

func (r *memCatalogRepo) CreateProduct(ctx context.Context, product Product) (Product, error) {
	if product.Barcode != "" {
		for _, p := range r.products {
			if p.TenantID == product.TenantID && p.Barcode == product.Barcode {
				return Product{}, ErrDuplicateBarcode
			}
		}
	}
	product.ID = r.next()
	r.products[product.ID] = product
	return product, nil
}

func (r *memCatalogRepo) UpdateProduct(ctx context.Context, product Product) error {
	existing, ok := r.products[product.ID]
	if !ok || existing.TenantID != product.TenantID {
		return ErrNotFound
	}
	product.Stock = existing.Stock
	r.products[product.ID] = product
	return nil
}

func (r *memCatalogRepo) DeactivateProduct(ctx context.Context, tenantID uuid.UUID, id int64) error {
	p, ok := r.products[id]
	if !ok || p.TenantID != tenantID {
		return ErrNotFound
	}
	p.IsActive = false
	r.products[id] = p
	return nil
}

func (r *memCatalogRepo) ListCategories(ctx context.Context, tenantID uuid.UUID) ([]Category, error) {
	var out []Category
	for _, c := range r.categories {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memCatalogRepo) CreateCategory(ctx context.Context, category Category) (Category, error) {
	category.ID = r.next()
	r.categories[category.ID] = category
	return category, nil
}

func (r *memCatalogRepo) UpdateCategory(ctx context.Context, category Category) error {
	if _, ok := r.categories[category.ID]; !ok {
		return ErrNotFound
	}
	r.categories[category.ID] = category
	return nil
}

func (r *memCatalogRepo) DeleteCategory(ctx context.Context, tenantID uuid.UUID, id int64) error {
	for _, p := range r.products {
		if p.CategoryID == id {
			return ErrInUse
		}
	}
	if _, ok := r.categories[id]; !ok {
		return ErrNotFound
	}
	delete(r.categories, id)
	return nil
}

func (r *memCatalogRepo) ListUnits(ctx context.Context, tenantID uuid.UUID) ([]Unit, error) {
	var out []Unit
	for _, u := range r.units {
		if u.TenantID == tenantID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *memCatalogRepo) CreateUnit(ctx context.Context, unit Unit) (Unit, error) {
	unit.ID = r.next()
	r.units[unit.ID] = unit
	return unit, nil
}

func (r *memCatalogRepo) UpdateUnit(ctx context.Context, unit Unit) error {
	if _, ok := r.units[unit.ID]; !ok {
		return ErrNotFound
	}
	r.units[unit.ID] = unit
	return nil
}

func (r *memCatalogRepo) DeleteUnit(ctx context.Context, tenantID uuid.UUID, id int64) error {
	for _, p := range r.products {
		if p.UnitID == id {
			return ErrInUse
		}
	}
	if _, ok := r.units[id]; !ok {
		return ErrNotFound
	}
	delete(r.units, id)
	return nil
}

type capturedSeeder struct {
	inputs []stock.InitialInput
}

func (c *capturedSeeder) RecordInitial(ctx context.Context, input stock.InitialInput) (stock.Movement, error) {
	c.inputs = append(c.inputs, input)
	return stock.Movement{ProductID: input.ProductID, Quantity: input.Quantity, Type: stock.MovementInitial}, nil
}

func TestCreateProductSeedsInitialMovement(t *testing.T) {
	repo := newMemCatalogRepo()
	seeder := &capturedSeeder{}
	service := NewService(repo, seeder)

	product, err := service.CreateProduct(context.Background(), Product{
		TenantID:    testTenant,
		Name:        "Arabica beans 1kg",
		Barcode:     "8991234500017",
		CategoryID:  1,
		UnitID:      1,
		Price:       95000,
		Cost:        70000,
		Stock:       25,
		MinQuantity: 5,
	}, 7)
	require.NoError(t, err)
	require.True(t, product.IsActive)

	require.Len(t, seeder.inputs, 1)
	require.Equal(t, product.ID, seeder.inputs[0].ProductID)
	require.Equal(t, int64(25), seeder.inputs[0].Quantity)
	require.Equal(t, int64(7), seeder.inputs[0].ActorID)
}

func TestCreateProductValidates(t *testing.T) {
	service := NewService(newMemCatalogRepo(), &capturedSeeder{})
	ctx := context.Background()

	_, err := service.CreateProduct(ctx, Product{TenantID: testTenant}, 1)
	require.ErrorIs(t, err, ErrValidation)

	_, err = service.CreateProduct(ctx, Product{TenantID: testTenant, Name: "x", Price: -1}, 1)
	require.ErrorIs(t, err, ErrValidation)

	_, err = service.CreateProduct(ctx, Product{TenantID: testTenant, Name: "x", Stock: -3}, 1)
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateProductDuplicateBarcode(t *testing.T) {
	repo := newMemCatalogRepo()
	service := NewService(repo, &capturedSeeder{})
	ctx := context.Background()

	_, err := service.CreateProduct(ctx, Product{TenantID: testTenant, Name: "a", Barcode: "123"}, 1)
	require.NoError(t, err)
	_, err = service.CreateProduct(ctx, Product{TenantID: testTenant, Name: "b", Barcode: "123"}, 1)
	require.ErrorIs(t, err, ErrDuplicateBarcode)
}

func TestUpdateProductNeverTouchesStock(t *testing.T) {
	repo := newMemCatalogRepo()
	service := NewService(repo, &capturedSeeder{})
	ctx := context.Background()

	product, err := service.CreateProduct(ctx, Product{TenantID: testTenant, Name: "a", Stock: 10}, 1)
	require.NoError(t, err)

	err = service.UpdateProduct(ctx, Product{
		ID:       product.ID,
		TenantID: testTenant,
		Name:     "renamed",
		Price:    15,
		IsActive: true,
	})
	require.NoError(t, err)

	stored, err := service.GetProduct(ctx, testTenant, product.ID)
	require.NoError(t, err)
	require.Equal(t, "renamed", stored.Name)
	require.Equal(t, int64(10), stored.Stock)
}

func TestDeactivateProductKeepsRecord(t *testing.T) {
	repo := newMemCatalogRepo()
	service := NewService(repo, &capturedSeeder{})
	ctx := context.Background()

	product, err := service.CreateProduct(ctx, Product{TenantID: testTenant, Name: "a"}, 1)
	require.NoError(t, err)
	require.NoError(t, service.DeactivateProduct(ctx, testTenant, product.ID))

	stored, err := service.GetProduct(ctx, testTenant, product.ID)
	require.NoError(t, err)
	require.False(t, stored.IsActive)
}

func TestDeleteCategoryInUse(t *testing.T) {
	repo := newMemCatalogRepo()
	service := NewService(repo, &capturedSeeder{})
	ctx := context.Background()

	category, err := service.CreateCategory(ctx, Category{TenantID: testTenant, Name: "Coffee"})
	require.NoError(t, err)
	_, err = service.CreateProduct(ctx, Product{TenantID: testTenant, Name: "a", CategoryID: category.ID}, 1)
	require.NoError(t, err)

	err = service.DeleteCategory(ctx, testTenant, category.ID)
	require.ErrorIs(t, err, ErrInUse)
}

func TestGetProductByBarcode(t *testing.T) {
	repo := newMemCatalogRepo()
	service := NewService(repo, &capturedSeeder{})
	ctx := context.Background()

	created, err := service.CreateProduct(ctx, Product{TenantID: testTenant, Name: "a", Barcode: "999"}, 1)
	require.NoError(t, err)

	found, err := service.GetProductByBarcode(ctx, testTenant, "999")
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)

	_, err = service.GetProductByBarcode(ctx, testTenant, "")
	require.ErrorIs(t, err, ErrValidation)
}
