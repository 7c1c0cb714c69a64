package catalog

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asiria/asiriapos/internal/platform/db"
)

// Repository is the catalog persistence port.
type Repository interface {
	ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error)
	GetProduct(ctx context.Context, tenantID uuid.UUID, id int64) (Product, error)
	GetProductByBarcode(ctx context.Context, tenantID uuid.UUID, barcode string) (Product, error)
	CreateProduct(ctx context.Context, product Product) (Product, error)
	UpdateProduct(ctx context.Context, product Product) error
	DeactivateProduct(ctx context.Context, tenantID uuid.UUID, id int64) error

	ListCategories(ctx context.Context, tenantID uuid.UUID) ([]Category, error)
	CreateCategory(ctx context.Context, category Category) (Category, error)
	UpdateCategory(ctx context.Context, category Category) error
	DeleteCategory(ctx context.Context, tenantID uuid.UUID, id int64) error

	ListUnits(ctx context.Context, tenantID uuid.UUID) ([]Unit, error)
	CreateUnit(ctx context.Context, unit Unit) (Unit, error)
	UpdateUnit(ctx context.Context, unit Unit) error
	DeleteUnit(ctx context.Context, tenantID uuid.UUID, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed catalog repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const productColumns = `id, user_client_id, name, COALESCE(barcode, ''), category_id, unit_id, price, cost, stock, min_quantity, is_active, created_at, updated_at`

func (r *repository) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE user_client_id = $1`
	countQuery := `SELECT COUNT(*) FROM products WHERE user_client_id = $1`
	args := []any{filters.TenantID}

	appendCond := func(cond string, value any) {
		args = append(args, value)
		placeholder := ` $` + strconv.Itoa(len(args))
		query += ` AND ` + cond + placeholder
		countQuery += ` AND ` + cond + placeholder
	}
	if filters.CategoryID != 0 {
		appendCond("category_id =", filters.CategoryID)
	}
	if filters.Search != "" {
		appendCond("(name ILIKE", "%"+filters.Search+"%")
		query += ` OR barcode ILIKE $` + strconv.Itoa(len(args)) + `)`
		countQuery += ` OR barcode ILIKE $` + strconv.Itoa(len(args)) + `)`
	}
	if filters.ActiveOnly {
		appendCond("is_active =", true)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := 0
	if filters.Page > 1 {
		offset = (filters.Page - 1) * limit
	}
	args = append(args, limit)
	query += ` ORDER BY name ASC LIMIT $` + strconv.Itoa(len(args))
	args = append(args, offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Barcode, &p.CategoryID, &p.UnitID,
			&p.Price, &p.Cost, &p.Stock, &p.MinQuantity, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repository) GetProduct(ctx context.Context, tenantID uuid.UUID, id int64) (Product, error) {
	return r.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 AND user_client_id = $2`, id, tenantID)
}

func (r *repository) GetProductByBarcode(ctx context.Context, tenantID uuid.UUID, barcode string) (Product, error) {
	return r.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE barcode = $1 AND user_client_id = $2`, barcode, tenantID)
}

func (r *repository) getProduct(ctx context.Context, query string, args ...any) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, query, args...).Scan(&p.ID, &p.TenantID, &p.Name, &p.Barcode, &p.CategoryID, &p.UnitID,
		&p.Price, &p.Cost, &p.Stock, &p.MinQuantity, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func (r *repository) CreateProduct(ctx context.Context, product Product) (Product, error) {
	now := time.Now().UTC()
	err := r.pool.QueryRow(ctx, `INSERT INTO products (user_client_id, name, barcode, category_id, unit_id, price, cost, stock, min_quantity, is_active, created_at, updated_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $11) RETURNING id`,
		product.TenantID, product.Name, product.Barcode, product.CategoryID, product.UnitID,
		product.Price, product.Cost, product.Stock, product.MinQuantity, product.IsActive, now).Scan(&product.ID)
	if db.IsUniqueViolation(err) {
		return Product{}, ErrDuplicateBarcode
	}
	if err != nil {
		return Product{}, err
	}
	product.CreatedAt = now
	product.UpdatedAt = now
	return product, nil
}

func (r *repository) UpdateProduct(ctx context.Context, product Product) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET name = $1, barcode = NULLIF($2, ''), category_id = $3, unit_id = $4, price = $5, cost = $6, min_quantity = $7, is_active = $8, updated_at = $9
WHERE id = $10 AND user_client_id = $11`,
		product.Name, product.Barcode, product.CategoryID, product.UnitID, product.Price,
		product.Cost, product.MinQuantity, product.IsActive, time.Now().UTC(), product.ID, product.TenantID)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateBarcode
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeactivateProduct(ctx context.Context, tenantID uuid.UUID, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET is_active = FALSE, updated_at = $1 WHERE id = $2 AND user_client_id = $3`,
		time.Now().UTC(), id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ListCategories(ctx context.Context, tenantID uuid.UUID) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_client_id, name, COALESCE(description, ''), created_at
FROM categories WHERE user_client_id = $1 ORDER BY name ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *repository) CreateCategory(ctx context.Context, category Category) (Category, error) {
	now := time.Now().UTC()
	err := r.pool.QueryRow(ctx, `INSERT INTO categories (user_client_id, name, description, created_at) VALUES ($1, $2, NULLIF($3, ''), $4) RETURNING id`,
		category.TenantID, category.Name, category.Description, now).Scan(&category.ID)
	if err != nil {
		return Category{}, err
	}
	category.CreatedAt = now
	return category, nil
}

func (r *repository) UpdateCategory(ctx context.Context, category Category) error {
	tag, err := r.pool.Exec(ctx, `UPDATE categories SET name = $1, description = NULLIF($2, '') WHERE id = $3 AND user_client_id = $4`,
		category.Name, category.Description, category.ID, category.TenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteCategory(ctx context.Context, tenantID uuid.UUID, id int64) error {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE category_id = $1 AND user_client_id = $2`, id, tenantID).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return ErrInUse
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1 AND user_client_id = $2`, id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ListUnits(ctx context.Context, tenantID uuid.UUID) ([]Unit, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_client_id, name, COALESCE(abbreviation, ''), created_at
FROM units WHERE user_client_id = $1 ORDER BY name ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.TenantID, &u.Name, &u.Abbreviation, &u.CreatedAt); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (r *repository) CreateUnit(ctx context.Context, unit Unit) (Unit, error) {
	now := time.Now().UTC()
	err := r.pool.QueryRow(ctx, `INSERT INTO units (user_client_id, name, abbreviation, created_at) VALUES ($1, $2, NULLIF($3, ''), $4) RETURNING id`,
		unit.TenantID, unit.Name, unit.Abbreviation, now).Scan(&unit.ID)
	if err != nil {
		return Unit{}, err
	}
	unit.CreatedAt = now
	return unit, nil
}

func (r *repository) UpdateUnit(ctx context.Context, unit Unit) error {
	tag, err := r.pool.Exec(ctx, `UPDATE units SET name = $1, abbreviation = NULLIF($2, '') WHERE id = $3 AND user_client_id = $4`,
		unit.Name, unit.Abbreviation, unit.ID, unit.TenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteUnit(ctx context.Context, tenantID uuid.UUID, id int64) error {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE unit_id = $1 AND user_client_id = $2`, id, tenantID).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return ErrInUse
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM units WHERE id = $1 AND user_client_id = $2`, id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
