package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Product is the sellable item master record. The stock, cost-average and
// alert state belong to the stock ledger; catalog owns the descriptive and
// pricing fields.
type Product struct {
	ID          int64
	TenantID    uuid.UUID
	Name        string
	Barcode     string
	CategoryID  int64
	UnitID      int64
	Price       float64
	Cost        float64
	Stock       int64
	MinQuantity int64
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category groups products for navigation and reporting.
type Category struct {
	ID          int64
	TenantID    uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
}

// Unit is the unit of measure a product is counted in.
type Unit struct {
	ID           int64
	TenantID     uuid.UUID
	Name         string
	Abbreviation string
	CreatedAt    time.Time
}

// ListFilters narrows product listings.
type ListFilters struct {
	TenantID   uuid.UUID
	CategoryID int64
	Search     string
	ActiveOnly bool
	Page       int
	Limit      int
}

var (
	// ErrNotFound indicates a missing catalog record.
	ErrNotFound = errors.New("catalog: not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("catalog: validation failed")
	// ErrDuplicateBarcode indicates a barcode collision within the tenant.
	ErrDuplicateBarcode = errors.New("catalog: barcode already in use")
	// ErrInUse indicates a category or unit still referenced by products.
	ErrInUse = errors.New("catalog: record is referenced by products")
)
