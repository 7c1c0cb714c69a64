package registry

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Customer is a buyer on record.
type Customer struct {
	ID        int64
	TenantID  uuid.UUID
	Name      string
	Phone     string
	Email     string
	Address   string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Supplier is a vendor purchases are raised against.
type Supplier struct {
	ID            int64
	TenantID      uuid.UUID
	Name          string
	ContactPerson string
	Phone         string
	Email         string
	Address       string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PaymentOption is a tender type accepted at the till.
type PaymentOption struct {
	ID        int64
	TenantID  uuid.UUID
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

// ExpenseCategory groups operating expenses for reporting.
type ExpenseCategory struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Expense is an operating cost paid outside the stock ledger, such as rent
// or utilities.
type Expense struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	CategoryID      uuid.UUID
	PaymentOptionID int64
	Name            string
	Amount          float64
	Description     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BusinessProfile is the tenant's storefront identity. At most one exists
// per tenant.
type BusinessProfile struct {
	TenantID     uuid.UUID
	StoreName    string
	CompanyName  string
	Address      string
	Country      string
	BusinessType string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ListFilters narrows registry listings.
type ListFilters struct {
	TenantID uuid.UUID
	Search   string
	Page     int
	PageSize int
}

var (
	// ErrNotFound indicates a missing registry record.
	ErrNotFound = errors.New("registry: not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("registry: validation failed")
	// ErrInUse indicates a record referenced by live transactions.
	ErrInUse = errors.New("registry: record is in use")
)
