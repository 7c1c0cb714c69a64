package stock

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementPurchase represents an inbound purchase or GRN receipt.
	MovementPurchase MovementType = "PURCHASE"
	// MovementSale represents an outbound sale.
	MovementSale MovementType = "SALE"
	// MovementAdjustment represents a manual correction, including reversals.
	MovementAdjustment MovementType = "ADJUSTMENT"
	// MovementReturn represents goods returned by a customer.
	MovementReturn MovementType = "RETURN"
	// MovementDamage represents stock written off as damaged.
	MovementDamage MovementType = "DAMAGE"
	// MovementTransfer is used for per-location transfer legs.
	MovementTransfer MovementType = "TRANSFER"
	// MovementInitial seeds the ledger when a product is created.
	MovementInitial MovementType = "INITIAL"
)

// ReversalPrefix marks reference numbers of compensating movements.
const ReversalPrefix = "REVERSAL-"

// ProductStock is the ledger-owned view of a product: the current quantity
// and cost basis. The catalog module owns the descriptive fields.
type ProductStock struct {
	ProductID   int64
	TenantID    uuid.UUID
	Stock       int64
	MinQuantity int64
	Cost        float64
	AverageCost float64
	UpdatedAt   time.Time
}

// CostBasis returns the weighted average cost, falling back to the unit cost
// for products that never received a costed inbound movement.
func (p ProductStock) CostBasis() float64 {
	if p.AverageCost > 0 {
		return p.AverageCost
	}
	return p.Cost
}

// Movement is one immutable, signed stock change with before/after snapshots.
// PreviousStock and NewStock normally snapshot the product's aggregate
// counter; on TRANSFER legs they snapshot the per-location quantity instead,
// since a transfer moves stock between locations without changing the
// aggregate.
type Movement struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	ProductID       int64
	Quantity        int64
	PreviousStock   int64
	NewStock        int64
	Type            MovementType
	ReferenceNumber string
	Reason          string
	CreatedBy       int64
	CreatedAt       time.Time
}

// Adjustment is a proposed stock correction that only affects stock once approved.
type Adjustment struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	ProductID        int64
	QuantityAdjusted int64
	Reason           string
	ReferenceNumber  string
	IsApproved       bool
	CreatedBy        int64
	CreatedAt        time.Time
	ApprovedBy       int64
	ApprovedAt       time.Time
}

// AlertType enumerates stock alert categories.
type AlertType string

const (
	// AlertLowStock fires when stock drops to or below the reorder threshold.
	AlertLowStock AlertType = "LOW_STOCK"
	// AlertOutOfStock fires when stock drops to or below zero.
	AlertOutOfStock AlertType = "OUT_OF_STOCK"
)

// Alert tracks a threshold breach. At most one active alert exists per
// (product, type); resolution is always an explicit manual action.
type Alert struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	ProductID  int64
	Type       AlertType
	Message    string
	IsActive   bool
	CreatedAt  time.Time
	ResolvedBy int64
	ResolvedAt time.Time
}

// Location is a physical stock location (store, warehouse, shelf area).
type Location struct {
	ID        int64
	TenantID  uuid.UUID
	Code      string
	Name      string
	CreatedAt time.Time
}

// LocationStock holds the per-location quantity for a product. It is tracked
// independently of the aggregate ProductStock counter.
type LocationStock struct {
	ProductID  int64
	LocationID int64
	Quantity   int64
	UpdatedAt  time.Time
}

// Transfer moves quantity between two locations of the same product.
type Transfer struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ProductID      int64
	FromLocationID int64
	ToLocationID   int64
	Quantity       int64
	Reason         string
	CreatedBy      int64
	CreatedAt      time.Time
}

// Reservation soft-holds stock for a pending sale without mutating it.
type Reservation struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	SaleID       int64
	SaleDetailID int64
	ProductID    int64
	Quantity     int64
	IsActive     bool
	ExpiresAt    time.Time
	CreatedAt    time.Time
	ReleasedAt   time.Time
}

// MovementFilter narrows ledger queries.
type MovementFilter struct {
	TenantID  uuid.UUID
	ProductID int64
	Type      MovementType
	From      time.Time
	To        time.Time
	Limit     int
}

// AlertFilter narrows alert queries.
type AlertFilter struct {
	TenantID   uuid.UUID
	ProductID  int64
	ActiveOnly bool
	Limit      int
}

var (
	// ErrNotFound indicates a referenced product, location, alert or adjustment is absent.
	ErrNotFound = errors.New("stock: not found")
	// ErrValidation indicates malformed or contradictory input.
	ErrValidation = errors.New("stock: validation failed")
	// ErrInvalidQuantity indicates a zero or negative quantity where a positive one is required.
	ErrInvalidQuantity = errors.New("stock: quantity must be positive")
	// ErrInsufficientStock indicates an outbound movement exceeding available stock.
	ErrInsufficientStock = errors.New("stock: insufficient stock")
	// ErrInsufficientFreeStock indicates a reservation exceeding stock minus active holds.
	ErrInsufficientFreeStock = errors.New("stock: insufficient free stock")
	// ErrAlreadyApproved indicates a duplicate adjustment approval attempt.
	ErrAlreadyApproved = errors.New("stock: adjustment already approved")
	// ErrAlreadyResolved indicates a duplicate alert resolution attempt.
	ErrAlreadyResolved = errors.New("stock: alert already resolved")
	// ErrSaleNotPending indicates a reservation against a sale that already left PENDING.
	ErrSaleNotPending = errors.New("stock: sale is not pending")
	// ErrDuplicateAlert indicates an active alert already exists for (product, type).
	ErrDuplicateAlert = errors.New("stock: active alert already exists")
)
