package sales

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SaleStatus is the lifecycle state of a sale.
type SaleStatus string

const (
	// StatusPending marks an open sale. Only pending sales may hold
	// reservations or be confirmed.
	StatusPending SaleStatus = "PENDING"
	// StatusConfirmed marks a sale whose stock has been posted.
	StatusConfirmed SaleStatus = "CONFIRMED"
	// StatusCancelled marks an abandoned sale.
	StatusCancelled SaleStatus = "CANCELLED"
)

// SalesHeader is one customer transaction.
type SalesHeader struct {
	ID              int64
	TenantID        uuid.UUID
	CustomerID      int64
	ReferenceNumber string
	Status          SaleStatus
	TotalAmount     float64
	CreatedBy       int64
	CreatedAt       time.Time
	ConfirmedAt     time.Time
}

// SalesDetail is one sold line.
type SalesDetail struct {
	ID        int64
	SaleID    int64
	ProductID int64
	Quantity  int64
	Price     float64
	Discount  float64
	Subtotal  float64
}

// Receipt is a printable settlement record against a sale.
type Receipt struct {
	ID              int64
	SaleID          int64
	ReceiptNumber   string
	Amount          float64
	PaymentOptionID int64
	Narration       string
	IssuedAt        time.Time
}

// Return is a customer return. Stock only flows back once approved.
type Return struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	SaleID     int64
	ProductID  int64
	Quantity   int64
	Reason     string
	IsApproved bool
	CreatedBy  int64
	CreatedAt  time.Time
	ApprovedBy int64
	ApprovedAt time.Time
}

var (
	// ErrNotFound indicates a missing sales record.
	ErrNotFound = errors.New("sales: not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("sales: validation failed")
	// ErrSaleNotPending indicates a lifecycle action on a non-pending sale.
	ErrSaleNotPending = errors.New("sales: sale is not pending")
	// ErrSaleNotConfirmed indicates a post-confirmation action on an
	// unconfirmed sale.
	ErrSaleNotConfirmed = errors.New("sales: sale is not confirmed")
	// ErrAlreadyApproved indicates a duplicate return approval.
	ErrAlreadyApproved = errors.New("sales: return already approved")
)
