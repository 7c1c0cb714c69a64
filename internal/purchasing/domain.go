package purchasing

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// PurchaseHeader is a received supplier invoice.
type PurchaseHeader struct {
	ID              int64
	TenantID        uuid.UUID
	SupplierID      int64
	ReferenceNumber string
	PurchaseDate    time.Time
	TotalAmount     float64
	PaidAmount      float64
	CreatedBy       int64
	CreatedAt       time.Time
}

// PurchaseDetail is one received line. Subtotal is quantity*(price-discount).
type PurchaseDetail struct {
	ID         int64
	PurchaseID int64
	ProductID  int64
	Quantity   int64
	Price      float64
	Discount   float64
	Subtotal   float64
}

// Payment settles part of a purchase balance.
type Payment struct {
	ID              int64
	PurchaseID      int64
	Amount          float64
	PaymentOptionID int64
	Note            string
	PaidAt          time.Time
}

// PurchaseOrder is a planned purchase. Converting it creates a real purchase
// exactly once; ConvertedPurchaseID back-references the result.
type PurchaseOrder struct {
	ID                  int64
	TenantID            uuid.UUID
	SupplierID          int64
	ReferenceNumber     string
	OrderDate           time.Time
	ConvertedPurchaseID int64
	CreatedBy           int64
	CreatedAt           time.Time
}

// PurchaseOrderLine is one planned line.
type PurchaseOrderLine struct {
	ID              int64
	PurchaseOrderID int64
	ProductID       int64
	Quantity        int64
	Price           float64
	Discount        float64
}

// GoodsReceipt records goods arriving outside an invoice flow.
type GoodsReceipt struct {
	ID              int64
	TenantID        uuid.UUID
	SupplierID      int64
	ReferenceNumber string
	ReceivedAt      time.Time
	CreatedBy       int64
	CreatedAt       time.Time
}

// GoodsReceiptLine is one received quantity at full unit cost.
type GoodsReceiptLine struct {
	ID             int64
	GoodsReceiptID int64
	ProductID      int64
	Quantity       int64
	UnitCost       float64
}

var (
	// ErrNotFound indicates a missing purchasing record.
	ErrNotFound = errors.New("purchasing: not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("purchasing: validation failed")
	// ErrAlreadyConverted indicates a duplicate purchase order conversion.
	ErrAlreadyConverted = errors.New("purchasing: purchase order already converted")
	// ErrOverpayment indicates a payment exceeding the remaining balance.
	ErrOverpayment = errors.New("purchasing: payment exceeds remaining balance")
)
