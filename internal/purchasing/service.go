package purchasing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/asiria/asiriapos/internal/stock"
)

// StockPoster is the slice of the stock engine purchasing needs. Inbound
// postings run on the repository's transaction so the document and its stock
// effects commit together; AuditPosted fires after that commit.
type StockPoster interface {
	PostInboundBatch(ctx context.Context, tx stock.TxRepository, inputs []stock.InboundInput) ([]stock.Movement, error)
	AuditPosted(ctx context.Context, movements []stock.Movement)
	Reverse(ctx context.Context, input stock.ReversalInput) (stock.Movement, error)
}

// Service implements purchasing use cases.
type Service struct {
	repo  Repository
	stock StockPoster
}

// NewService constructs the purchasing service.
func NewService(repo Repository, poster StockPoster) *Service {
	return &Service{repo: repo, stock: poster}
}

// PurchaseLineInput is one incoming invoice line.
type PurchaseLineInput struct {
	ProductID int64
	Quantity  int64
	Price     float64
	Discount  float64
}

// ReceivePurchaseInput creates a purchase with its lines.
type ReceivePurchaseInput struct {
	TenantID        uuid.UUID
	SupplierID      int64
	ReferenceNumber string
	Lines           []PurchaseLineInput
	ActorID         int64
}

// ReceivePurchase persists the invoice and posts one inbound PURCHASE
// movement per line, all in one transaction: a line that cannot post rolls
// the whole invoice back. The unit cost entering the weighted average is the
// line price net of its discount.
func (s *Service) ReceivePurchase(ctx context.Context, input ReceivePurchaseInput) (PurchaseHeader, []PurchaseDetail, error) {
	if err := validateLines(input.Lines); err != nil {
		return PurchaseHeader{}, nil, err
	}
	if input.ReferenceNumber == "" {
		return PurchaseHeader{}, nil, fmt.Errorf("%w: reference number required", ErrValidation)
	}
	details := make([]PurchaseDetail, 0, len(input.Lines))
	for _, l := range input.Lines {
		details = append(details, PurchaseDetail{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Price:     l.Price,
			Discount:  l.Discount,
		})
	}
	var movements []stock.Movement
	header, details, err := s.repo.CreatePurchase(ctx, PurchaseHeader{
		TenantID:        input.TenantID,
		SupplierID:      input.SupplierID,
		ReferenceNumber: input.ReferenceNumber,
		CreatedBy:       input.ActorID,
	}, details, s.inboundStage(&movements))
	if err != nil {
		return PurchaseHeader{}, nil, err
	}
	s.stock.AuditPosted(ctx, movements)
	return header, details, nil
}

// inboundStage posts the PURCHASE movements for a document's lines inside
// the repository transaction and captures them for the post-commit hooks.
func (s *Service) inboundStage(movements *[]stock.Movement) LedgerStage {
	return func(ctx context.Context, tx stock.TxRepository, header PurchaseHeader, details []PurchaseDetail) error {
		inputs := make([]stock.InboundInput, 0, len(details))
		for _, d := range details {
			inputs = append(inputs, stock.InboundInput{
				TenantID:        header.TenantID,
				ProductID:       d.ProductID,
				Quantity:        d.Quantity,
				UnitCost:        d.Price,
				Discount:        d.Discount,
				Type:            stock.MovementPurchase,
				ReferenceNumber: header.ReferenceNumber,
				Reason:          fmt.Sprintf("Purchase %s", header.ReferenceNumber),
				ActorID:         header.CreatedBy,
			})
		}
		posted, err := s.stock.PostInboundBatch(ctx, tx, inputs)
		if err != nil {
			return fmt.Errorf("post purchase lines for %s: %w", header.ReferenceNumber, err)
		}
		*movements = posted
		return nil
	}
}

// AddPurchaseDetail appends a line to an existing purchase; the line and its
// inbound movement commit together.
func (s *Service) AddPurchaseDetail(ctx context.Context, tenantID uuid.UUID, detail PurchaseDetail, actorID int64) (PurchaseDetail, error) {
	if detail.Quantity <= 0 {
		return PurchaseDetail{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if detail.Price < 0 || detail.Discount < 0 {
		return PurchaseDetail{}, fmt.Errorf("%w: price and discount cannot be negative", ErrValidation)
	}
	var movements []stock.Movement
	created, err := s.repo.AddPurchaseDetail(ctx, tenantID, detail,
		func(ctx context.Context, tx stock.TxRepository, detail PurchaseDetail, header PurchaseHeader) error {
			posted, err := s.stock.PostInboundBatch(ctx, tx, []stock.InboundInput{{
				TenantID:        tenantID,
				ProductID:       detail.ProductID,
				Quantity:        detail.Quantity,
				UnitCost:        detail.Price,
				Discount:        detail.Discount,
				Type:            stock.MovementPurchase,
				ReferenceNumber: header.ReferenceNumber,
				Reason:          fmt.Sprintf("Purchase %s", header.ReferenceNumber),
				ActorID:         actorID,
			}})
			if err != nil {
				return err
			}
			movements = posted
			return nil
		})
	if err != nil {
		return PurchaseDetail{}, err
	}
	s.stock.AuditPosted(ctx, movements)
	return created, nil
}

// DeletePurchaseDetail removes a received line and writes the compensating
// reversal movement. The average cost stays where the line left it.
func (s *Service) DeletePurchaseDetail(ctx context.Context, tenantID uuid.UUID, detailID, actorID int64) error {
	detail, header, err := s.repo.GetPurchaseDetail(ctx, tenantID, detailID)
	if err != nil {
		return err
	}
	if err := s.repo.DeletePurchaseDetail(ctx, tenantID, detailID); err != nil {
		return err
	}
	_, err = s.stock.Reverse(ctx, stock.ReversalInput{
		TenantID:        tenantID,
		ProductID:       detail.ProductID,
		Quantity:        detail.Quantity,
		ReferenceNumber: header.ReferenceNumber,
		Reason:          fmt.Sprintf("Deleted purchase line %d", detailID),
		ActorID:         actorID,
	})
	return err
}

// RecordPayment settles part of a purchase balance.
func (s *Service) RecordPayment(ctx context.Context, tenantID uuid.UUID, payment Payment) (Payment, error) {
	if payment.Amount <= 0 {
		return Payment{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	return s.repo.RecordPayment(ctx, tenantID, payment)
}

// GetPurchase returns a purchase with its lines.
func (s *Service) GetPurchase(ctx context.Context, tenantID uuid.UUID, id int64) (PurchaseHeader, []PurchaseDetail, error) {
	return s.repo.GetPurchase(ctx, tenantID, id)
}

// ListPurchases returns recent purchases.
func (s *Service) ListPurchases(ctx context.Context, tenantID uuid.UUID, limit int) ([]PurchaseHeader, error) {
	return s.repo.ListPurchases(ctx, tenantID, limit)
}

// OrderLineInput is one planned purchase order line.
type OrderLineInput struct {
	ProductID int64
	Quantity  int64
	Price     float64
	Discount  float64
}

// CreateOrderInput creates a purchase order.
type CreateOrderInput struct {
	TenantID        uuid.UUID
	SupplierID      int64
	ReferenceNumber string
	Lines           []OrderLineInput
	ActorID         int64
}

// CreatePurchaseOrder records a planned purchase. No stock moves yet.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreateOrderInput) (PurchaseOrder, error) {
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	lines := make([]PurchaseOrderLine, 0, len(input.Lines))
	for _, l := range input.Lines {
		if l.Quantity <= 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
		lines = append(lines, PurchaseOrderLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Price:     l.Price,
			Discount:  l.Discount,
		})
	}
	return s.repo.CreatePurchaseOrder(ctx, PurchaseOrder{
		TenantID:        input.TenantID,
		SupplierID:      input.SupplierID,
		ReferenceNumber: input.ReferenceNumber,
		CreatedBy:       input.ActorID,
	}, lines)
}

// GetPurchaseOrder returns a purchase order with its lines.
func (s *Service) GetPurchaseOrder(ctx context.Context, tenantID uuid.UUID, id int64) (PurchaseOrder, []PurchaseOrderLine, error) {
	return s.repo.GetPurchaseOrder(ctx, tenantID, id)
}

// ConvertPurchaseOrder turns an order into a received purchase exactly once.
// A second conversion attempt fails with ErrAlreadyConverted and posts
// nothing: the guard runs under the order row lock before any stock moves.
// The back-reference, the purchase rows and the inbound movements commit
// together, so a failed conversion leaves the order convertible.
func (s *Service) ConvertPurchaseOrder(ctx context.Context, tenantID uuid.UUID, orderID, actorID int64) (PurchaseHeader, []PurchaseDetail, error) {
	var movements []stock.Movement
	header, details, err := s.repo.ConvertPurchaseOrder(ctx, tenantID, orderID, actorID, s.inboundStage(&movements))
	if err != nil {
		return PurchaseHeader{}, nil, err
	}
	s.stock.AuditPosted(ctx, movements)
	return header, details, nil
}

// ReceiveGoodsInput records a goods receipt (GRN).
type ReceiveGoodsInput struct {
	TenantID        uuid.UUID
	SupplierID      int64
	ReferenceNumber string
	Lines           []GoodsReceiptLine
	ActorID         int64
}

// ReceiveGoods posts a GRN: each line enters the weighted average at its full
// unit cost, with no invoice discount involved.
func (s *Service) ReceiveGoods(ctx context.Context, input ReceiveGoodsInput) (GoodsReceipt, []GoodsReceiptLine, error) {
	if len(input.Lines) == 0 {
		return GoodsReceipt{}, nil, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	for _, l := range input.Lines {
		if l.Quantity <= 0 {
			return GoodsReceipt{}, nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
		if l.UnitCost < 0 {
			return GoodsReceipt{}, nil, fmt.Errorf("%w: unit cost cannot be negative", ErrValidation)
		}
	}
	var movements []stock.Movement
	receipt, lines, err := s.repo.CreateGoodsReceipt(ctx, GoodsReceipt{
		TenantID:        input.TenantID,
		SupplierID:      input.SupplierID,
		ReferenceNumber: input.ReferenceNumber,
		CreatedBy:       input.ActorID,
	}, input.Lines, func(ctx context.Context, tx stock.TxRepository, receipt GoodsReceipt, lines []GoodsReceiptLine) error {
		inputs := make([]stock.InboundInput, 0, len(lines))
		for _, l := range lines {
			inputs = append(inputs, stock.InboundInput{
				TenantID:        input.TenantID,
				ProductID:       l.ProductID,
				Quantity:        l.Quantity,
				UnitCost:        l.UnitCost,
				Type:            stock.MovementPurchase,
				ReferenceNumber: receipt.ReferenceNumber,
				Reason:          fmt.Sprintf("Goods receipt %s", receipt.ReferenceNumber),
				ActorID:         input.ActorID,
			})
		}
		posted, err := s.stock.PostInboundBatch(ctx, tx, inputs)
		if err != nil {
			return fmt.Errorf("post receipt lines for %s: %w", receipt.ReferenceNumber, err)
		}
		movements = posted
		return nil
	})
	if err != nil {
		return GoodsReceipt{}, nil, err
	}
	s.stock.AuditPosted(ctx, movements)
	return receipt, lines, nil
}

func validateLines(lines []PurchaseLineInput) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	for _, l := range lines {
		if l.ProductID == 0 {
			return fmt.Errorf("%w: product required", ErrValidation)
		}
		if l.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
		if l.Price < 0 || l.Discount < 0 {
			return fmt.Errorf("%w: price and discount cannot be negative", ErrValidation)
		}
	}
	return nil
}
