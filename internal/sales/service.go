package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/asiria/asiriapos/internal/shared"
	"github.com/asiria/asiriapos/internal/stock"
)

// StockPort is the slice of the stock engine sales needs.
type StockPort interface {
	RecordOutboundBatch(ctx context.Context, inputs []stock.OutboundInput) ([]stock.Movement, error)
	PostReturn(ctx context.Context, tx stock.TxRepository, input stock.ReturnInput) (stock.Movement, error)
	AuditPosted(ctx context.Context, movements []stock.Movement)
	Reverse(ctx context.Context, input stock.ReversalInput) (stock.Movement, error)
	Reserve(ctx context.Context, input stock.ReserveInput) (stock.Reservation, error)
	ReleaseForSale(ctx context.Context, saleID int64) (int64, error)
}

// ApprovalPort records approval history for return processing.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// Service implements sales use cases.
type Service struct {
	repo       Repository
	stock      StockPort
	approvals  ApprovalPort
	reserveTTL time.Duration
	now        func() time.Time
}

// NewService constructs the sales service. reserveTTL bounds how long a
// pending sale holds its reservations; zero means no expiry.
func NewService(repo Repository, stockPort StockPort, approvals ApprovalPort, reserveTTL time.Duration) *Service {
	return &Service{
		repo:       repo,
		stock:      stockPort,
		approvals:  approvals,
		reserveTTL: reserveTTL,
		now:        time.Now,
	}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// IsSalePending satisfies stock.SaleStatePort so the reservation engine can
// verify the parent sale.
func (s *Service) IsSalePending(ctx context.Context, saleID int64) (bool, error) {
	status, err := s.repo.GetSaleStatus(ctx, saleID)
	if err != nil {
		return false, err
	}
	return status == StatusPending, nil
}

// SaleLineInput is one line of a new sale.
type SaleLineInput struct {
	ProductID int64
	Quantity  int64
	Price     float64
	Discount  float64
}

// CreateSaleInput opens a sale.
type CreateSaleInput struct {
	TenantID        uuid.UUID
	CustomerID      int64
	ReferenceNumber string
	Lines           []SaleLineInput
	// Reserve soft-holds each line's quantity until confirm or cancel.
	Reserve bool
	ActorID int64
}

// CreateSale opens a PENDING sale. With Reserve set, each line places a hold
// on its free stock; a line that cannot be held fails the whole creation and
// releases the holds already placed.
func (s *Service) CreateSale(ctx context.Context, input CreateSaleInput) (SalesHeader, []SalesDetail, error) {
	if len(input.Lines) == 0 {
		return SalesHeader{}, nil, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	details := make([]SalesDetail, 0, len(input.Lines))
	for _, l := range input.Lines {
		if l.ProductID == 0 {
			return SalesHeader{}, nil, fmt.Errorf("%w: product required", ErrValidation)
		}
		if l.Quantity <= 0 {
			return SalesHeader{}, nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
		details = append(details, SalesDetail{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Price:     l.Price,
			Discount:  l.Discount,
		})
	}
	header, details, err := s.repo.CreateSale(ctx, SalesHeader{
		TenantID:        input.TenantID,
		CustomerID:      input.CustomerID,
		ReferenceNumber: input.ReferenceNumber,
		CreatedBy:       input.ActorID,
	}, details)
	if err != nil {
		return SalesHeader{}, nil, err
	}
	if input.Reserve {
		for _, d := range details {
			_, err := s.stock.Reserve(ctx, stock.ReserveInput{
				TenantID:     input.TenantID,
				SaleID:       header.ID,
				SaleDetailID: d.ID,
				ProductID:    d.ProductID,
				Quantity:     d.Quantity,
				Expiry:       s.reserveTTL,
				ActorID:      input.ActorID,
			})
			if err != nil {
				_, _ = s.stock.ReleaseForSale(ctx, header.ID)
				return SalesHeader{}, nil, err
			}
		}
	}
	return header, details, nil
}

// ConfirmSale posts the outbound SALE movements for every line in one atomic
// unit and flips the sale to CONFIRMED. The batch carries the sale id, so the
// free-stock check ignores this sale's own holds and the posting transaction
// releases them once the lines go through. A sale that is not PENDING is
// rejected; a failed posting hands the sale back to PENDING with its holds
// intact.
func (s *Service) ConfirmSale(ctx context.Context, tenantID uuid.UUID, saleID, actorID int64) (SalesHeader, error) {
	header, details, err := s.repo.GetSale(ctx, tenantID, saleID)
	if err != nil {
		return SalesHeader{}, err
	}
	if len(details) == 0 {
		return SalesHeader{}, fmt.Errorf("%w: sale has no lines", ErrValidation)
	}

	// The compare-and-swap transition claims the sale before anything is
	// posted, so a concurrent confirm cannot double-post the batch.
	now := s.now().UTC()
	if err := s.repo.TransitionSale(ctx, tenantID, saleID, StatusPending, StatusConfirmed, now); err != nil {
		return SalesHeader{}, err
	}

	outbound := make([]stock.OutboundInput, 0, len(details))
	for _, d := range details {
		outbound = append(outbound, stock.OutboundInput{
			TenantID:        tenantID,
			ProductID:       d.ProductID,
			Quantity:        d.Quantity,
			Type:            stock.MovementSale,
			SaleID:          saleID,
			ReferenceNumber: header.ReferenceNumber,
			Reason:          fmt.Sprintf("Sale %s", header.ReferenceNumber),
			ActorID:         actorID,
		})
	}
	if _, err := s.stock.RecordOutboundBatch(ctx, outbound); err != nil {
		// The batch posts all-or-nothing, so nothing moved and the holds are
		// still active; hand the sale back to PENDING.
		_ = s.repo.TransitionSale(ctx, tenantID, saleID, StatusConfirmed, StatusPending, now)
		return SalesHeader{}, err
	}

	header.Status = StatusConfirmed
	header.ConfirmedAt = now
	return header, nil
}

// CancelSale abandons a pending sale and releases its reservations. Stock is
// never touched: nothing was posted yet.
func (s *Service) CancelSale(ctx context.Context, tenantID uuid.UUID, saleID int64) (SalesHeader, error) {
	if err := s.repo.TransitionSale(ctx, tenantID, saleID, StatusPending, StatusCancelled, s.now().UTC()); err != nil {
		return SalesHeader{}, err
	}
	if _, err := s.stock.ReleaseForSale(ctx, saleID); err != nil {
		return SalesHeader{}, err
	}
	header, _, err := s.repo.GetSale(ctx, tenantID, saleID)
	return header, err
}

// DeleteSalesDetail removes a line. On a confirmed sale the posted outbound
// movement is undone with a compensating reversal.
func (s *Service) DeleteSalesDetail(ctx context.Context, tenantID uuid.UUID, detailID, actorID int64) error {
	detail, header, err := s.repo.GetSalesDetail(ctx, tenantID, detailID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteSalesDetail(ctx, tenantID, detailID); err != nil {
		return err
	}
	if header.Status != StatusConfirmed {
		return nil
	}
	// The original SALE movement carried -quantity; passing it signed lets
	// the engine emit the +quantity compensation.
	_, err = s.stock.Reverse(ctx, stock.ReversalInput{
		TenantID:        tenantID,
		ProductID:       detail.ProductID,
		Quantity:        -detail.Quantity,
		ReferenceNumber: header.ReferenceNumber,
		Reason:          fmt.Sprintf("Deleted sale line %d", detailID),
		ActorID:         actorID,
	})
	return err
}

// CreateReturnInput opens a customer return for later approval.
type CreateReturnInput struct {
	TenantID  uuid.UUID
	SaleID    int64
	ProductID int64
	Quantity  int64
	Reason    string
	ActorID   int64
}

// CreateReturn records the request. Stock flows back only on approval.
func (s *Service) CreateReturn(ctx context.Context, input CreateReturnInput) (Return, error) {
	if input.SaleID == 0 || input.ProductID == 0 {
		return Return{}, fmt.Errorf("%w: sale and product required", ErrValidation)
	}
	if input.Quantity <= 0 {
		return Return{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	header, details, err := s.repo.GetSale(ctx, input.TenantID, input.SaleID)
	if err != nil {
		return Return{}, err
	}
	if header.Status != StatusConfirmed {
		return Return{}, ErrSaleNotConfirmed
	}
	var sold int64
	for _, d := range details {
		if d.ProductID == input.ProductID {
			sold += d.Quantity
		}
	}
	if input.Quantity > sold {
		return Return{}, fmt.Errorf("%w: return quantity exceeds sold quantity", ErrValidation)
	}
	ret, err := s.repo.CreateReturn(ctx, Return{
		TenantID:  input.TenantID,
		SaleID:    input.SaleID,
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
		Reason:    input.Reason,
		CreatedBy: input.ActorID,
	})
	if err != nil {
		return Return{}, err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			TenantID: input.TenantID,
			Module:   "SALES_RETURN",
			RefID:    ret.ID,
			ActorID:  input.ActorID,
			Action:   shared.ApprovalSubmit,
			Note:     input.Reason,
		})
	}
	return ret, nil
}

// ApproveReturn stamps the approval and posts the RETURN movement in one
// transaction: a failed posting rolls the approval back out, so the return
// can be retried. A second approval fails with ErrAlreadyApproved and moves
// no stock.
func (s *Service) ApproveReturn(ctx context.Context, tenantID uuid.UUID, returnID uuid.UUID, approverID int64) (Return, error) {
	var movement stock.Movement
	stage := func(ctx context.Context, tx stock.TxRepository, ret Return, saleReference string) error {
		posted, err := s.stock.PostReturn(ctx, tx, stock.ReturnInput{
			TenantID:        tenantID,
			ProductID:       ret.ProductID,
			Quantity:        ret.Quantity,
			ReferenceNumber: saleReference,
			Reason:          fmt.Sprintf("Return against sale %s", saleReference),
			ActorID:         approverID,
		})
		if err != nil {
			return fmt.Errorf("post return for sale %s: %w", saleReference, err)
		}
		movement = posted
		return nil
	}
	ret, err := s.repo.ApproveReturn(ctx, tenantID, returnID, approverID, s.now().UTC(), stage)
	if err != nil {
		return Return{}, err
	}
	s.stock.AuditPosted(ctx, []stock.Movement{movement})
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			TenantID: tenantID,
			Module:   "SALES_RETURN",
			RefID:    ret.ID,
			ActorID:  approverID,
			Action:   shared.ApprovalApprove,
			Note:     ret.Reason,
		})
	}
	return ret, nil
}

// GetSale returns a sale with its lines.
func (s *Service) GetSale(ctx context.Context, tenantID uuid.UUID, id int64) (SalesHeader, []SalesDetail, error) {
	return s.repo.GetSale(ctx, tenantID, id)
}

// ListSales returns recent sales, optionally filtered by status.
func (s *Service) ListSales(ctx context.Context, tenantID uuid.UUID, status SaleStatus, limit int) ([]SalesHeader, error) {
	return s.repo.ListSales(ctx, tenantID, status, limit)
}

// RecordReceipt settles a confirmed sale and stores a printable narration.
func (s *Service) RecordReceipt(ctx context.Context, tenantID uuid.UUID, receipt Receipt) (Receipt, error) {
	if receipt.Amount <= 0 {
		return Receipt{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	header, _, err := s.repo.GetSale(ctx, tenantID, receipt.SaleID)
	if err != nil {
		return Receipt{}, err
	}
	if header.Status != StatusConfirmed {
		return Receipt{}, ErrSaleNotConfirmed
	}
	if receipt.ReceiptNumber == "" {
		receipt.ReceiptNumber = fmt.Sprintf("RCP-%d-%d", header.ID, s.now().Unix())
	}
	receipt.IssuedAt = s.now().UTC()
	receipt.Narration = FormatNarration(header.ReferenceNumber, receipt.Amount)
	return s.repo.CreateReceipt(ctx, receipt)
}

// ListReceipts returns the receipts issued against a sale.
func (s *Service) ListReceipts(ctx context.Context, tenantID uuid.UUID, saleID int64) ([]Receipt, error) {
	return s.repo.ListReceipts(ctx, tenantID, saleID)
}
