package stock

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/asiria/asiriapos/internal/shared"
)

// maxTxRetries bounds transparent retries on serialization failures.
const maxTxRetries = 3

// RepositoryPort abstracts repository usage for the engine.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, tenantID uuid.UUID, productID int64) (ProductStock, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error)
	ListAdjustments(ctx context.Context, tenantID uuid.UUID, limit int) ([]Adjustment, error)
	GetAdjustment(ctx context.Context, id uuid.UUID) (Adjustment, error)
	ListLocationStock(ctx context.Context, productID int64) ([]LocationStock, error)
	ListProductsBelowMinimum(ctx context.Context) ([]ProductStock, error)
	ListActiveReservations(ctx context.Context, productID int64) ([]Reservation, error)
	SweepExpiredReservations(ctx context.Context, now time.Time) (int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort records approval history for gated operations.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// SaleStatePort reports whether a sale is still pending. Reservations are
// only permitted against pending sales.
type SaleStatePort interface {
	IsSalePending(ctx context.Context, saleID int64) (bool, error)
}

// RetryClassifier reports whether a transaction error is safe to retry.
// The PostgreSQL repository classifies serialization failures and deadlocks.
type RetryClassifier interface {
	IsRetryable(err error) bool
}

// Engine is the single choke point through which product stock may change.
type Engine struct {
	repo      RepositoryPort
	audit     AuditPort
	approvals ApprovalPort
	sales     SaleStatePort
	retry     RetryClassifier
	allowNeg  bool
	counter   func(movementType string)
	now       func() time.Time
}

// EngineConfig groups optional settings.
type EngineConfig struct {
	AllowNegativeStock bool
}

// NewEngine builds the mutation engine.
func NewEngine(repo RepositoryPort, audit AuditPort, approvals ApprovalPort, cfg EngineConfig) *Engine {
	e := &Engine{
		repo:      repo,
		audit:     audit,
		approvals: approvals,
		allowNeg:  cfg.AllowNegativeStock,
		now:       time.Now,
	}
	if rc, ok := repo.(RetryClassifier); ok {
		e.retry = rc
	}
	return e
}

// WithSaleStatePort wires the sales lookup used by the reservation engine.
func (e *Engine) WithSaleStatePort(port SaleStatePort) *Engine {
	e.sales = port
	return e
}

// WithMovementCounter wires a metrics hook invoked once per posted movement.
func (e *Engine) WithMovementCounter(fn func(movementType string)) *Engine {
	e.counter = fn
	return e
}

// WithNow overrides the engine clock for testing.
func (e *Engine) WithNow(fn func() time.Time) *Engine {
	if fn != nil {
		e.now = fn
	}
	return e
}

// InboundInput describes a cost-affecting inbound movement (purchase or GRN line).
type InboundInput struct {
	TenantID        uuid.UUID
	ProductID       int64
	Quantity        int64
	UnitCost        float64
	Discount        float64
	Type            MovementType
	ReferenceNumber string
	Reason          string
	ActorID         int64
}

// OutboundInput describes an outbound movement (sale or damage write-off).
// SaleID, set on confirm postings, excludes that sale's own holds from the
// free-stock check and releases them in the posting transaction.
type OutboundInput struct {
	TenantID        uuid.UUID
	ProductID       int64
	Quantity        int64
	Type            MovementType
	SaleID          int64
	ReferenceNumber string
	Reason          string
	ActorID         int64
}

// InitialInput seeds the ledger for a newly created product.
type InitialInput struct {
	TenantID        uuid.UUID
	ProductID       int64
	Quantity        int64
	ReferenceNumber string
	ActorID         int64
}

// ReversalInput undoes the stock effect of a previously recorded movement.
// Quantity carries the signed quantity of the original movement.
type ReversalInput struct {
	TenantID        uuid.UUID
	ProductID       int64
	Quantity        int64
	ReferenceNumber string
	Reason          string
	ActorID         int64
}

// ReturnInput describes a customer return flowing back into stock.
type ReturnInput struct {
	TenantID        uuid.UUID
	ProductID       int64
	Quantity        int64
	ReferenceNumber string
	Reason          string
	ActorID         int64
}

// RecordInbound posts an inbound movement and recomputes the weighted
// average cost. Purchases net the line discount off the unit cost; GRN
// receipts post the full unit cost.
func (e *Engine) RecordInbound(ctx context.Context, input InboundInput) (Movement, error) {
	params, err := inboundParams(input)
	if err != nil {
		return Movement{}, err
	}
	movements, err := e.postMovements(ctx, []movementParams{params})
	if err != nil {
		return Movement{}, err
	}
	return movements[0], nil
}

func inboundParams(input InboundInput) (movementParams, error) {
	if input.Quantity <= 0 {
		return movementParams{}, ErrInvalidQuantity
	}
	if input.UnitCost < 0 || input.Discount < 0 {
		return movementParams{}, fmt.Errorf("%w: unit cost and discount must be >= 0", ErrValidation)
	}
	movementType := input.Type
	if movementType == "" {
		movementType = MovementPurchase
	}
	incomingCost := input.UnitCost - input.Discount
	if incomingCost < 0 {
		incomingCost = 0
	}
	return movementParams{
		tenantID:     input.TenantID,
		productID:    input.ProductID,
		quantity:     input.Quantity,
		movementType: movementType,
		reference:    input.ReferenceNumber,
		reason:       input.Reason,
		actorID:      input.ActorID,
		recostUnit:   incomingCost,
		recost:       true,
	}, nil
}

// PostInboundBatch applies inbound movements on a caller-owned transaction,
// so document rows (purchase invoices, GRNs) commit together with their
// ledger effects. The caller owns commit and serialization retries, and runs
// AuditPosted with the returned movements once the transaction commits.
func (e *Engine) PostInboundBatch(ctx context.Context, tx TxRepository, inputs []InboundInput) ([]Movement, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no inbound lines", ErrValidation)
	}
	params := make([]movementParams, 0, len(inputs))
	for _, input := range inputs {
		p, err := inboundParams(input)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return e.postMovementsTx(ctx, tx, params)
}

// RecordOutbound posts an outbound movement. It fails with
// ErrInsufficientStock when the product holds less than the requested
// quantity, before any mutation is applied.
func (e *Engine) RecordOutbound(ctx context.Context, input OutboundInput) (Movement, error) {
	movements, err := e.RecordOutboundBatch(ctx, []OutboundInput{input})
	if err != nil {
		return Movement{}, err
	}
	return movements[0], nil
}

// RecordOutboundBatch posts several outbound movements in one atomic unit,
// used by sale confirmation so a multi-line sale applies all-or-nothing.
func (e *Engine) RecordOutboundBatch(ctx context.Context, inputs []OutboundInput) ([]Movement, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no outbound lines", ErrValidation)
	}
	params := make([]movementParams, 0, len(inputs))
	for _, input := range inputs {
		if input.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		movementType := input.Type
		if movementType == "" {
			movementType = MovementSale
		}
		if movementType != MovementSale && movementType != MovementDamage {
			return nil, fmt.Errorf("%w: %s is not an outbound movement type", ErrValidation, movementType)
		}
		params = append(params, movementParams{
			tenantID:     input.TenantID,
			productID:    input.ProductID,
			quantity:     -input.Quantity,
			movementType: movementType,
			reference:    input.ReferenceNumber,
			reason:       input.Reason,
			actorID:      input.ActorID,
			checkStock:   true,
			saleID:       input.SaleID,
		})
	}
	return e.postMovements(ctx, params)
}

// RecordInitial writes the INITIAL movement for a freshly registered product.
func (e *Engine) RecordInitial(ctx context.Context, input InitialInput) (Movement, error) {
	if input.Quantity < 0 {
		return Movement{}, ErrInvalidQuantity
	}
	params := movementParams{
		tenantID:     input.TenantID,
		productID:    input.ProductID,
		quantity:     input.Quantity,
		movementType: MovementInitial,
		reference:    input.ReferenceNumber,
		reason:       "Initial stock",
		actorID:      input.ActorID,
	}
	movements, err := e.postMovements(ctx, []movementParams{params})
	if err != nil {
		return Movement{}, err
	}
	return movements[0], nil
}

// RecordReturn posts a customer return back into stock. Returns do not
// recompute the average cost.
func (e *Engine) RecordReturn(ctx context.Context, input ReturnInput) (Movement, error) {
	params, err := returnParams(input)
	if err != nil {
		return Movement{}, err
	}
	movements, err := e.postMovements(ctx, []movementParams{params})
	if err != nil {
		return Movement{}, err
	}
	return movements[0], nil
}

func returnParams(input ReturnInput) (movementParams, error) {
	if input.Quantity <= 0 {
		return movementParams{}, ErrInvalidQuantity
	}
	return movementParams{
		tenantID:     input.TenantID,
		productID:    input.ProductID,
		quantity:     input.Quantity,
		movementType: MovementReturn,
		reference:    input.ReferenceNumber,
		reason:       input.Reason,
		actorID:      input.ActorID,
	}, nil
}

// PostReturn applies a RETURN movement on a caller-owned transaction, so the
// return's approval stamp and its stock restoration share one commit. Same
// contract as PostInboundBatch.
func (e *Engine) PostReturn(ctx context.Context, tx TxRepository, input ReturnInput) (Movement, error) {
	params, err := returnParams(input)
	if err != nil {
		return Movement{}, err
	}
	movements, err := e.postMovementsTx(ctx, tx, []movementParams{params})
	if err != nil {
		return Movement{}, err
	}
	return movements[0], nil
}

// Reverse writes an equal-and-opposite ADJUSTMENT movement undoing the stock
// effect of a deleted purchase or sale line. The average cost is left as-is.
func (e *Engine) Reverse(ctx context.Context, input ReversalInput) (Movement, error) {
	if input.Quantity == 0 {
		return Movement{}, ErrInvalidQuantity
	}
	reason := input.Reason
	if reason == "" {
		reason = "Reversal of deleted line"
	}
	params := movementParams{
		tenantID:     input.TenantID,
		productID:    input.ProductID,
		quantity:     -input.Quantity,
		movementType: MovementAdjustment,
		reference:    ReversalPrefix + input.ReferenceNumber,
		reason:       reason,
		actorID:      input.ActorID,
	}
	movements, err := e.postMovements(ctx, []movementParams{params})
	if err != nil {
		return Movement{}, err
	}
	return movements[0], nil
}

// ListMovements returns ledger entries matching the filter.
func (e *Engine) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return e.repo.ListMovements(ctx, filter)
}

type movementParams struct {
	tenantID     uuid.UUID
	productID    int64
	quantity     int64
	movementType MovementType
	reference    string
	reason       string
	actorID      int64
	// checkStock enforces the non-negative rule for sale-like outbound moves.
	checkStock bool
	// recost triggers the weighted average recompute with recostUnit.
	recost     bool
	recostUnit float64
	// saleID marks a SALE movement posted by a confirm: the sale's own holds
	// are excluded from the free-stock check and released in the same
	// transaction as the posting.
	saleID int64
}

// postMovements applies one or more movements as a single atomic unit in its
// own transaction, then runs the post-commit hooks.
func (e *Engine) postMovements(ctx context.Context, params []movementParams) ([]Movement, error) {
	if err := e.normalizeParams(params); err != nil {
		return nil, err
	}
	var movements []Movement
	err := e.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movements, err = e.applyMovements(ctx, tx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.AuditPosted(ctx, movements)
	return movements, nil
}

// postMovementsTx applies movements on a caller-owned transaction. The caller
// commits, retries on serialization failures, and runs AuditPosted.
func (e *Engine) postMovementsTx(ctx context.Context, tx TxRepository, params []movementParams) ([]Movement, error) {
	if err := e.normalizeParams(params); err != nil {
		return nil, err
	}
	return e.applyMovements(ctx, tx, params)
}

func (e *Engine) normalizeParams(params []movementParams) error {
	for i := range params {
		if params[i].productID == 0 {
			return fmt.Errorf("%w: product required", ErrValidation)
		}
		if params[i].quantity == 0 && params[i].movementType != MovementInitial {
			return ErrInvalidQuantity
		}
		if params[i].reference == "" {
			params[i].reference = fmt.Sprintf("MV-%d", e.now().UnixNano())
		}
	}
	return nil
}

// applyMovements is the transactional core: product rows are locked in
// ascending id order, each delta is validated and applied, exactly one ledger
// entry is written per delta, confirmed sales release their holds, and alert
// thresholds are re-evaluated for every touched product before commit.
func (e *Engine) applyMovements(ctx context.Context, tx TxRepository, params []movementParams) ([]Movement, error) {
	ordered := make([]int, len(params))
	for i := range ordered {
		ordered[i] = i
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		return params[ordered[a]].productID < params[ordered[b]].productID
	})

	movements := make([]Movement, len(params))
	locked := make(map[int64]*ProductStock)
	now := e.now().UTC()
	var confirmedSales []int64
	for _, idx := range ordered {
		p := params[idx]
		product, ok := locked[p.productID]
		if !ok {
			fetched, err := tx.GetProductForUpdate(ctx, p.tenantID, p.productID)
			if err != nil {
				return nil, err
			}
			product = &fetched
			locked[p.productID] = product
		}
		previous := product.Stock
		newStock := previous + p.quantity
		if p.checkStock && !e.allowNeg {
			if newStock < 0 {
				return nil, ErrInsufficientStock
			}
			if p.movementType == MovementSale {
				// Other sales' active holds stay sellable only to their
				// owners; this sale's own holds are being consumed here.
				reserved, err := tx.SumActiveReservations(ctx, p.productID, p.saleID)
				if err != nil {
					return nil, err
				}
				if newStock-reserved < 0 {
					return nil, ErrInsufficientFreeStock
				}
			}
		}
		if p.recost {
			currentQty := previous
			if currentQty < 0 {
				currentQty = 0
			}
			denom := currentQty + p.quantity
			if denom < 1 {
				denom = 1
			}
			product.AverageCost = (float64(currentQty)*product.CostBasis() + float64(p.quantity)*p.recostUnit) / float64(denom)
		}
		product.Stock = newStock
		movement := Movement{
			ID:              uuid.New(),
			TenantID:        p.tenantID,
			ProductID:       p.productID,
			Quantity:        p.quantity,
			PreviousStock:   previous,
			NewStock:        newStock,
			Type:            p.movementType,
			ReferenceNumber: p.reference,
			Reason:          p.reason,
			CreatedBy:       p.actorID,
			CreatedAt:       now,
		}
		if err := tx.InsertMovement(ctx, movement); err != nil {
			return nil, err
		}
		movements[idx] = movement
		if p.saleID != 0 && !containsInt64(confirmedSales, p.saleID) {
			confirmedSales = append(confirmedSales, p.saleID)
		}
	}
	for _, saleID := range confirmedSales {
		if _, err := tx.ReleaseReservationsForSale(ctx, saleID, now); err != nil {
			return nil, err
		}
	}
	for _, product := range locked {
		if err := tx.UpdateProductStock(ctx, *product); err != nil {
			return nil, err
		}
		if err := e.evaluateAlerts(ctx, tx, *product); err != nil {
			return nil, err
		}
	}
	return movements, nil
}

func containsInt64(xs []int64, x int64) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// AuditPosted runs the metrics and audit hooks for posted movements. Callers
// posting on their own transaction invoke it after that transaction commits;
// the engine's Record methods call it themselves.
func (e *Engine) AuditPosted(ctx context.Context, movements []Movement) {
	if e.counter != nil {
		for _, m := range movements {
			e.counter(string(m.Type))
		}
	}
	if e.audit != nil {
		for _, m := range movements {
			_ = e.audit.Record(ctx, shared.AuditLog{
				TenantID: m.TenantID,
				ActorID:  m.CreatedBy,
				Action:   fmt.Sprintf("stock:%s", m.Type),
				Entity:   "stock_movement",
				EntityID: m.ID.String(),
				Meta: map[string]any{
					"product_id":     m.ProductID,
					"quantity":       m.Quantity,
					"previous_stock": m.PreviousStock,
					"new_stock":      m.NewStock,
					"reference":      m.ReferenceNumber,
				},
			})
		}
	}
}

// withRetry runs fn in a transaction, retrying transparently on
// serialization failures so callers never observe lost updates.
func (e *Engine) withRetry(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = e.repo.WithTx(ctx, fn)
		if err == nil || e.retry == nil || !e.retry.IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("stock: transaction retries exhausted: %w", err)
}
