package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/asiria/asiriapos/internal/shared"
)

// AdjustmentInput describes a proposed stock correction.
type AdjustmentInput struct {
	TenantID         uuid.UUID
	ProductID        int64
	QuantityAdjusted int64
	Reason           string
	ReferenceNumber  string
	ActorID          int64
}

// CreateAdjustment records a proposed correction. It has no effect on stock
// until approved.
func (e *Engine) CreateAdjustment(ctx context.Context, input AdjustmentInput) (Adjustment, error) {
	if input.ProductID == 0 {
		return Adjustment{}, fmt.Errorf("%w: product required", ErrValidation)
	}
	if input.QuantityAdjusted == 0 {
		return Adjustment{}, ErrInvalidQuantity
	}
	adjustment := Adjustment{
		ID:               uuid.New(),
		TenantID:         input.TenantID,
		ProductID:        input.ProductID,
		QuantityAdjusted: input.QuantityAdjusted,
		Reason:           input.Reason,
		ReferenceNumber:  input.ReferenceNumber,
		CreatedBy:        input.ActorID,
		CreatedAt:        e.now().UTC(),
	}
	err := e.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		// Validates the product reference up front so an orphan adjustment
		// can never be approved later.
		if _, err := tx.GetProductForUpdate(ctx, input.TenantID, input.ProductID); err != nil {
			return err
		}
		return tx.InsertAdjustment(ctx, adjustment)
	})
	if err != nil {
		return Adjustment{}, err
	}
	if e.approvals != nil {
		_ = e.approvals.Record(ctx, shared.ApprovalLog{
			TenantID: adjustment.TenantID,
			Module:   "STOCK_ADJUSTMENT",
			RefID:    adjustment.ID,
			ActorID:  input.ActorID,
			Action:   shared.ApprovalSubmit,
			Note:     input.Reason,
		})
	}
	return adjustment, nil
}

// ApproveAdjustment applies an unapproved adjustment exactly once: the stock
// delta is applied, one ADJUSTMENT movement is written with previous_stock
// captured before the delta, and the approver is stamped. A second approval
// attempt fails with ErrAlreadyApproved and leaves stock untouched.
func (e *Engine) ApproveAdjustment(ctx context.Context, adjustmentID uuid.UUID, approverID int64) (Movement, error) {
	var movement Movement
	err := e.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		adjustment, err := tx.GetAdjustmentForUpdate(ctx, adjustmentID)
		if err != nil {
			return err
		}
		if adjustment.IsApproved {
			return ErrAlreadyApproved
		}
		product, err := tx.GetProductForUpdate(ctx, adjustment.TenantID, adjustment.ProductID)
		if err != nil {
			return err
		}
		now := e.now().UTC()
		previous := product.Stock
		product.Stock = previous + adjustment.QuantityAdjusted
		movement = Movement{
			ID:              uuid.New(),
			TenantID:        adjustment.TenantID,
			ProductID:       adjustment.ProductID,
			Quantity:        adjustment.QuantityAdjusted,
			PreviousStock:   previous,
			NewStock:        product.Stock,
			Type:            MovementAdjustment,
			ReferenceNumber: adjustment.ReferenceNumber,
			Reason:          adjustment.Reason,
			CreatedBy:       approverID,
			CreatedAt:       now,
		}
		if err := tx.InsertMovement(ctx, movement); err != nil {
			return err
		}
		if err := tx.UpdateProductStock(ctx, product); err != nil {
			return err
		}
		if err := tx.SetAdjustmentApproved(ctx, adjustmentID, approverID, now); err != nil {
			return err
		}
		return e.evaluateAlerts(ctx, tx, product)
	})
	if err != nil {
		return Movement{}, err
	}
	if e.approvals != nil {
		_ = e.approvals.Record(ctx, shared.ApprovalLog{
			TenantID: movement.TenantID,
			Module:   "STOCK_ADJUSTMENT",
			RefID:    adjustmentID,
			ActorID:  approverID,
			Action:   shared.ApprovalApprove,
			Note:     movement.Reason,
		})
	}
	if e.audit != nil {
		_ = e.audit.Record(ctx, shared.AuditLog{
			TenantID: movement.TenantID,
			ActorID:  approverID,
			Action:   "stock:ADJUSTMENT_APPROVE",
			Entity:   "stock_adjustment",
			EntityID: adjustmentID.String(),
			Meta: map[string]any{
				"product_id": movement.ProductID,
				"quantity":   movement.Quantity,
				"new_stock":  movement.NewStock,
			},
		})
	}
	return movement, nil
}

// DeleteAdjustment removes an unapproved adjustment. Approved adjustments are
// part of the ledger history and can only be offset by a new adjustment.
func (e *Engine) DeleteAdjustment(ctx context.Context, adjustmentID uuid.UUID) error {
	return e.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		adjustment, err := tx.GetAdjustmentForUpdate(ctx, adjustmentID)
		if err != nil {
			return err
		}
		if adjustment.IsApproved {
			return ErrAlreadyApproved
		}
		return tx.DeleteAdjustment(ctx, adjustmentID)
	})
}

// GetAdjustment returns a single adjustment.
func (e *Engine) GetAdjustment(ctx context.Context, id uuid.UUID) (Adjustment, error) {
	return e.repo.GetAdjustment(ctx, id)
}

// ListAdjustments returns recent adjustments for a tenant.
func (e *Engine) ListAdjustments(ctx context.Context, tenantID uuid.UUID, limit int) ([]Adjustment, error) {
	return e.repo.ListAdjustments(ctx, tenantID, limit)
}
