package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/asiria/asiriapos/internal/shared"
)

// TransferInput moves quantity between two locations of one product.
type TransferInput struct {
	TenantID       uuid.UUID
	ProductID      int64
	FromLocationID int64
	ToLocationID   int64
	Quantity       int64
	Reason         string
	ActorID        int64
}

// TransferResult carries the applied transfer and its two ledger legs.
type TransferResult struct {
	Transfer    Transfer
	MovementOut Movement
	MovementIn  Movement
}

// ApplyTransfer decrements the source location and increments the
// destination atomically, writing one outbound and one inbound TRANSFER
// movement. Location stock is a separate tracking dimension: the aggregate
// product stock counter is not touched.
func (e *Engine) ApplyTransfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	if input.ProductID == 0 {
		return TransferResult{}, fmt.Errorf("%w: product required", ErrValidation)
	}
	if input.FromLocationID == input.ToLocationID {
		return TransferResult{}, fmt.Errorf("%w: source and destination location must differ", ErrValidation)
	}
	if input.Quantity <= 0 {
		return TransferResult{}, ErrInvalidQuantity
	}

	var result TransferResult
	err := e.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		from, err := tx.GetLocation(ctx, input.TenantID, input.FromLocationID)
		if err != nil {
			return err
		}
		to, err := tx.GetLocation(ctx, input.TenantID, input.ToLocationID)
		if err != nil {
			return err
		}

		source, err := e.locationStockForUpdate(ctx, tx, input.ProductID, input.FromLocationID)
		if err != nil {
			return err
		}
		dest, err := e.locationStockForUpdate(ctx, tx, input.ProductID, input.ToLocationID)
		if err != nil {
			return err
		}
		if source.Quantity < input.Quantity {
			return ErrInsufficientStock
		}

		now := e.now().UTC()
		source.Quantity -= input.Quantity
		dest.Quantity += input.Quantity
		if err := tx.UpsertLocationStock(ctx, source); err != nil {
			return err
		}
		if err := tx.UpsertLocationStock(ctx, dest); err != nil {
			return err
		}

		transfer := Transfer{
			ID:             uuid.New(),
			TenantID:       input.TenantID,
			ProductID:      input.ProductID,
			FromLocationID: input.FromLocationID,
			ToLocationID:   input.ToLocationID,
			Quantity:       input.Quantity,
			Reason:         input.Reason,
			CreatedBy:      input.ActorID,
			CreatedAt:      now,
		}
		if err := tx.InsertTransfer(ctx, transfer); err != nil {
			return err
		}

		reference := fmt.Sprintf("TRF-%s", transfer.ID)
		out := Movement{
			ID:              uuid.New(),
			TenantID:        input.TenantID,
			ProductID:       input.ProductID,
			Quantity:        -input.Quantity,
			PreviousStock:   source.Quantity + input.Quantity,
			NewStock:        source.Quantity,
			Type:            MovementTransfer,
			ReferenceNumber: reference,
			Reason:          fmt.Sprintf("Transfer to %s: %s", to.Code, input.Reason),
			CreatedBy:       input.ActorID,
			CreatedAt:       now,
		}
		in := Movement{
			ID:              uuid.New(),
			TenantID:        input.TenantID,
			ProductID:       input.ProductID,
			Quantity:        input.Quantity,
			PreviousStock:   dest.Quantity - input.Quantity,
			NewStock:        dest.Quantity,
			Type:            MovementTransfer,
			ReferenceNumber: reference,
			Reason:          fmt.Sprintf("Transfer from %s: %s", from.Code, input.Reason),
			CreatedBy:       input.ActorID,
			CreatedAt:       now,
		}
		if err := tx.InsertMovement(ctx, out); err != nil {
			return err
		}
		if err := tx.InsertMovement(ctx, in); err != nil {
			return err
		}
		result = TransferResult{Transfer: transfer, MovementOut: out, MovementIn: in}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	if e.audit != nil {
		_ = e.audit.Record(ctx, shared.AuditLog{
			TenantID: input.TenantID,
			ActorID:  input.ActorID,
			Action:   "stock:TRANSFER",
			Entity:   "stock_transfer",
			EntityID: result.Transfer.ID.String(),
			Meta: map[string]any{
				"product_id":    input.ProductID,
				"from_location": input.FromLocationID,
				"to_location":   input.ToLocationID,
				"quantity":      input.Quantity,
			},
		})
	}
	return result, nil
}

// locationStockForUpdate fetches the locked row, defaulting a missing pair to
// quantity zero.
func (e *Engine) locationStockForUpdate(ctx context.Context, tx TxRepository, productID, locationID int64) (LocationStock, error) {
	row, err := tx.GetLocationStockForUpdate(ctx, productID, locationID)
	if err == nil {
		return row, nil
	}
	if errors.Is(err, ErrNotFound) {
		return LocationStock{ProductID: productID, LocationID: locationID}, nil
	}
	return LocationStock{}, err
}

// ListLocationStock returns the per-location quantities of a product.
func (e *Engine) ListLocationStock(ctx context.Context, productID int64) ([]LocationStock, error) {
	return e.repo.ListLocationStock(ctx, productID)
}
