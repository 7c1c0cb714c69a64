package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/asiria/asiriapos/internal/shared"
)

// ReserveInput soft-holds quantity for a pending sale line.
type ReserveInput struct {
	TenantID     uuid.UUID
	SaleID       int64
	SaleDetailID int64
	ProductID    int64
	Quantity     int64
	Expiry       time.Duration
	ActorID      int64
}

// Reserve creates an active reservation when the free stock (stock minus
// active holds) covers the requested quantity. The check runs under the
// product row lock so two racing reservations cannot both fit into the same
// free stock. Reservations never mutate the stock counter itself.
func (e *Engine) Reserve(ctx context.Context, input ReserveInput) (Reservation, error) {
	if input.ProductID == 0 || input.SaleID == 0 {
		return Reservation{}, fmt.Errorf("%w: sale and product required", ErrValidation)
	}
	if input.Quantity <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}
	if e.sales != nil {
		pending, err := e.sales.IsSalePending(ctx, input.SaleID)
		if err != nil {
			return Reservation{}, err
		}
		if !pending {
			return Reservation{}, ErrSaleNotPending
		}
	}

	reservation := Reservation{
		ID:           uuid.New(),
		TenantID:     input.TenantID,
		SaleID:       input.SaleID,
		SaleDetailID: input.SaleDetailID,
		ProductID:    input.ProductID,
		Quantity:     input.Quantity,
		IsActive:     true,
		CreatedAt:    e.now().UTC(),
	}
	if input.Expiry > 0 {
		reservation.ExpiresAt = reservation.CreatedAt.Add(input.Expiry)
	}

	err := e.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, input.TenantID, input.ProductID)
		if err != nil {
			return err
		}
		reserved, err := tx.SumActiveReservations(ctx, input.ProductID, 0)
		if err != nil {
			return err
		}
		if product.Stock-reserved < input.Quantity {
			return ErrInsufficientFreeStock
		}
		return tx.InsertReservation(ctx, reservation)
	})
	if err != nil {
		return Reservation{}, err
	}
	if e.audit != nil {
		_ = e.audit.Record(ctx, shared.AuditLog{
			TenantID: input.TenantID,
			ActorID:  input.ActorID,
			Action:   "stock:RESERVE",
			Entity:   "stock_reservation",
			EntityID: reservation.ID.String(),
			Meta: map[string]any{
				"sale_id":    input.SaleID,
				"product_id": input.ProductID,
				"quantity":   input.Quantity,
			},
		})
	}
	return reservation, nil
}

// ReleaseForSale deactivates every active reservation held by a sale. It is
// called when the sale is confirmed or cancelled.
func (e *Engine) ReleaseForSale(ctx context.Context, saleID int64) (int64, error) {
	var released int64
	err := e.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.ReleaseReservationsForSale(ctx, saleID, e.now().UTC())
		if err != nil {
			return err
		}
		released = n
		return nil
	})
	return released, err
}

// SweepExpired deactivates reservations past their expiry. It is idempotent:
// re-running it only touches rows still active and already expired, so the
// periodic job is safe to repeat.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return e.repo.SweepExpiredReservations(ctx, now)
}

// ListActiveReservations returns the active holds on a product.
func (e *Engine) ListActiveReservations(ctx context.Context, productID int64) ([]Reservation, error) {
	return e.repo.ListActiveReservations(ctx, productID)
}

// FreeStock reports the sellable quantity of a product: current stock minus
// the sum of active reservations.
func (e *Engine) FreeStock(ctx context.Context, tenantID uuid.UUID, productID int64) (int64, error) {
	var free int64
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, tenantID, productID)
		if err != nil {
			return err
		}
		reserved, err := tx.SumActiveReservations(ctx, productID, 0)
		if err != nil {
			return err
		}
		free = product.Stock - reserved
		return nil
	})
	return free, err
}
