package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/asiria/asiriapos/internal/shared"
)

// evaluateAlerts ensures the active alert set matches the post-mutation stock
// level. It runs inside the mutation transaction so the alert state can never
// drift from the stock counter it describes. Alerts are never auto-resolved
// when stock recovers; resolution is an explicit manual action.
func (e *Engine) evaluateAlerts(ctx context.Context, tx TxRepository, product ProductStock) error {
	if product.Stock <= product.MinQuantity {
		msg := fmt.Sprintf("Product %d is running low on stock. Current stock: %d, Minimum: %d",
			product.ProductID, product.Stock, product.MinQuantity)
		if err := e.ensureActiveAlert(ctx, tx, product, AlertLowStock, msg); err != nil {
			return err
		}
	}
	if product.Stock <= 0 {
		msg := fmt.Sprintf("Product %d is out of stock", product.ProductID)
		if err := e.ensureActiveAlert(ctx, tx, product, AlertOutOfStock, msg); err != nil {
			return err
		}
	}
	return nil
}

// ensureActiveAlert is an idempotent get-or-create keyed on
// (product, type, active). A partial unique index backs the same guarantee in
// the database, so a concurrent insert surfaces as a duplicate and is ignored.
func (e *Engine) ensureActiveAlert(ctx context.Context, tx TxRepository, product ProductStock, alertType AlertType, message string) error {
	_, err := tx.GetActiveAlert(ctx, product.ProductID, alertType)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	alert := Alert{
		ID:        uuid.New(),
		TenantID:  product.TenantID,
		ProductID: product.ProductID,
		Type:      alertType,
		Message:   message,
		IsActive:  true,
		CreatedAt: e.now().UTC(),
	}
	if err := tx.InsertAlert(ctx, alert); err != nil {
		if errors.Is(err, ErrDuplicateAlert) {
			return nil
		}
		return err
	}
	return nil
}

// ResolveAlert marks an alert inactive, stamping resolver and timestamp.
// Resolving an already-resolved alert fails with ErrAlreadyResolved.
func (e *Engine) ResolveAlert(ctx context.Context, alertID uuid.UUID, resolverID int64) (Alert, error) {
	var resolved Alert
	err := e.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		alert, err := tx.GetAlertForUpdate(ctx, alertID)
		if err != nil {
			return err
		}
		if !alert.IsActive {
			return ErrAlreadyResolved
		}
		now := e.now().UTC()
		if err := tx.SetAlertResolved(ctx, alertID, resolverID, now); err != nil {
			return err
		}
		alert.IsActive = false
		alert.ResolvedBy = resolverID
		alert.ResolvedAt = now
		resolved = alert
		return nil
	})
	if err != nil {
		return Alert{}, err
	}
	if e.audit != nil {
		_ = e.audit.Record(ctx, shared.AuditLog{
			ActorID:  resolverID,
			Action:   "stock:ALERT_RESOLVE",
			Entity:   "stock_alert",
			EntityID: alertID.String(),
			Meta:     map[string]any{"product_id": resolved.ProductID, "alert_type": string(resolved.Type)},
		})
	}
	return resolved, nil
}

// ListAlerts returns alerts matching the filter.
func (e *Engine) ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error) {
	return e.repo.ListAlerts(ctx, filter)
}

// ScanAlerts walks every product at or below its reorder threshold and
// ensures the matching active alerts exist. The worker runs it periodically
// as a safety net behind the synchronous per-mutation evaluation.
func (e *Engine) ScanAlerts(ctx context.Context) (int64, error) {
	products, err := e.repo.ListProductsBelowMinimum(ctx)
	if err != nil {
		return 0, err
	}
	var created int64
	for _, product := range products {
		before, err := e.repo.ListAlerts(ctx, AlertFilter{TenantID: product.TenantID, ProductID: product.ProductID, ActiveOnly: true})
		if err != nil {
			return created, err
		}
		err = e.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
			return e.evaluateAlerts(ctx, tx, product)
		})
		if err != nil {
			return created, err
		}
		after, err := e.repo.ListAlerts(ctx, AlertFilter{TenantID: product.TenantID, ProductID: product.ProductID, ActiveOnly: true})
		if err != nil {
			return created, err
		}
		created += int64(len(after) - len(before))
	}
	return created, nil
}
