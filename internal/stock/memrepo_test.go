package stock

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// errSerialization simulates a PostgreSQL serialization failure.
var errSerialization = errors.New("serialization failure")

type locationKey struct {
	productID  int64
	locationID int64
}

// memRepo is an in-memory RepositoryPort used by the engine tests. WithTx
// snapshots the whole state up front and restores it when the callback fails,
// mirroring transaction rollback.
type memRepo struct {
	products      map[int64]ProductStock
	movements     []Movement
	adjustments   map[uuid.UUID]Adjustment
	alerts        map[uuid.UUID]Alert
	locations     map[int64]Location
	locationStock map[locationKey]LocationStock
	transfers     []Transfer
	reservations  map[uuid.UUID]Reservation

	// failures injects this many serialization failures before WithTx
	// starts succeeding again.
	failures int
	txCalls  int
}

func newMemRepo() *memRepo {
	return &memRepo{
		products:      make(map[int64]ProductStock),
		adjustments:   make(map[uuid.UUID]Adjustment),
		alerts:        make(map[uuid.UUID]Alert),
		locations:     make(map[int64]Location),
		locationStock: make(map[locationKey]LocationStock),
		reservations:  make(map[uuid.UUID]Reservation),
	}
}

func (r *memRepo) snapshot() *memRepo {
	clone := newMemRepo()
	for k, v := range r.products {
		clone.products[k] = v
	}
	clone.movements = append([]Movement(nil), r.movements...)
	for k, v := range r.adjustments {
		clone.adjustments[k] = v
	}
	for k, v := range r.alerts {
		clone.alerts[k] = v
	}
	for k, v := range r.locations {
		clone.locations[k] = v
	}
	for k, v := range r.locationStock {
		clone.locationStock[k] = v
	}
	clone.transfers = append([]Transfer(nil), r.transfers...)
	for k, v := range r.reservations {
		clone.reservations[k] = v
	}
	return clone
}

func (r *memRepo) restore(snap *memRepo) {
	r.products = snap.products
	r.movements = snap.movements
	r.adjustments = snap.adjustments
	r.alerts = snap.alerts
	r.locations = snap.locations
	r.locationStock = snap.locationStock
	r.transfers = snap.transfers
	r.reservations = snap.reservations
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.txCalls++
	if r.failures > 0 {
		r.failures--
		return errSerialization
	}
	snap := r.snapshot()
	if err := fn(ctx, r); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memRepo) IsRetryable(err error) bool {
	return errors.Is(err, errSerialization)
}

func (r *memRepo) GetProduct(ctx context.Context, tenantID uuid.UUID, productID int64) (ProductStock, error) {
	p, ok := r.products[productID]
	if !ok || p.TenantID != tenantID {
		return ProductStock{}, ErrNotFound
	}
	return p, nil
}

func (r *memRepo) GetProductForUpdate(ctx context.Context, tenantID uuid.UUID, productID int64) (ProductStock, error) {
	return r.GetProduct(ctx, tenantID, productID)
}

func (r *memRepo) UpdateProductStock(ctx context.Context, product ProductStock) error {
	if _, ok := r.products[product.ProductID]; !ok {
		return ErrNotFound
	}
	r.products[product.ProductID] = product
	return nil
}

func (r *memRepo) InsertMovement(ctx context.Context, movement Movement) error {
	r.movements = append(r.movements, movement)
	return nil
}

func (r *memRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var out []Movement
	for _, m := range r.movements {
		if m.TenantID != filter.TenantID {
			continue
		}
		if filter.ProductID != 0 && m.ProductID != filter.ProductID {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		if !filter.From.IsZero() && m.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && m.CreatedAt.After(filter.To) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memRepo) InsertAdjustment(ctx context.Context, adjustment Adjustment) error {
	r.adjustments[adjustment.ID] = adjustment
	return nil
}

func (r *memRepo) GetAdjustment(ctx context.Context, id uuid.UUID) (Adjustment, error) {
	a, ok := r.adjustments[id]
	if !ok {
		return Adjustment{}, ErrNotFound
	}
	return a, nil
}

func (r *memRepo) GetAdjustmentForUpdate(ctx context.Context, id uuid.UUID) (Adjustment, error) {
	return r.GetAdjustment(ctx, id)
}

func (r *memRepo) SetAdjustmentApproved(ctx context.Context, id uuid.UUID, approvedBy int64, at time.Time) error {
	a, ok := r.adjustments[id]
	if !ok {
		return ErrNotFound
	}
	a.IsApproved = true
	a.ApprovedBy = approvedBy
	a.ApprovedAt = at
	r.adjustments[id] = a
	return nil
}

func (r *memRepo) DeleteAdjustment(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.adjustments[id]; !ok {
		return ErrNotFound
	}
	delete(r.adjustments, id)
	return nil
}

func (r *memRepo) ListAdjustments(ctx context.Context, tenantID uuid.UUID, limit int) ([]Adjustment, error) {
	var out []Adjustment
	for _, a := range r.adjustments {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) GetActiveAlert(ctx context.Context, productID int64, alertType AlertType) (Alert, error) {
	for _, a := range r.alerts {
		if a.ProductID == productID && a.Type == alertType && a.IsActive {
			return a, nil
		}
	}
	return Alert{}, ErrNotFound
}

func (r *memRepo) InsertAlert(ctx context.Context, alert Alert) error {
	for _, a := range r.alerts {
		if a.ProductID == alert.ProductID && a.Type == alert.Type && a.IsActive {
			return ErrDuplicateAlert
		}
	}
	r.alerts[alert.ID] = alert
	return nil
}

func (r *memRepo) GetAlertForUpdate(ctx context.Context, id uuid.UUID) (Alert, error) {
	a, ok := r.alerts[id]
	if !ok {
		return Alert{}, ErrNotFound
	}
	return a, nil
}

func (r *memRepo) SetAlertResolved(ctx context.Context, id uuid.UUID, resolvedBy int64, at time.Time) error {
	a, ok := r.alerts[id]
	if !ok {
		return ErrNotFound
	}
	a.IsActive = false
	a.ResolvedBy = resolvedBy
	a.ResolvedAt = at
	r.alerts[id] = a
	return nil
}

func (r *memRepo) ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error) {
	var out []Alert
	for _, a := range r.alerts {
		if a.TenantID != filter.TenantID {
			continue
		}
		if filter.ProductID != 0 && a.ProductID != filter.ProductID {
			continue
		}
		if filter.ActiveOnly && !a.IsActive {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memRepo) GetLocation(ctx context.Context, tenantID uuid.UUID, locationID int64) (Location, error) {
	l, ok := r.locations[locationID]
	if !ok || l.TenantID != tenantID {
		return Location{}, ErrNotFound
	}
	return l, nil
}

func (r *memRepo) GetLocationStockForUpdate(ctx context.Context, productID, locationID int64) (LocationStock, error) {
	ls, ok := r.locationStock[locationKey{productID, locationID}]
	if !ok {
		return LocationStock{}, ErrNotFound
	}
	return ls, nil
}

func (r *memRepo) UpsertLocationStock(ctx context.Context, row LocationStock) error {
	r.locationStock[locationKey{row.ProductID, row.LocationID}] = row
	return nil
}

func (r *memRepo) InsertTransfer(ctx context.Context, transfer Transfer) error {
	r.transfers = append(r.transfers, transfer)
	return nil
}

func (r *memRepo) ListLocationStock(ctx context.Context, productID int64) ([]LocationStock, error) {
	var out []LocationStock
	for key, ls := range r.locationStock {
		if key.productID == productID {
			out = append(out, ls)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].LocationID < out[b].LocationID })
	return out, nil
}

func (r *memRepo) ListProductsBelowMinimum(ctx context.Context) ([]ProductStock, error) {
	var out []ProductStock
	for _, p := range r.products {
		if p.Stock <= p.MinQuantity {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].ProductID < out[b].ProductID })
	return out, nil
}

func (r *memRepo) SumActiveReservations(ctx context.Context, productID, excludeSaleID int64) (int64, error) {
	var sum int64
	for _, res := range r.reservations {
		if res.ProductID == productID && res.IsActive && res.SaleID != excludeSaleID {
			sum += res.Quantity
		}
	}
	return sum, nil
}

func (r *memRepo) InsertReservation(ctx context.Context, reservation Reservation) error {
	r.reservations[reservation.ID] = reservation
	return nil
}

func (r *memRepo) ReleaseReservationsForSale(ctx context.Context, saleID int64, at time.Time) (int64, error) {
	var released int64
	for id, res := range r.reservations {
		if res.SaleID == saleID && res.IsActive {
			res.IsActive = false
			res.ReleasedAt = at
			r.reservations[id] = res
			released++
		}
	}
	return released, nil
}

func (r *memRepo) ListActiveReservations(ctx context.Context, productID int64) ([]Reservation, error) {
	var out []Reservation
	for _, res := range r.reservations {
		if res.ProductID == productID && res.IsActive {
			out = append(out, res)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (r *memRepo) SweepExpiredReservations(ctx context.Context, now time.Time) (int64, error) {
	var swept int64
	for id, res := range r.reservations {
		if res.IsActive && !res.ExpiresAt.IsZero() && res.ExpiresAt.Before(now) {
			res.IsActive = false
			res.ReleasedAt = now
			r.reservations[id] = res
			swept++
		}
	}
	return swept, nil
}

// movementsFor returns the ledger entries of one product in insertion order.
func (r *memRepo) movementsFor(productID int64) []Movement {
	var out []Movement
	for _, m := range r.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out
}
