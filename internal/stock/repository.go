package stock

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asiria/asiriapos/internal/platform/db"
)

// TxRepository exposes the transactional operations used by the engine.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, tenantID uuid.UUID, productID int64) (ProductStock, error)
	UpdateProductStock(ctx context.Context, product ProductStock) error
	InsertMovement(ctx context.Context, movement Movement) error
	InsertAdjustment(ctx context.Context, adjustment Adjustment) error
	GetAdjustmentForUpdate(ctx context.Context, id uuid.UUID) (Adjustment, error)
	SetAdjustmentApproved(ctx context.Context, id uuid.UUID, approvedBy int64, at time.Time) error
	DeleteAdjustment(ctx context.Context, id uuid.UUID) error
	GetActiveAlert(ctx context.Context, productID int64, alertType AlertType) (Alert, error)
	InsertAlert(ctx context.Context, alert Alert) error
	GetAlertForUpdate(ctx context.Context, id uuid.UUID) (Alert, error)
	SetAlertResolved(ctx context.Context, id uuid.UUID, resolvedBy int64, at time.Time) error
	GetLocation(ctx context.Context, tenantID uuid.UUID, locationID int64) (Location, error)
	GetLocationStockForUpdate(ctx context.Context, productID, locationID int64) (LocationStock, error)
	UpsertLocationStock(ctx context.Context, row LocationStock) error
	InsertTransfer(ctx context.Context, transfer Transfer) error
	// SumActiveReservations totals active holds on a product, excluding the
	// given sale's own holds; excludeSaleID zero excludes nothing.
	SumActiveReservations(ctx context.Context, productID, excludeSaleID int64) (int64, error)
	InsertReservation(ctx context.Context, reservation Reservation) error
	ReleaseReservationsForSale(ctx context.Context, saleID int64, at time.Time) (int64, error)
}

// Repository persists the stock ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// TxRepositoryOn adapts an externally managed transaction, letting sibling
// repositories commit their document rows and the ledger work they stage in
// one transaction.
func TxRepositoryOn(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// IsRetryable satisfies the engine's RetryClassifier.
func (r *Repository) IsRetryable(err error) bool {
	return db.IsSerializationFailure(err)
}

// GetProduct is the non-locking read used by summaries.
func (r *Repository) GetProduct(ctx context.Context, tenantID uuid.UUID, productID int64) (ProductStock, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, user_client_id, stock, min_quantity, cost, COALESCE(average_cost, 0), updated_at
FROM products WHERE id = $1 AND user_client_id = $2`, productID, tenantID)
	var p ProductStock
	err := row.Scan(&p.ProductID, &p.TenantID, &p.Stock, &p.MinQuantity, &p.Cost, &p.AverageCost, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductStock{}, ErrNotFound
	}
	return p, err
}

func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	query := `SELECT id, user_client_id, product_id, quantity, previous_stock, new_stock, movement_type, reference_number, reason, created_by, created_at
FROM stock_movements WHERE user_client_id = $1`
	args := []any{filter.TenantID}
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		query += ` AND product_id = $2`
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += ` AND movement_type = $` + itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += ` AND created_at >= $` + itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += ` AND created_at <= $` + itoa(len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)
	query += ` ORDER BY created_at DESC LIMIT $` + itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *Repository) ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error) {
	query := `SELECT id, user_client_id, product_id, alert_type, message, is_active, created_at, resolved_by, resolved_at
FROM stock_alerts WHERE user_client_id = $1`
	args := []any{filter.TenantID}
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		query += ` AND product_id = $` + itoa(len(args))
	}
	if filter.ActiveOnly {
		query += ` AND is_active = true`
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)
	query += ` ORDER BY created_at DESC LIMIT $` + itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (r *Repository) ListAdjustments(ctx context.Context, tenantID uuid.UUID, limit int) ([]Adjustment, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, user_client_id, product_id, quantity_adjusted, reason, reference_number, is_approved, created_by, created_at, approved_by, approved_at
FROM stock_adjustments WHERE user_client_id = $1 ORDER BY created_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var adjustments []Adjustment
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

func (r *Repository) GetAdjustment(ctx context.Context, id uuid.UUID) (Adjustment, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, user_client_id, product_id, quantity_adjusted, reason, reference_number, is_approved, created_by, created_at, approved_by, approved_at
FROM stock_adjustments WHERE id = $1`, id)
	a, err := scanAdjustment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Adjustment{}, ErrNotFound
	}
	return a, err
}

func (r *Repository) ListLocationStock(ctx context.Context, productID int64) ([]LocationStock, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, location_id, quantity, updated_at
FROM product_location_stock WHERE product_id = $1 ORDER BY location_id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []LocationStock
	for rows.Next() {
		var ls LocationStock
		if err := rows.Scan(&ls.ProductID, &ls.LocationID, &ls.Quantity, &ls.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, ls)
	}
	return result, rows.Err()
}

func (r *Repository) ListProductsBelowMinimum(ctx context.Context) ([]ProductStock, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_client_id, stock, min_quantity, cost, COALESCE(average_cost, 0), updated_at
FROM products WHERE stock <= min_quantity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []ProductStock
	for rows.Next() {
		var p ProductStock
		if err := rows.Scan(&p.ProductID, &p.TenantID, &p.Stock, &p.MinQuantity, &p.Cost, &p.AverageCost, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *Repository) ListActiveReservations(ctx context.Context, productID int64) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_client_id, sale_id, sale_detail_id, product_id, quantity, is_active, expires_at, created_at, released_at
FROM stock_reservations WHERE product_id = $1 AND is_active = true ORDER BY created_at`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

func (r *Repository) SweepExpiredReservations(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_reservations SET is_active = false, released_at = $1
WHERE is_active = true AND expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *txRepo) GetProductForUpdate(ctx context.Context, tenantID uuid.UUID, productID int64) (ProductStock, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, user_client_id, stock, min_quantity, cost, COALESCE(average_cost, 0), updated_at
FROM products WHERE id = $1 AND user_client_id = $2 FOR UPDATE`, productID, tenantID)
	var p ProductStock
	err := row.Scan(&p.ProductID, &p.TenantID, &p.Stock, &p.MinQuantity, &p.Cost, &p.AverageCost, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductStock{}, ErrNotFound
	}
	return p, err
}

func (r *txRepo) UpdateProductStock(ctx context.Context, product ProductStock) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET stock = $1, average_cost = $2, updated_at = NOW() WHERE id = $3`,
		product.Stock, nullFloat(product.AverageCost), product.ProductID)
	return err
}

func (r *txRepo) InsertMovement(ctx context.Context, m Movement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (id, user_client_id, product_id, quantity, previous_stock, new_stock, movement_type, reference_number, reason, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.TenantID, m.ProductID, m.Quantity, m.PreviousStock, m.NewStock, string(m.Type), m.ReferenceNumber, m.Reason, nullInt(m.CreatedBy), m.CreatedAt)
	return err
}

func (r *txRepo) InsertAdjustment(ctx context.Context, a Adjustment) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_adjustments (id, user_client_id, product_id, quantity_adjusted, reason, reference_number, is_approved, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8)`,
		a.ID, a.TenantID, a.ProductID, a.QuantityAdjusted, a.Reason, a.ReferenceNumber, nullInt(a.CreatedBy), a.CreatedAt)
	return err
}

func (r *txRepo) GetAdjustmentForUpdate(ctx context.Context, id uuid.UUID) (Adjustment, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, user_client_id, product_id, quantity_adjusted, reason, reference_number, is_approved, created_by, created_at, approved_by, approved_at
FROM stock_adjustments WHERE id = $1 FOR UPDATE`, id)
	a, err := scanAdjustment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Adjustment{}, ErrNotFound
	}
	return a, err
}

func (r *txRepo) SetAdjustmentApproved(ctx context.Context, id uuid.UUID, approvedBy int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_adjustments SET is_approved = true, approved_by = $1, approved_at = $2 WHERE id = $3`, approvedBy, at, id)
	return err
}

func (r *txRepo) DeleteAdjustment(ctx context.Context, id uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM stock_adjustments WHERE id = $1 AND is_approved = false`, id)
	return err
}

func (r *txRepo) GetActiveAlert(ctx context.Context, productID int64, alertType AlertType) (Alert, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, user_client_id, product_id, alert_type, message, is_active, created_at, resolved_by, resolved_at
FROM stock_alerts WHERE product_id = $1 AND alert_type = $2 AND is_active = true`, productID, string(alertType))
	a, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Alert{}, ErrNotFound
	}
	return a, err
}

func (r *txRepo) InsertAlert(ctx context.Context, a Alert) error {
	// ux_stock_alerts_active is a partial unique index on
	// (product_id, alert_type) WHERE is_active.
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_alerts (id, user_client_id, product_id, alert_type, message, is_active, created_at)
VALUES ($1, $2, $3, $4, $5, true, $6)`,
		a.ID, a.TenantID, a.ProductID, string(a.Type), a.Message, a.CreatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateAlert
	}
	return err
}

func (r *txRepo) GetAlertForUpdate(ctx context.Context, id uuid.UUID) (Alert, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, user_client_id, product_id, alert_type, message, is_active, created_at, resolved_by, resolved_at
FROM stock_alerts WHERE id = $1 FOR UPDATE`, id)
	a, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Alert{}, ErrNotFound
	}
	return a, err
}

func (r *txRepo) SetAlertResolved(ctx context.Context, id uuid.UUID, resolvedBy int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_alerts SET is_active = false, resolved_by = $1, resolved_at = $2 WHERE id = $3`, resolvedBy, at, id)
	return err
}

func (r *txRepo) GetLocation(ctx context.Context, tenantID uuid.UUID, locationID int64) (Location, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, user_client_id, code, name, created_at FROM locations WHERE id = $1 AND user_client_id = $2`, locationID, tenantID)
	var loc Location
	err := row.Scan(&loc.ID, &loc.TenantID, &loc.Code, &loc.Name, &loc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, ErrNotFound
	}
	return loc, err
}

func (r *txRepo) GetLocationStockForUpdate(ctx context.Context, productID, locationID int64) (LocationStock, error) {
	row := r.tx.QueryRow(ctx, `SELECT product_id, location_id, quantity, updated_at
FROM product_location_stock WHERE product_id = $1 AND location_id = $2 FOR UPDATE`, productID, locationID)
	var ls LocationStock
	err := row.Scan(&ls.ProductID, &ls.LocationID, &ls.Quantity, &ls.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return LocationStock{}, ErrNotFound
	}
	return ls, err
}

func (r *txRepo) UpsertLocationStock(ctx context.Context, row LocationStock) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO product_location_stock (product_id, location_id, quantity, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (product_id, location_id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()`,
		row.ProductID, row.LocationID, row.Quantity)
	return err
}

func (r *txRepo) InsertTransfer(ctx context.Context, t Transfer) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_transfers (id, user_client_id, product_id, from_location_id, to_location_id, quantity, reason, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.TenantID, t.ProductID, t.FromLocationID, t.ToLocationID, t.Quantity, t.Reason, nullInt(t.CreatedBy), t.CreatedAt)
	return err
}

func (r *txRepo) SumActiveReservations(ctx context.Context, productID, excludeSaleID int64) (int64, error) {
	var total int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM stock_reservations
WHERE product_id = $1 AND is_active = true AND sale_id <> $2`, productID, excludeSaleID).Scan(&total)
	return total, err
}

func (r *txRepo) InsertReservation(ctx context.Context, res Reservation) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_reservations (id, user_client_id, sale_id, sale_detail_id, product_id, quantity, is_active, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, true, $7, $8)`,
		res.ID, res.TenantID, res.SaleID, res.SaleDetailID, res.ProductID, res.Quantity, nullTime(res.ExpiresAt), res.CreatedAt)
	return err
}

func (r *txRepo) ReleaseReservationsForSale(ctx context.Context, saleID int64, at time.Time) (int64, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_reservations SET is_active = false, released_at = $1
WHERE sale_id = $2 AND is_active = true`, at, saleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	var movementType string
	var createdBy pgtype.Int8
	err := row.Scan(&m.ID, &m.TenantID, &m.ProductID, &m.Quantity, &m.PreviousStock, &m.NewStock, &movementType, &m.ReferenceNumber, &m.Reason, &createdBy, &m.CreatedAt)
	if err != nil {
		return Movement{}, err
	}
	m.Type = MovementType(movementType)
	m.CreatedBy = createdBy.Int64
	return m, nil
}

func scanAdjustment(row pgx.Row) (Adjustment, error) {
	var a Adjustment
	var createdBy, approvedBy pgtype.Int8
	var approvedAt pgtype.Timestamptz
	err := row.Scan(&a.ID, &a.TenantID, &a.ProductID, &a.QuantityAdjusted, &a.Reason, &a.ReferenceNumber, &a.IsApproved, &createdBy, &a.CreatedAt, &approvedBy, &approvedAt)
	if err != nil {
		return Adjustment{}, err
	}
	a.CreatedBy = createdBy.Int64
	a.ApprovedBy = approvedBy.Int64
	a.ApprovedAt = approvedAt.Time
	return a, nil
}

func scanAlert(row pgx.Row) (Alert, error) {
	var a Alert
	var alertType string
	var resolvedBy pgtype.Int8
	var resolvedAt pgtype.Timestamptz
	err := row.Scan(&a.ID, &a.TenantID, &a.ProductID, &alertType, &a.Message, &a.IsActive, &a.CreatedAt, &resolvedBy, &resolvedAt)
	if err != nil {
		return Alert{}, err
	}
	a.Type = AlertType(alertType)
	a.ResolvedBy = resolvedBy.Int64
	a.ResolvedAt = resolvedAt.Time
	return a, nil
}

func scanReservation(row pgx.Row) (Reservation, error) {
	var res Reservation
	var expiresAt, releasedAt pgtype.Timestamptz
	err := row.Scan(&res.ID, &res.TenantID, &res.SaleID, &res.SaleDetailID, &res.ProductID, &res.Quantity, &res.IsActive, &expiresAt, &res.CreatedAt, &releasedAt)
	if err != nil {
		return Reservation{}, err
	}
	res.ExpiresAt = expiresAt.Time
	res.ReleasedAt = releasedAt.Time
	return res, nil
}

func nullInt(v int64) pgtype.Int8 {
	return pgtype.Int8{Int64: v, Valid: v != 0}
}

func nullFloat(v float64) pgtype.Float8 {
	return pgtype.Float8{Float64: v, Valid: v != 0}
}

func nullTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
