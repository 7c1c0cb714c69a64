package sales

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
	"github.com/asiria/asiriapos/internal/stock"
)

// ReturnStage posts the RETURN movement inside the approval transaction. The
// stock.TxRepository is bound to that transaction; saleReference is the
// reference number of the sale being returned against.
type ReturnStage func(ctx context.Context, tx stock.TxRepository, ret Return, saleReference string) error

// Repository is the sales persistence port.
type Repository interface {
	CreateSale(ctx context.Context, header SalesHeader, details []SalesDetail) (SalesHeader, []SalesDetail, error)
	GetSale(ctx context.Context, tenantID uuid.UUID, id int64) (SalesHeader, []SalesDetail, error)
	ListSales(ctx context.Context, tenantID uuid.UUID, status SaleStatus, limit int) ([]SalesHeader, error)
	GetSaleStatus(ctx context.Context, saleID int64) (SaleStatus, error)
	// TransitionSale flips the status only when the current value matches
	// from; a stale transition reports ErrSaleNotPending.
	TransitionSale(ctx context.Context, tenantID uuid.UUID, id int64, from, to SaleStatus, at time.Time) error
	GetSalesDetail(ctx context.Context, tenantID uuid.UUID, detailID int64) (SalesDetail, SalesHeader, error)
	DeleteSalesDetail(ctx context.Context, tenantID uuid.UUID, detailID int64) error

	CreateReturn(ctx context.Context, ret Return) (Return, error)
	// ApproveReturn stamps the approval exactly once; a second call reports
	// ErrAlreadyApproved. The stage runs in the same transaction as the
	// approval stamp, so a stage failure leaves the return unapproved.
	ApproveReturn(ctx context.Context, tenantID uuid.UUID, returnID uuid.UUID, approverID int64, at time.Time, stage ReturnStage) (Return, error)
	GetReturn(ctx context.Context, tenantID uuid.UUID, returnID uuid.UUID) (Return, error)

	CreateReceipt(ctx context.Context, receipt Receipt) (Receipt, error)
	ListReceipts(ctx context.Context, tenantID uuid.UUID, saleID int64) ([]Receipt, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed sales repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const saleColumns = `s.id, s.user_client_id, s.customer_id, s.reference_number, s.status, s.total_amount, s.created_by, s.created_at, s.confirmed_at`

func scanSale(row pgx.Row) (SalesHeader, error) {
	var h SalesHeader
	var confirmedAt pgtype.Timestamptz
	err := row.Scan(&h.ID, &h.TenantID, &h.CustomerID, &h.ReferenceNumber, &h.Status,
		&h.TotalAmount, &h.CreatedBy, &h.CreatedAt, &confirmedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SalesHeader{}, ErrNotFound
	}
	if confirmedAt.Valid {
		h.ConfirmedAt = confirmedAt.Time
	}
	return h, err
}

func (r *repository) CreateSale(ctx context.Context, header SalesHeader, details []SalesDetail) (SalesHeader, []SalesDetail, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		header.Status = StatusPending
		header.TotalAmount = 0
		for i := range details {
			details[i].Subtotal = float64(details[i].Quantity) * (details[i].Price - details[i].Discount)
			header.TotalAmount += details[i].Subtotal
		}
		err := tx.QueryRow(ctx, `INSERT INTO sales (user_client_id, customer_id, reference_number, status, total_amount, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			header.TenantID, header.CustomerID, header.ReferenceNumber, header.Status,
			header.TotalAmount, header.CreatedBy, now).Scan(&header.ID)
		if err != nil {
			return err
		}
		header.CreatedAt = now
		for i := range details {
			details[i].SaleID = header.ID
			err := tx.QueryRow(ctx, `INSERT INTO sales_details (sale_id, product_id, quantity, price, discount, subtotal)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
				header.ID, details[i].ProductID, details[i].Quantity, details[i].Price,
				details[i].Discount, details[i].Subtotal).Scan(&details[i].ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SalesHeader{}, nil, err
	}
	return header, details, nil
}

func (r *repository) GetSale(ctx context.Context, tenantID uuid.UUID, id int64) (SalesHeader, []SalesDetail, error) {
	header, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales s WHERE s.id = $1 AND s.user_client_id = $2`, id, tenantID))
	if err != nil {
		return SalesHeader{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, sale_id, product_id, quantity, price, discount, subtotal
FROM sales_details WHERE sale_id = $1 ORDER BY id`, id)
	if err != nil {
		return SalesHeader{}, nil, err
	}
	defer rows.Close()

	var details []SalesDetail
	for rows.Next() {
		var d SalesDetail
		if err := rows.Scan(&d.ID, &d.SaleID, &d.ProductID, &d.Quantity, &d.Price, &d.Discount, &d.Subtotal); err != nil {
			return SalesHeader{}, nil, err
		}
		details = append(details, d)
	}
	return header, details, rows.Err()
}

func (r *repository) ListSales(ctx context.Context, tenantID uuid.UUID, status SaleStatus, limit int) ([]SalesHeader, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + saleColumns + ` FROM sales s WHERE s.user_client_id = $1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		query += ` AND s.status = $2`
	}
	args = append(args, limit)
	query += ` ORDER BY s.created_at DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var headers []SalesHeader
	for rows.Next() {
		h, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		headers = append(headers, h)
	}
	return headers, rows.Err()
}

func (r *repository) GetSaleStatus(ctx context.Context, saleID int64) (SaleStatus, error) {
	var status SaleStatus
	err := r.pool.QueryRow(ctx, `SELECT status FROM sales WHERE id = $1`, saleID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return status, err
}

func (r *repository) TransitionSale(ctx context.Context, tenantID uuid.UUID, id int64, from, to SaleStatus, at time.Time) error {
	query := `UPDATE sales SET status = $1 WHERE id = $2 AND user_client_id = $3 AND status = $4`
	args := []any{to, id, tenantID, from}
	if to == StatusConfirmed {
		query = `UPDATE sales SET status = $1, confirmed_at = $5 WHERE id = $2 AND user_client_id = $3 AND status = $4`
		args = append(args, at)
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already past the expected state.
		if _, statusErr := r.GetSaleStatus(ctx, id); errors.Is(statusErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrSaleNotPending
	}
	return nil
}

func (r *repository) GetSalesDetail(ctx context.Context, tenantID uuid.UUID, detailID int64) (SalesDetail, SalesHeader, error) {
	var d SalesDetail
	err := r.pool.QueryRow(ctx, `SELECT d.id, d.sale_id, d.product_id, d.quantity, d.price, d.discount, d.subtotal
FROM sales_details d JOIN sales s ON s.id = d.sale_id
WHERE d.id = $1 AND s.user_client_id = $2`, detailID, tenantID).
		Scan(&d.ID, &d.SaleID, &d.ProductID, &d.Quantity, &d.Price, &d.Discount, &d.Subtotal)
	if errors.Is(err, pgx.ErrNoRows) {
		return SalesDetail{}, SalesHeader{}, ErrNotFound
	}
	if err != nil {
		return SalesDetail{}, SalesHeader{}, err
	}
	header, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales s WHERE s.id = $1`, d.SaleID))
	return d, header, err
}

func (r *repository) DeleteSalesDetail(ctx context.Context, tenantID uuid.UUID, detailID int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var saleID int64
		var subtotal float64
		err := tx.QueryRow(ctx, `SELECT d.sale_id, d.subtotal
FROM sales_details d JOIN sales s ON s.id = d.sale_id
WHERE d.id = $1 AND s.user_client_id = $2 FOR UPDATE OF d`, detailID, tenantID).Scan(&saleID, &subtotal)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM sales_details WHERE id = $1`, detailID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE sales SET total_amount = total_amount - $1 WHERE id = $2`, subtotal, saleID)
		return err
	})
}

func (r *repository) CreateReturn(ctx context.Context, ret Return) (Return, error) {
	if ret.ID == uuid.Nil {
		ret.ID = uuid.New()
	}
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `INSERT INTO sales_returns (id, user_client_id, sale_id, product_id, quantity, reason, is_approved, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8)`,
		ret.ID, ret.TenantID, ret.SaleID, ret.ProductID, ret.Quantity, ret.Reason, ret.CreatedBy, now)
	if err != nil {
		return Return{}, err
	}
	ret.CreatedAt = now
	return ret, nil
}

func (r *repository) ApproveReturn(ctx context.Context, tenantID uuid.UUID, returnID uuid.UUID, approverID int64, at time.Time, stage ReturnStage) (Return, error) {
	var ret Return
	err := r.withLedgerRetry(ctx, func(tx pgx.Tx) error {
		var approvedBy pgtype.Int8
		var approvedAt pgtype.Timestamptz
		err := tx.QueryRow(ctx, `SELECT id, user_client_id, sale_id, product_id, quantity, reason, is_approved, created_by, created_at, approved_by, approved_at
FROM sales_returns WHERE id = $1 AND user_client_id = $2 FOR UPDATE`, returnID, tenantID).
			Scan(&ret.ID, &ret.TenantID, &ret.SaleID, &ret.ProductID, &ret.Quantity, &ret.Reason,
				&ret.IsApproved, &ret.CreatedBy, &ret.CreatedAt, &approvedBy, &approvedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if ret.IsApproved {
			return ErrAlreadyApproved
		}
		if _, err := tx.Exec(ctx, `UPDATE sales_returns SET is_approved = TRUE, approved_by = $1, approved_at = $2 WHERE id = $3`,
			approverID, at, returnID); err != nil {
			return err
		}
		ret.IsApproved = true
		ret.ApprovedBy = approverID
		ret.ApprovedAt = at
		if stage != nil {
			var saleReference string
			if err := tx.QueryRow(ctx, `SELECT reference_number FROM sales WHERE id = $1`, ret.SaleID).Scan(&saleReference); err != nil {
				return err
			}
			return stage(ctx, stock.TxRepositoryOn(tx), ret, saleReference)
		}
		return nil
	})
	if err != nil {
		return Return{}, err
	}
	return ret, nil
}

// The RETURN posting shares the approval transaction, so the serialization
// retry the engine normally provides runs here instead.
func (r *repository) withLedgerRetry(ctx context.Context, fn func(pgx.Tx) error) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = db.WithTx(ctx, r.pool, fn)
		if err == nil || !db.IsSerializationFailure(err) {
			return err
		}
	}
	return err
}

func (r *repository) GetReturn(ctx context.Context, tenantID uuid.UUID, returnID uuid.UUID) (Return, error) {
	var ret Return
	var approvedBy pgtype.Int8
	var approvedAt pgtype.Timestamptz
	err := r.pool.QueryRow(ctx, `SELECT id, user_client_id, sale_id, product_id, quantity, reason, is_approved, created_by, created_at, approved_by, approved_at
FROM sales_returns WHERE id = $1 AND user_client_id = $2`, returnID, tenantID).
		Scan(&ret.ID, &ret.TenantID, &ret.SaleID, &ret.ProductID, &ret.Quantity, &ret.Reason,
			&ret.IsApproved, &ret.CreatedBy, &ret.CreatedAt, &approvedBy, &approvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Return{}, ErrNotFound
	}
	if approvedBy.Valid {
		ret.ApprovedBy = approvedBy.Int64
	}
	if approvedAt.Valid {
		ret.ApprovedAt = approvedAt.Time
	}
	return ret, err
}

func (r *repository) CreateReceipt(ctx context.Context, receipt Receipt) (Receipt, error) {
	if receipt.IssuedAt.IsZero() {
		receipt.IssuedAt = time.Now().UTC()
	}
	err := r.pool.QueryRow(ctx, `INSERT INTO sales_receipts (sale_id, receipt_number, amount, payment_option_id, narration, issued_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		receipt.SaleID, receipt.ReceiptNumber, receipt.Amount, receipt.PaymentOptionID,
		receipt.Narration, receipt.IssuedAt).Scan(&receipt.ID)
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

func (r *repository) ListReceipts(ctx context.Context, tenantID uuid.UUID, saleID int64) ([]Receipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.id, r.sale_id, r.receipt_number, r.amount, r.payment_option_id, r.narration, r.issued_at
FROM sales_receipts r JOIN sales s ON s.id = r.sale_id
WHERE r.sale_id = $1 AND s.user_client_id = $2 ORDER BY r.issued_at`, saleID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []Receipt
	for rows.Next() {
		var rc Receipt
		if err := rows.Scan(&rc.ID, &rc.SaleID, &rc.ReceiptNumber, &rc.Amount, &rc.PaymentOptionID, &rc.Narration, &rc.IssuedAt); err != nil {
			return nil, err
		}
		receipts = append(receipts, rc)
	}
	return receipts, rows.Err()
}
