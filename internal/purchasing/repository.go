package purchasing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asiria/asiriapos/internal/platform/db"
	"github.com/asiria/asiriapos/internal/stock"
)

// LedgerStage posts ledger work inside the same transaction as a purchase
// document write, so the document and its stock effects commit or roll back
// together. The stock.TxRepository is bound to that transaction.
type LedgerStage func(ctx context.Context, tx stock.TxRepository, header PurchaseHeader, details []PurchaseDetail) error

// ReceiptStage is the LedgerStage shape for goods receipts.
type ReceiptStage func(ctx context.Context, tx stock.TxRepository, receipt GoodsReceipt, lines []GoodsReceiptLine) error

// DetailStage is the LedgerStage shape for a single appended line.
type DetailStage func(ctx context.Context, tx stock.TxRepository, detail PurchaseDetail, header PurchaseHeader) error

// Repository is the purchasing persistence port.
type Repository interface {
	CreatePurchase(ctx context.Context, header PurchaseHeader, details []PurchaseDetail, stage LedgerStage) (PurchaseHeader, []PurchaseDetail, error)
	GetPurchase(ctx context.Context, tenantID uuid.UUID, id int64) (PurchaseHeader, []PurchaseDetail, error)
	ListPurchases(ctx context.Context, tenantID uuid.UUID, limit int) ([]PurchaseHeader, error)
	AddPurchaseDetail(ctx context.Context, tenantID uuid.UUID, detail PurchaseDetail, stage DetailStage) (PurchaseDetail, error)
	GetPurchaseDetail(ctx context.Context, tenantID uuid.UUID, detailID int64) (PurchaseDetail, PurchaseHeader, error)
	DeletePurchaseDetail(ctx context.Context, tenantID uuid.UUID, detailID int64) error
	RecordPayment(ctx context.Context, tenantID uuid.UUID, payment Payment) (Payment, error)

	CreatePurchaseOrder(ctx context.Context, order PurchaseOrder, lines []PurchaseOrderLine) (PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, tenantID uuid.UUID, id int64) (PurchaseOrder, []PurchaseOrderLine, error)
	ConvertPurchaseOrder(ctx context.Context, tenantID uuid.UUID, orderID, actorID int64, stage LedgerStage) (PurchaseHeader, []PurchaseDetail, error)

	CreateGoodsReceipt(ctx context.Context, receipt GoodsReceipt, lines []GoodsReceiptLine, stage ReceiptStage) (GoodsReceipt, []GoodsReceiptLine, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed purchasing repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) CreatePurchase(ctx context.Context, header PurchaseHeader, details []PurchaseDetail, stage LedgerStage) (PurchaseHeader, []PurchaseDetail, error) {
	err := r.withLedgerRetry(ctx, func(tx pgx.Tx) error {
		var err error
		header, details, err = insertPurchase(ctx, tx, header, details)
		if err != nil {
			return err
		}
		if stage != nil {
			return stage(ctx, stock.TxRepositoryOn(tx), header, details)
		}
		return nil
	})
	if err != nil {
		return PurchaseHeader{}, nil, err
	}
	return header, details, nil
}

// The ledger work the services stage shares these transactions, so the
// serialization retry the engine normally provides runs here instead.
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

// insertPurchase writes a header and its details inside the caller's
// transaction. It is shared with the PO conversion path.
func insertPurchase(ctx context.Context, tx pgx.Tx, header PurchaseHeader, details []PurchaseDetail) (PurchaseHeader, []PurchaseDetail, error) {
	now := time.Now().UTC()
	if header.PurchaseDate.IsZero() {
		header.PurchaseDate = now
	}
	header.TotalAmount = 0
	for i := range details {
		details[i].Subtotal = float64(details[i].Quantity) * (details[i].Price - details[i].Discount)
		header.TotalAmount += details[i].Subtotal
	}
	err := tx.QueryRow(ctx, `INSERT INTO purchases (user_client_id, supplier_id, reference_number, purchase_date, total_amount, paid_amount, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, 0, $6, $7) RETURNING id`,
		header.TenantID, header.SupplierID, header.ReferenceNumber, header.PurchaseDate,
		header.TotalAmount, header.CreatedBy, now).Scan(&header.ID)
	if err != nil {
		return PurchaseHeader{}, nil, err
	}
	header.CreatedAt = now
	for i := range details {
		details[i].PurchaseID = header.ID
		err := tx.QueryRow(ctx, `INSERT INTO purchase_details (purchase_id, product_id, quantity, price, discount, subtotal)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			header.ID, details[i].ProductID, details[i].Quantity, details[i].Price,
			details[i].Discount, details[i].Subtotal).Scan(&details[i].ID)
		if err != nil {
			return PurchaseHeader{}, nil, err
		}
	}
	return header, details, nil
}

const purchaseColumns = `p.id, p.user_client_id, p.supplier_id, p.reference_number, p.purchase_date, p.total_amount, p.paid_amount, p.created_by, p.created_at`

func scanPurchase(row pgx.Row) (PurchaseHeader, error) {
	var h PurchaseHeader
	err := row.Scan(&h.ID, &h.TenantID, &h.SupplierID, &h.ReferenceNumber, &h.PurchaseDate,
		&h.TotalAmount, &h.PaidAmount, &h.CreatedBy, &h.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseHeader{}, ErrNotFound
	}
	return h, err
}

func (r *repository) GetPurchase(ctx context.Context, tenantID uuid.UUID, id int64) (PurchaseHeader, []PurchaseDetail, error) {
	header, err := scanPurchase(r.pool.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases p WHERE p.id = $1 AND p.user_client_id = $2`, id, tenantID))
	if err != nil {
		return PurchaseHeader{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, purchase_id, product_id, quantity, price, discount, subtotal
FROM purchase_details WHERE purchase_id = $1 ORDER BY id`, id)
	if err != nil {
		return PurchaseHeader{}, nil, err
	}
	defer rows.Close()

	var details []PurchaseDetail
	for rows.Next() {
		var d PurchaseDetail
		if err := rows.Scan(&d.ID, &d.PurchaseID, &d.ProductID, &d.Quantity, &d.Price, &d.Discount, &d.Subtotal); err != nil {
			return PurchaseHeader{}, nil, err
		}
		details = append(details, d)
	}
	return header, details, rows.Err()
}

func (r *repository) ListPurchases(ctx context.Context, tenantID uuid.UUID, limit int) ([]PurchaseHeader, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+purchaseColumns+` FROM purchases p WHERE p.user_client_id = $1 ORDER BY p.created_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var headers []PurchaseHeader
	for rows.Next() {
		h, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		headers = append(headers, h)
	}
	return headers, rows.Err()
}

func (r *repository) AddPurchaseDetail(ctx context.Context, tenantID uuid.UUID, detail PurchaseDetail, stage DetailStage) (PurchaseDetail, error) {
	err := r.withLedgerRetry(ctx, func(tx pgx.Tx) error {
		header, err := lockPurchase(ctx, tx, tenantID, detail.PurchaseID)
		if err != nil {
			return err
		}
		detail.Subtotal = float64(detail.Quantity) * (detail.Price - detail.Discount)
		err = tx.QueryRow(ctx, `INSERT INTO purchase_details (purchase_id, product_id, quantity, price, discount, subtotal)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			detail.PurchaseID, detail.ProductID, detail.Quantity, detail.Price, detail.Discount, detail.Subtotal).Scan(&detail.ID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE purchases SET total_amount = total_amount + $1 WHERE id = $2`, detail.Subtotal, detail.PurchaseID); err != nil {
			return err
		}
		if stage != nil {
			return stage(ctx, stock.TxRepositoryOn(tx), detail, header)
		}
		return nil
	})
	if err != nil {
		return PurchaseDetail{}, err
	}
	return detail, nil
}

func lockPurchase(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, id int64) (PurchaseHeader, error) {
	return scanPurchase(tx.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases p WHERE p.id = $1 AND p.user_client_id = $2 FOR UPDATE`, id, tenantID))
}

func (r *repository) GetPurchaseDetail(ctx context.Context, tenantID uuid.UUID, detailID int64) (PurchaseDetail, PurchaseHeader, error) {
	var d PurchaseDetail
	err := r.pool.QueryRow(ctx, `SELECT d.id, d.purchase_id, d.product_id, d.quantity, d.price, d.discount, d.subtotal
FROM purchase_details d JOIN purchases p ON p.id = d.purchase_id
WHERE d.id = $1 AND p.user_client_id = $2`, detailID, tenantID).
		Scan(&d.ID, &d.PurchaseID, &d.ProductID, &d.Quantity, &d.Price, &d.Discount, &d.Subtotal)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseDetail{}, PurchaseHeader{}, ErrNotFound
	}
	if err != nil {
		return PurchaseDetail{}, PurchaseHeader{}, err
	}
	header, err := scanPurchase(r.pool.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases p WHERE p.id = $1`, d.PurchaseID))
	return d, header, err
}

func (r *repository) DeletePurchaseDetail(ctx context.Context, tenantID uuid.UUID, detailID int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var purchaseID int64
		var subtotal float64
		err := tx.QueryRow(ctx, `SELECT d.purchase_id, d.subtotal
FROM purchase_details d JOIN purchases p ON p.id = d.purchase_id
WHERE d.id = $1 AND p.user_client_id = $2 FOR UPDATE OF d`, detailID, tenantID).Scan(&purchaseID, &subtotal)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM purchase_details WHERE id = $1`, detailID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE purchases SET total_amount = total_amount - $1 WHERE id = $2`, subtotal, purchaseID)
		return err
	})
}

func (r *repository) RecordPayment(ctx context.Context, tenantID uuid.UUID, payment Payment) (Payment, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		header, err := lockPurchase(ctx, tx, tenantID, payment.PurchaseID)
		if err != nil {
			return err
		}
		if header.PaidAmount+payment.Amount > header.TotalAmount {
			return ErrOverpayment
		}
		if payment.PaidAt.IsZero() {
			payment.PaidAt = time.Now().UTC()
		}
		err = tx.QueryRow(ctx, `INSERT INTO purchase_payments (purchase_id, amount, payment_option_id, note, paid_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5) RETURNING id`,
			payment.PurchaseID, payment.Amount, payment.PaymentOptionID, payment.Note, payment.PaidAt).Scan(&payment.ID)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE purchases SET paid_amount = paid_amount + $1 WHERE id = $2`, payment.Amount, payment.PurchaseID)
		return err
	})
	if err != nil {
		return Payment{}, err
	}
	return payment, nil
}

func (r *repository) CreatePurchaseOrder(ctx context.Context, order PurchaseOrder, lines []PurchaseOrderLine) (PurchaseOrder, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		if order.OrderDate.IsZero() {
			order.OrderDate = now
		}
		err := tx.QueryRow(ctx, `INSERT INTO purchase_orders (user_client_id, supplier_id, reference_number, order_date, converted_purchase_id, created_by, created_at)
VALUES ($1, $2, $3, $4, NULL, $5, $6) RETURNING id`,
			order.TenantID, order.SupplierID, order.ReferenceNumber, order.OrderDate, order.CreatedBy, now).Scan(&order.ID)
		if err != nil {
			return err
		}
		order.CreatedAt = now
		for i := range lines {
			lines[i].PurchaseOrderID = order.ID
			err := tx.QueryRow(ctx, `INSERT INTO purchase_order_lines (purchase_order_id, product_id, quantity, price, discount)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
				order.ID, lines[i].ProductID, lines[i].Quantity, lines[i].Price, lines[i].Discount).Scan(&lines[i].ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	return order, nil
}

func (r *repository) GetPurchaseOrder(ctx context.Context, tenantID uuid.UUID, id int64) (PurchaseOrder, []PurchaseOrderLine, error) {
	var order PurchaseOrder
	var converted *int64
	err := r.pool.QueryRow(ctx, `SELECT id, user_client_id, supplier_id, reference_number, order_date, converted_purchase_id, created_by, created_at
FROM purchase_orders WHERE id = $1 AND user_client_id = $2`, id, tenantID).
		Scan(&order.ID, &order.TenantID, &order.SupplierID, &order.ReferenceNumber, &order.OrderDate, &converted, &order.CreatedBy, &order.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, nil, ErrNotFound
	}
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	if converted != nil {
		order.ConvertedPurchaseID = *converted
	}
	lines, err := r.purchaseOrderLines(ctx, id)
	return order, lines, err
}

func (r *repository) purchaseOrderLines(ctx context.Context, orderID int64) ([]PurchaseOrderLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, purchase_order_id, product_id, quantity, price, discount
FROM purchase_order_lines WHERE purchase_order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []PurchaseOrderLine
	for rows.Next() {
		var l PurchaseOrderLine
		if err := rows.Scan(&l.ID, &l.PurchaseOrderID, &l.ProductID, &l.Quantity, &l.Price, &l.Discount); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ConvertPurchaseOrder creates the purchase from the order exactly once. The
// order row is re-read FOR UPDATE inside the transaction, so two racing
// conversions serialize and the loser sees the back-reference already set.
func (r *repository) ConvertPurchaseOrder(ctx context.Context, tenantID uuid.UUID, orderID, actorID int64, stage LedgerStage) (PurchaseHeader, []PurchaseDetail, error) {
	var header PurchaseHeader
	var details []PurchaseDetail
	err := r.withLedgerRetry(ctx, func(tx pgx.Tx) error {
		var order PurchaseOrder
		var converted *int64
		err := tx.QueryRow(ctx, `SELECT id, user_client_id, supplier_id, reference_number, order_date, converted_purchase_id, created_by, created_at
FROM purchase_orders WHERE id = $1 AND user_client_id = $2 FOR UPDATE`, orderID, tenantID).
			Scan(&order.ID, &order.TenantID, &order.SupplierID, &order.ReferenceNumber, &order.OrderDate, &converted, &order.CreatedBy, &order.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if converted != nil {
			return ErrAlreadyConverted
		}

		rows, err := tx.Query(ctx, `SELECT id, purchase_order_id, product_id, quantity, price, discount
FROM purchase_order_lines WHERE purchase_order_id = $1 ORDER BY id`, orderID)
		if err != nil {
			return err
		}
		var lines []PurchaseOrderLine
		for rows.Next() {
			var l PurchaseOrderLine
			if err := rows.Scan(&l.ID, &l.PurchaseOrderID, &l.ProductID, &l.Quantity, &l.Price, &l.Discount); err != nil {
				rows.Close()
				return err
			}
			lines = append(lines, l)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		details = details[:0]
		for _, l := range lines {
			details = append(details, PurchaseDetail{
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				Price:     l.Price,
				Discount:  l.Discount,
			})
		}
		header, details, err = insertPurchase(ctx, tx, PurchaseHeader{
			TenantID:        tenantID,
			SupplierID:      order.SupplierID,
			ReferenceNumber: order.ReferenceNumber,
			CreatedBy:       actorID,
		}, details)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE purchase_orders SET converted_purchase_id = $1 WHERE id = $2`, header.ID, orderID); err != nil {
			return err
		}
		// A stage failure rolls the back-reference out with everything
		// else, so the conversion can simply be retried.
		if stage != nil {
			return stage(ctx, stock.TxRepositoryOn(tx), header, details)
		}
		return nil
	})
	if err != nil {
		return PurchaseHeader{}, nil, err
	}
	return header, details, nil
}

func (r *repository) CreateGoodsReceipt(ctx context.Context, receipt GoodsReceipt, lines []GoodsReceiptLine, stage ReceiptStage) (GoodsReceipt, []GoodsReceiptLine, error) {
	err := r.withLedgerRetry(ctx, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		if receipt.ReceivedAt.IsZero() {
			receipt.ReceivedAt = now
		}
		err := tx.QueryRow(ctx, `INSERT INTO goods_receipts (user_client_id, supplier_id, reference_number, received_at, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			receipt.TenantID, receipt.SupplierID, receipt.ReferenceNumber, receipt.ReceivedAt, receipt.CreatedBy, now).Scan(&receipt.ID)
		if err != nil {
			return err
		}
		receipt.CreatedAt = now
		for i := range lines {
			lines[i].GoodsReceiptID = receipt.ID
			err := tx.QueryRow(ctx, `INSERT INTO goods_receipt_lines (goods_receipt_id, product_id, quantity, unit_cost)
VALUES ($1, $2, $3, $4) RETURNING id`,
				receipt.ID, lines[i].ProductID, lines[i].Quantity, lines[i].UnitCost).Scan(&lines[i].ID)
			if err != nil {
				return err
			}
		}
		if stage != nil {
			return stage(ctx, stock.TxRepositoryOn(tx), receipt, lines)
		}
		return nil
	})
	if err != nil {
		return GoodsReceipt{}, nil, err
	}
	return receipt, lines, nil
}
