package registry

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the registry persistence port.
type Repository interface {
	ListCustomers(ctx context.Context, filters ListFilters) ([]Customer, int, error)
	GetCustomer(ctx context.Context, tenantID uuid.UUID, id int64) (Customer, error)
	CreateCustomer(ctx context.Context, customer Customer) (Customer, error)
	UpdateCustomer(ctx context.Context, customer Customer) error
	DeactivateCustomer(ctx context.Context, tenantID uuid.UUID, id int64) error

	ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error)
	GetSupplier(ctx context.Context, tenantID uuid.UUID, id int64) (Supplier, error)
	CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error)
	UpdateSupplier(ctx context.Context, supplier Supplier) error
	DeactivateSupplier(ctx context.Context, tenantID uuid.UUID, id int64) error

	ListPaymentOptions(ctx context.Context, tenantID uuid.UUID) ([]PaymentOption, error)
	CreatePaymentOption(ctx context.Context, option PaymentOption) (PaymentOption, error)
	DeletePaymentOption(ctx context.Context, tenantID uuid.UUID, id int64) error

	ListExpenseCategories(ctx context.Context, tenantID uuid.UUID) ([]ExpenseCategory, error)
	CreateExpenseCategory(ctx context.Context, category ExpenseCategory) (ExpenseCategory, error)
	UpdateExpenseCategory(ctx context.Context, category ExpenseCategory) error
	DeleteExpenseCategory(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) error

	ListExpenses(ctx context.Context, filters ListFilters) ([]Expense, int, error)
	CreateExpense(ctx context.Context, expense Expense) (Expense, error)
	DeleteExpense(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) error

	GetBusinessProfile(ctx context.Context, tenantID uuid.UUID) (BusinessProfile, error)
	UpsertBusinessProfile(ctx context.Context, profile BusinessProfile) (BusinessProfile, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed registry repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const customerColumns = `id, user_client_id, name, COALESCE(phone, ''), COALESCE(email, ''), COALESCE(address, ''), is_active, created_at, updated_at`

func (r *repository) ListCustomers(ctx context.Context, filters ListFilters) ([]Customer, int, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE user_client_id = $1`
	countQuery := `SELECT COUNT(*) FROM customers WHERE user_client_id = $1`
	args := []any{filters.TenantID}

	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		cond := ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR phone ILIKE $` + strconv.Itoa(len(args)) + `)`
		query += cond
		countQuery += cond
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += pageClause(&args, filters.Page, filters.PageSize)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

func pageClause(args *[]any, page, size int) string {
	if size <= 0 {
		size = 50
	}
	offset := 0
	if page > 1 {
		offset = (page - 1) * size
	}
	*args = append(*args, size)
	clause := ` ORDER BY name ASC LIMIT $` + strconv.Itoa(len(*args))
	*args = append(*args, offset)
	return clause + ` OFFSET $` + strconv.Itoa(len(*args))
}

func (r *repository) GetCustomer(ctx context.Context, tenantID uuid.UUID, id int64) (Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1 AND user_client_id = $2`,
		id, tenantID,
	).Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	return c, err
}

func (r *repository) CreateCustomer(ctx context.Context, customer Customer) (Customer, error) {
	now := time.Now().UTC()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO customers (user_client_id, name, phone, email, address, is_active, created_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), TRUE, $6, $6)
		 RETURNING id`,
		customer.TenantID, customer.Name, customer.Phone, customer.Email, customer.Address, now,
	).Scan(&customer.ID)
	if err != nil {
		return Customer{}, err
	}
	customer.IsActive = true
	customer.CreatedAt = now
	customer.UpdatedAt = now
	return customer, nil
}

func (r *repository) UpdateCustomer(ctx context.Context, customer Customer) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE customers
		 SET name = $1, phone = NULLIF($2, ''), email = NULLIF($3, ''), address = NULLIF($4, ''), updated_at = NOW()
		 WHERE id = $5 AND user_client_id = $6`,
		customer.Name, customer.Phone, customer.Email, customer.Address, customer.ID, customer.TenantID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeactivateCustomer(ctx context.Context, tenantID uuid.UUID, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE customers SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND user_client_id = $2`,
		id, tenantID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const supplierColumns = `id, user_client_id, name, COALESCE(contact_person, ''), COALESCE(phone, ''), COALESCE(email, ''), COALESCE(address, ''), is_active, created_at, updated_at`

func (r *repository) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	query := `SELECT ` + supplierColumns + ` FROM suppliers WHERE user_client_id = $1`
	countQuery := `SELECT COUNT(*) FROM suppliers WHERE user_client_id = $1`
	args := []any{filters.TenantID}

	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		cond := ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR contact_person ILIKE $` + strconv.Itoa(len(args)) + `)`
		query += cond
		countQuery += cond
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += pageClause(&args, filters.Page, filters.PageSize)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var suppliers []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Name, &s.ContactPerson, &s.Phone, &s.Email, &s.Address, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, total, rows.Err()
}

func (r *repository) GetSupplier(ctx context.Context, tenantID uuid.UUID, id int64) (Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx,
		`SELECT `+supplierColumns+` FROM suppliers WHERE id = $1 AND user_client_id = $2`,
		id, tenantID,
	).Scan(&s.ID, &s.TenantID, &s.Name, &s.ContactPerson, &s.Phone, &s.Email, &s.Address, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrNotFound
	}
	return s, err
}

func (r *repository) CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error) {
	now := time.Now().UTC()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO suppliers (user_client_id, name, contact_person, phone, email, address, is_active, created_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), TRUE, $7, $7)
		 RETURNING id`,
		supplier.TenantID, supplier.Name, supplier.ContactPerson, supplier.Phone, supplier.Email, supplier.Address, now,
	).Scan(&supplier.ID)
	if err != nil {
		return Supplier{}, err
	}
	supplier.IsActive = true
	supplier.CreatedAt = now
	supplier.UpdatedAt = now
	return supplier, nil
}

func (r *repository) UpdateSupplier(ctx context.Context, supplier Supplier) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE suppliers
		 SET name = $1, contact_person = NULLIF($2, ''), phone = NULLIF($3, ''), email = NULLIF($4, ''), address = NULLIF($5, ''), updated_at = NOW()
		 WHERE id = $6 AND user_client_id = $7`,
		supplier.Name, supplier.ContactPerson, supplier.Phone, supplier.Email, supplier.Address, supplier.ID, supplier.TenantID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeactivateSupplier(ctx context.Context, tenantID uuid.UUID, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE suppliers SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND user_client_id = $2`,
		id, tenantID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ListPaymentOptions(ctx context.Context, tenantID uuid.UUID) ([]PaymentOption, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_client_id, name, is_active, created_at
		 FROM payment_options WHERE user_client_id = $1 AND is_active = TRUE ORDER BY name ASC`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var options []PaymentOption
	for rows.Next() {
		var o PaymentOption
		if err := rows.Scan(&o.ID, &o.TenantID, &o.Name, &o.IsActive, &o.CreatedAt); err != nil {
			return nil, err
		}
		options = append(options, o)
	}
	return options, rows.Err()
}

func (r *repository) CreatePaymentOption(ctx context.Context, option PaymentOption) (PaymentOption, error) {
	now := time.Now().UTC()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO payment_options (user_client_id, name, is_active, created_at)
		 VALUES ($1, $2, TRUE, $3) RETURNING id`,
		option.TenantID, option.Name, now,
	).Scan(&option.ID)
	if err != nil {
		return PaymentOption{}, err
	}
	option.IsActive = true
	option.CreatedAt = now
	return option, nil
}

func (r *repository) DeletePaymentOption(ctx context.Context, tenantID uuid.UUID, id int64) error {
	var refs int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM receipts WHERE payment_option_id = $1`, id,
	).Scan(&refs)
	if err != nil {
		return err
	}
	if refs > 0 {
		return ErrInUse
	}
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM payment_options WHERE id = $1 AND user_client_id = $2`, id, tenantID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ListExpenseCategories(ctx context.Context, tenantID uuid.UUID) ([]ExpenseCategory, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_client_id, name, COALESCE(description, ''), created_at, updated_at
		 FROM expense_categories WHERE user_client_id = $1 ORDER BY name ASC`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []ExpenseCategory
	for rows.Next() {
		var c ExpenseCategory
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *repository) CreateExpenseCategory(ctx context.Context, category ExpenseCategory) (ExpenseCategory, error) {
	category.ID = uuid.New()
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO expense_categories (id, user_client_id, name, description, created_at, updated_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $5)`,
		category.ID, category.TenantID, category.Name, category.Description, now,
	)
	if err != nil {
		return ExpenseCategory{}, err
	}
	category.CreatedAt = now
	category.UpdatedAt = now
	return category, nil
}

func (r *repository) UpdateExpenseCategory(ctx context.Context, category ExpenseCategory) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE expense_categories SET name = $1, description = NULLIF($2, ''), updated_at = NOW()
		 WHERE id = $3 AND user_client_id = $4`,
		category.Name, category.Description, category.ID, category.TenantID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteExpenseCategory(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) error {
	var refs int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM expenses WHERE expense_category_id = $1`, id,
	).Scan(&refs)
	if err != nil {
		return err
	}
	if refs > 0 {
		return ErrInUse
	}
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM expense_categories WHERE id = $1 AND user_client_id = $2`, id, tenantID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const expenseColumns = `id, user_client_id, expense_category_id, COALESCE(payment_option_id, 0), name, amount, COALESCE(description, ''), created_at, updated_at`

func (r *repository) ListExpenses(ctx context.Context, filters ListFilters) ([]Expense, int, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE user_client_id = $1`
	countQuery := `SELECT COUNT(*) FROM expenses WHERE user_client_id = $1`
	args := []any{filters.TenantID}

	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		cond := ` AND name ILIKE $` + strconv.Itoa(len(args))
		query += cond
		countQuery += cond
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += pageClause(&args, filters.Page, filters.PageSize)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var expenses []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.TenantID, &e.CategoryID, &e.PaymentOptionID, &e.Name, &e.Amount, &e.Description, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, err
		}
		expenses = append(expenses, e)
	}
	return expenses, total, rows.Err()
}

func (r *repository) CreateExpense(ctx context.Context, expense Expense) (Expense, error) {
	expense.ID = uuid.New()
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO expenses (id, user_client_id, expense_category_id, payment_option_id, name, amount, description, created_at, updated_at)
		 VALUES ($1, $2, $3, NULLIF($4, 0), $5, $6, NULLIF($7, ''), $8, $8)`,
		expense.ID, expense.TenantID, expense.CategoryID, expense.PaymentOptionID, expense.Name, expense.Amount, expense.Description, now,
	)
	if err != nil {
		return Expense{}, err
	}
	expense.CreatedAt = now
	expense.UpdatedAt = now
	return expense, nil
}

func (r *repository) DeleteExpense(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM expenses WHERE id = $1 AND user_client_id = $2`, id, tenantID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const profileColumns = `user_client_id, store_name, COALESCE(company_name, ''), COALESCE(address, ''), COALESCE(country, ''), COALESCE(business_type, ''), created_at, updated_at`

func (r *repository) GetBusinessProfile(ctx context.Context, tenantID uuid.UUID) (BusinessProfile, error) {
	var p BusinessProfile
	err := r.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM business_profiles WHERE user_client_id = $1`,
		tenantID,
	).Scan(&p.TenantID, &p.StoreName, &p.CompanyName, &p.Address, &p.Country, &p.BusinessType, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BusinessProfile{}, ErrNotFound
	}
	return p, err
}

func (r *repository) UpsertBusinessProfile(ctx context.Context, profile BusinessProfile) (BusinessProfile, error) {
	now := time.Now().UTC()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO business_profiles (user_client_id, store_name, company_name, address, country, business_type, created_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $7)
		 ON CONFLICT (user_client_id) DO UPDATE SET
		   store_name = EXCLUDED.store_name,
		   company_name = EXCLUDED.company_name,
		   address = EXCLUDED.address,
		   country = EXCLUDED.country,
		   business_type = EXCLUDED.business_type,
		   updated_at = EXCLUDED.updated_at
		 RETURNING created_at`,
		profile.TenantID, profile.StoreName, profile.CompanyName, profile.Address, profile.Country, profile.BusinessType, now,
	).Scan(&profile.CreatedAt)
	if err != nil {
		return BusinessProfile{}, err
	}
	profile.UpdatedAt = now
	return profile, nil
}
