package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Service implements registry use cases.
type Service struct {
	repo Repository
}

// NewService constructs the registry service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListCustomers(ctx context.Context, filters ListFilters) ([]Customer, int, error) {
	return s.repo.ListCustomers(ctx, filters)
}

func (s *Service) GetCustomer(ctx context.Context, tenantID uuid.UUID, id int64) (Customer, error) {
	return s.repo.GetCustomer(ctx, tenantID, id)
}

func (s *Service) CreateCustomer(ctx context.Context, customer Customer) (Customer, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return Customer{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	return s.repo.CreateCustomer(ctx, customer)
}

func (s *Service) UpdateCustomer(ctx context.Context, customer Customer) error {
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	return s.repo.UpdateCustomer(ctx, customer)
}

func (s *Service) DeactivateCustomer(ctx context.Context, tenantID uuid.UUID, id int64) error {
	return s.repo.DeactivateCustomer(ctx, tenantID, id)
}

func (s *Service) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	return s.repo.ListSuppliers(ctx, filters)
}

func (s *Service) GetSupplier(ctx context.Context, tenantID uuid.UUID, id int64) (Supplier, error) {
	return s.repo.GetSupplier(ctx, tenantID, id)
}

func (s *Service) CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return Supplier{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	return s.repo.CreateSupplier(ctx, supplier)
}

func (s *Service) UpdateSupplier(ctx context.Context, supplier Supplier) error {
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	return s.repo.UpdateSupplier(ctx, supplier)
}

func (s *Service) DeactivateSupplier(ctx context.Context, tenantID uuid.UUID, id int64) error {
	return s.repo.DeactivateSupplier(ctx, tenantID, id)
}

func (s *Service) ListPaymentOptions(ctx context.Context, tenantID uuid.UUID) ([]PaymentOption, error) {
	return s.repo.ListPaymentOptions(ctx, tenantID)
}

func (s *Service) CreatePaymentOption(ctx context.Context, option PaymentOption) (PaymentOption, error) {
	option.Name = strings.TrimSpace(option.Name)
	if option.Name == "" {
		return PaymentOption{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	return s.repo.CreatePaymentOption(ctx, option)
}

func (s *Service) DeletePaymentOption(ctx context.Context, tenantID uuid.UUID, id int64) error {
	return s.repo.DeletePaymentOption(ctx, tenantID, id)
}

func (s *Service) ListExpenseCategories(ctx context.Context, tenantID uuid.UUID) ([]ExpenseCategory, error) {
	return s.repo.ListExpenseCategories(ctx, tenantID)
}

func (s *Service) CreateExpenseCategory(ctx context.Context, category ExpenseCategory) (ExpenseCategory, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return ExpenseCategory{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	return s.repo.CreateExpenseCategory(ctx, category)
}

func (s *Service) UpdateExpenseCategory(ctx context.Context, category ExpenseCategory) error {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	return s.repo.UpdateExpenseCategory(ctx, category)
}

func (s *Service) DeleteExpenseCategory(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) error {
	return s.repo.DeleteExpenseCategory(ctx, tenantID, id)
}

func (s *Service) ListExpenses(ctx context.Context, filters ListFilters) ([]Expense, int, error) {
	return s.repo.ListExpenses(ctx, filters)
}

func (s *Service) CreateExpense(ctx context.Context, expense Expense) (Expense, error) {
	expense.Name = strings.TrimSpace(expense.Name)
	if expense.Name == "" {
		return Expense{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if expense.CategoryID == uuid.Nil {
		return Expense{}, fmt.Errorf("%w: category is required", ErrValidation)
	}
	if expense.Amount <= 0 {
		return Expense{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	return s.repo.CreateExpense(ctx, expense)
}

func (s *Service) DeleteExpense(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) error {
	return s.repo.DeleteExpense(ctx, tenantID, id)
}

func (s *Service) GetBusinessProfile(ctx context.Context, tenantID uuid.UUID) (BusinessProfile, error) {
	return s.repo.GetBusinessProfile(ctx, tenantID)
}

func (s *Service) SaveBusinessProfile(ctx context.Context, profile BusinessProfile) (BusinessProfile, error) {
	profile.StoreName = strings.TrimSpace(profile.StoreName)
	if profile.StoreName == "" {
		return BusinessProfile{}, fmt.Errorf("%w: store name is required", ErrValidation)
	}
	return s.repo.UpsertBusinessProfile(ctx, profile)
}
