package registry

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/asiria/asiriapos/internal/platform/httpx"
	"github.com/asiria/asiriapos/internal/shared"
)

// Handler wires HTTP endpoints for customers, suppliers, payment options,
// expenses and the business profile.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the registry handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers registry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/customers", h.handleListCustomers)
	r.Post("/customers", h.handleCreateCustomer)
	r.Get("/customers/{id}", h.handleGetCustomer)
	r.Put("/customers/{id}", h.handleUpdateCustomer)
	r.Delete("/customers/{id}", h.handleDeactivateCustomer)

	r.Get("/suppliers", h.handleListSuppliers)
	r.Post("/suppliers", h.handleCreateSupplier)
	r.Get("/suppliers/{id}", h.handleGetSupplier)
	r.Put("/suppliers/{id}", h.handleUpdateSupplier)
	r.Delete("/suppliers/{id}", h.handleDeactivateSupplier)

	r.Get("/payment-options", h.handleListPaymentOptions)
	r.Post("/payment-options", h.handleCreatePaymentOption)
	r.Delete("/payment-options/{id}", h.handleDeletePaymentOption)

	r.Get("/expense-categories", h.handleListExpenseCategories)
	r.Post("/expense-categories", h.handleCreateExpenseCategory)
	r.Put("/expense-categories/{id}", h.handleUpdateExpenseCategory)
	r.Delete("/expense-categories/{id}", h.handleDeleteExpenseCategory)

	r.Get("/expenses", h.handleListExpenses)
	r.Post("/expenses", h.handleCreateExpense)
	r.Delete("/expenses/{id}", h.handleDeleteExpense)

	r.Get("/business-profile", h.handleGetBusinessProfile)
	r.Put("/business-profile", h.handleSaveBusinessProfile)
}

func (h *Handler) filtersFrom(r *http.Request) ListFilters {
	q := r.URL.Query()
	filters := ListFilters{
		TenantID: shared.TenantFromContext(r.Context()),
		Search:   q.Get("search"),
	}
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filters.Page = n
		}
	}
	if v := q.Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filters.PageSize = n
		}
	}
	return filters
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

type customerForm struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address"`
}

func (h *Handler) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, total, err := h.service.ListCustomers(r.Context(), h.filtersFrom(r))
	if err != nil {
		h.respondError(w, r, "list customers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customers": customers, "total": total})
}

func (h *Handler) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var form customerForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	customer, err := h.service.CreateCustomer(r.Context(), Customer{
		TenantID: shared.TenantFromContext(r.Context()),
		Name:     form.Name,
		Phone:    form.Phone,
		Email:    form.Email,
		Address:  form.Address,
	})
	if err != nil {
		h.respondError(w, r, "create customer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, customer)
}

func (h *Handler) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid customer id")
		return
	}
	customer, err := h.service.GetCustomer(r.Context(), shared.TenantFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, r, "get customer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid customer id")
		return
	}
	var form customerForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err = h.service.UpdateCustomer(r.Context(), Customer{
		ID:       id,
		TenantID: shared.TenantFromContext(r.Context()),
		Name:     form.Name,
		Phone:    form.Phone,
		Email:    form.Email,
		Address:  form.Address,
	})
	if err != nil {
		h.respondError(w, r, "update customer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeactivateCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid customer id")
		return
	}
	if err := h.service.DeactivateCustomer(r.Context(), shared.TenantFromContext(r.Context()), id); err != nil {
		h.respondError(w, r, "deactivate customer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type supplierForm struct {
	Name          string `json:"name" validate:"required"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
	Email         string `json:"email" validate:"omitempty,email"`
	Address       string `json:"address"`
}

func (h *Handler) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, total, err := h.service.ListSuppliers(r.Context(), h.filtersFrom(r))
	if err != nil {
		h.respondError(w, r, "list suppliers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"suppliers": suppliers, "total": total})
}

func (h *Handler) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var form supplierForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	supplier, err := h.service.CreateSupplier(r.Context(), Supplier{
		TenantID:      shared.TenantFromContext(r.Context()),
		Name:          form.Name,
		ContactPerson: form.ContactPerson,
		Phone:         form.Phone,
		Email:         form.Email,
		Address:       form.Address,
	})
	if err != nil {
		h.respondError(w, r, "create supplier", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}

func (h *Handler) handleGetSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid supplier id")
		return
	}
	supplier, err := h.service.GetSupplier(r.Context(), shared.TenantFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, r, "get supplier", err)
		return
	}
	httpx.JSON(w, http.StatusOK, supplier)
}

func (h *Handler) handleUpdateSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid supplier id")
		return
	}
	var form supplierForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err = h.service.UpdateSupplier(r.Context(), Supplier{
		ID:            id,
		TenantID:      shared.TenantFromContext(r.Context()),
		Name:          form.Name,
		ContactPerson: form.ContactPerson,
		Phone:         form.Phone,
		Email:         form.Email,
		Address:       form.Address,
	})
	if err != nil {
		h.respondError(w, r, "update supplier", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeactivateSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid supplier id")
		return
	}
	if err := h.service.DeactivateSupplier(r.Context(), shared.TenantFromContext(r.Context()), id); err != nil {
		h.respondError(w, r, "deactivate supplier", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type paymentOptionForm struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) handleListPaymentOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.service.ListPaymentOptions(r.Context(), shared.TenantFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, "list payment options", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payment_options": options})
}

func (h *Handler) handleCreatePaymentOption(w http.ResponseWriter, r *http.Request) {
	var form paymentOptionForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	option, err := h.service.CreatePaymentOption(r.Context(), PaymentOption{
		TenantID: shared.TenantFromContext(r.Context()),
		Name:     form.Name,
	})
	if err != nil {
		h.respondError(w, r, "create payment option", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, option)
}

func (h *Handler) handleDeletePaymentOption(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payment option id")
		return
	}
	if err := h.service.DeletePaymentOption(r.Context(), shared.TenantFromContext(r.Context()), id); err != nil {
		h.respondError(w, r, "delete payment option", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathUUID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

type expenseCategoryForm struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
}

func (h *Handler) handleListExpenseCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListExpenseCategories(r.Context(), shared.TenantFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, "list expense categories", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"expense_categories": categories})
}

func (h *Handler) handleCreateExpenseCategory(w http.ResponseWriter, r *http.Request) {
	var form expenseCategoryForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	category, err := h.service.CreateExpenseCategory(r.Context(), ExpenseCategory{
		TenantID:    shared.TenantFromContext(r.Context()),
		Name:        form.Name,
		Description: form.Description,
	})
	if err != nil {
		h.respondError(w, r, "create expense category", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, category)
}

func (h *Handler) handleUpdateExpenseCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid expense category id")
		return
	}
	var form expenseCategoryForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err = h.service.UpdateExpenseCategory(r.Context(), ExpenseCategory{
		ID:          id,
		TenantID:    shared.TenantFromContext(r.Context()),
		Name:        form.Name,
		Description: form.Description,
	})
	if err != nil {
		h.respondError(w, r, "update expense category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteExpenseCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid expense category id")
		return
	}
	if err := h.service.DeleteExpenseCategory(r.Context(), shared.TenantFromContext(r.Context()), id); err != nil {
		h.respondError(w, r, "delete expense category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type expenseForm struct {
	CategoryID      string  `json:"category_id" validate:"required,uuid"`
	PaymentOptionID int64   `json:"payment_option_id"`
	Name            string  `json:"name" validate:"required,max=100"`
	Amount          float64 `json:"amount" validate:"required,gt=0"`
	Description     string  `json:"description"`
}

func (h *Handler) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, total, err := h.service.ListExpenses(r.Context(), h.filtersFrom(r))
	if err != nil {
		h.respondError(w, r, "list expenses", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"expenses": expenses, "total": total})
}

func (h *Handler) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var form expenseForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	categoryID, err := uuid.Parse(form.CategoryID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid category id")
		return
	}
	expense, err := h.service.CreateExpense(r.Context(), Expense{
		TenantID:        shared.TenantFromContext(r.Context()),
		CategoryID:      categoryID,
		PaymentOptionID: form.PaymentOptionID,
		Name:            form.Name,
		Amount:          form.Amount,
		Description:     form.Description,
	})
	if err != nil {
		h.respondError(w, r, "create expense", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, expense)
}

func (h *Handler) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid expense id")
		return
	}
	if err := h.service.DeleteExpense(r.Context(), shared.TenantFromContext(r.Context()), id); err != nil {
		h.respondError(w, r, "delete expense", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type businessProfileForm struct {
	StoreName    string `json:"store_name" validate:"required,max=100"`
	CompanyName  string `json:"company_name" validate:"max=150"`
	Address      string `json:"address"`
	Country      string `json:"country" validate:"max=100"`
	BusinessType string `json:"business_type" validate:"max=100"`
}

func (h *Handler) handleGetBusinessProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.GetBusinessProfile(r.Context(), shared.TenantFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, "get business profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *Handler) handleSaveBusinessProfile(w http.ResponseWriter, r *http.Request) {
	var form businessProfileForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	profile, err := h.service.SaveBusinessProfile(r.Context(), BusinessProfile{
		TenantID:     shared.TenantFromContext(r.Context()),
		StoreName:    form.StoreName,
		CompanyName:  form.CompanyName,
		Address:      form.Address,
		Country:      form.Country,
		BusinessType: form.BusinessType,
	})
	if err != nil {
		h.respondError(w, r, "save business profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInUse):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("registry request failed", "op", op, "path", r.URL.Path, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "unexpected error")
	}
}
