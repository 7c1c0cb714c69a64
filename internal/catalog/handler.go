package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/asiria/asiriapos/internal/platform/httpx"
	"github.com/asiria/asiriapos/internal/shared"
)

// Handler wires HTTP endpoints for the catalog.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.handleListProducts)
	r.Post("/products", h.handleCreateProduct)
	r.Get("/products/barcode/{barcode}", h.handleProductByBarcode)
	r.Get("/products/{id}", h.handleGetProduct)
	r.Put("/products/{id}", h.handleUpdateProduct)
	r.Delete("/products/{id}", h.handleDeactivateProduct)

	r.Get("/categories", h.handleListCategories)
	r.Post("/categories", h.handleCreateCategory)
	r.Put("/categories/{id}", h.handleUpdateCategory)
	r.Delete("/categories/{id}", h.handleDeleteCategory)

	r.Get("/units", h.handleListUnits)
	r.Post("/units", h.handleCreateUnit)
	r.Put("/units/{id}", h.handleUpdateUnit)
	r.Delete("/units/{id}", h.handleDeleteUnit)
}

type productForm struct {
	Name        string  `json:"name" validate:"required"`
	Barcode     string  `json:"barcode"`
	CategoryID  int64   `json:"category_id" validate:"required"`
	UnitID      int64   `json:"unit_id" validate:"required"`
	Price       float64 `json:"price" validate:"gte=0"`
	Cost        float64 `json:"cost" validate:"gte=0"`
	Stock       int64   `json:"stock" validate:"gte=0"`
	MinQuantity int64   `json:"min_quantity" validate:"gte=0"`
}

type productResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Barcode     string    `json:"barcode,omitempty"`
	CategoryID  int64     `json:"category_id"`
	UnitID      int64     `json:"unit_id"`
	Price       float64   `json:"price"`
	Cost        float64   `json:"cost"`
	Stock       int64     `json:"stock"`
	MinQuantity int64     `json:"min_quantity"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toProductResponse(p Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Barcode:     p.Barcode,
		CategoryID:  p.CategoryID,
		UnitID:      p.UnitID,
		Price:       p.Price,
		Cost:        p.Cost,
		Stock:       p.Stock,
		MinQuantity: p.MinQuantity,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{
		TenantID:   shared.TenantFromContext(r.Context()),
		Search:     q.Get("search"),
		ActiveOnly: q.Get("active") == "true",
	}
	if v := q.Get("category_id"); v != "" {
		filters.CategoryID, _ = strconv.ParseInt(v, 10, 64)
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))

	products, total, err := h.service.ListProducts(r.Context(), filters)
	if err != nil {
		h.respondError(w, r, "list products", err)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": out, "total": total})
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var form productForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	product, err := h.service.CreateProduct(r.Context(), Product{
		TenantID:    shared.TenantFromContext(r.Context()),
		Name:        form.Name,
		Barcode:     form.Barcode,
		CategoryID:  form.CategoryID,
		UnitID:      form.UnitID,
		Price:       form.Price,
		Cost:        form.Cost,
		Stock:       form.Stock,
		MinQuantity: form.MinQuantity,
	}, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	product, err := h.service.GetProduct(r.Context(), shared.TenantFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, r, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) handleProductByBarcode(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProductByBarcode(r.Context(), shared.TenantFromContext(r.Context()), chi.URLParam(r, "barcode"))
	if err != nil {
		h.respondError(w, r, "product by barcode", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	var form productForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err = h.service.UpdateProduct(r.Context(), Product{
		ID:          id,
		TenantID:    shared.TenantFromContext(r.Context()),
		Name:        form.Name,
		Barcode:     form.Barcode,
		CategoryID:  form.CategoryID,
		UnitID:      form.UnitID,
		Price:       form.Price,
		Cost:        form.Cost,
		MinQuantity: form.MinQuantity,
		IsActive:    true,
	})
	if err != nil {
		h.respondError(w, r, "update product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeactivateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	if err := h.service.DeactivateProduct(r.Context(), shared.TenantFromContext(r.Context()), id); err != nil {
		h.respondError(w, r, "deactivate product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type categoryForm struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context(), shared.TenantFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, "list categories", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var form categoryForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	category, err := h.service.CreateCategory(r.Context(), Category{
		TenantID:    shared.TenantFromContext(r.Context()),
		Name:        form.Name,
		Description: form.Description,
	})
	if err != nil {
		h.respondError(w, r, "create category", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, category)
}

func (h *Handler) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid category id")
		return
	}
	var form categoryForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	err = h.service.UpdateCategory(r.Context(), Category{
		ID:          id,
		TenantID:    shared.TenantFromContext(r.Context()),
		Name:        form.Name,
		Description: form.Description,
	})
	if err != nil {
		h.respondError(w, r, "update category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid category id")
		return
	}
	if err := h.service.DeleteCategory(r.Context(), shared.TenantFromContext(r.Context()), id); err != nil {
		h.respondError(w, r, "delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type unitForm struct {
	Name         string `json:"name" validate:"required"`
	Abbreviation string `json:"abbreviation"`
}

func (h *Handler) handleListUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.service.ListUnits(r.Context(), shared.TenantFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, "list units", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"units": units})
}

func (h *Handler) handleCreateUnit(w http.ResponseWriter, r *http.Request) {
	var form unitForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	unit, err := h.service.CreateUnit(r.Context(), Unit{
		TenantID:     shared.TenantFromContext(r.Context()),
		Name:         form.Name,
		Abbreviation: form.Abbreviation,
	})
	if err != nil {
		h.respondError(w, r, "create unit", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, unit)
}

func (h *Handler) handleUpdateUnit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid unit id")
		return
	}
	var form unitForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	err = h.service.UpdateUnit(r.Context(), Unit{
		ID:           id,
		TenantID:     shared.TenantFromContext(r.Context()),
		Name:         form.Name,
		Abbreviation: form.Abbreviation,
	})
	if err != nil {
		h.respondError(w, r, "update unit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteUnit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid unit id")
		return
	}
	if err := h.service.DeleteUnit(r.Context(), shared.TenantFromContext(r.Context()), id); err != nil {
		h.respondError(w, r, "delete unit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrDuplicateBarcode), errors.Is(err, ErrInUse):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
