package purchasing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/asiria/asiriapos/internal/platform/httpx"
	"github.com/asiria/asiriapos/internal/shared"
	"github.com/asiria/asiriapos/internal/stock"
)

// Handler wires HTTP endpoints for purchasing.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the purchasing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchasing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/purchases", h.handleListPurchases)
	r.Post("/purchases", h.handleReceivePurchase)
	r.Get("/purchases/{id}", h.handleGetPurchase)
	r.Post("/purchases/{id}/details", h.handleAddDetail)
	r.Delete("/purchases/details/{detailID}", h.handleDeleteDetail)
	r.Post("/purchases/{id}/payments", h.handleRecordPayment)

	r.Post("/purchase-orders", h.handleCreateOrder)
	r.Get("/purchase-orders/{id}", h.handleGetOrder)
	r.Post("/purchase-orders/{id}/convert", h.handleConvertOrder)

	r.Post("/grn", h.handleReceiveGoods)
}

type purchaseLineForm struct {
	ProductID int64   `json:"product_id" validate:"required"`
	Quantity  int64   `json:"quantity" validate:"required,gt=0"`
	Price     float64 `json:"price" validate:"gte=0"`
	Discount  float64 `json:"discount" validate:"gte=0"`
}

type receivePurchaseForm struct {
	SupplierID      int64              `json:"supplier_id" validate:"required"`
	ReferenceNumber string             `json:"reference_number" validate:"required"`
	Lines           []purchaseLineForm `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handleReceivePurchase(w http.ResponseWriter, r *http.Request) {
	var form receivePurchaseForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines := make([]PurchaseLineInput, 0, len(form.Lines))
	for _, l := range form.Lines {
		lines = append(lines, PurchaseLineInput{ProductID: l.ProductID, Quantity: l.Quantity, Price: l.Price, Discount: l.Discount})
	}
	header, details, err := h.service.ReceivePurchase(r.Context(), ReceivePurchaseInput{
		TenantID:        shared.TenantFromContext(r.Context()),
		SupplierID:      form.SupplierID,
		ReferenceNumber: form.ReferenceNumber,
		Lines:           lines,
		ActorID:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, "receive purchase", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"purchase": header, "details": details})
}

func (h *Handler) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	purchases, err := h.service.ListPurchases(r.Context(), shared.TenantFromContext(r.Context()), limit)
	if err != nil {
		h.respondError(w, r, "list purchases", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchases": purchases})
}

func (h *Handler) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase id")
		return
	}
	header, details, err := h.service.GetPurchase(r.Context(), shared.TenantFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, r, "get purchase", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase": header, "details": details})
}

func (h *Handler) handleAddDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase id")
		return
	}
	var form purchaseLineForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	detail, err := h.service.AddPurchaseDetail(r.Context(), shared.TenantFromContext(r.Context()), PurchaseDetail{
		PurchaseID: id,
		ProductID:  form.ProductID,
		Quantity:   form.Quantity,
		Price:      form.Price,
		Discount:   form.Discount,
	}, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, "add purchase detail", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, detail)
}

func (h *Handler) handleDeleteDetail(w http.ResponseWriter, r *http.Request) {
	detailID, err := strconv.ParseInt(chi.URLParam(r, "detailID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid detail id")
		return
	}
	err = h.service.DeletePurchaseDetail(r.Context(), shared.TenantFromContext(r.Context()), detailID, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, "delete purchase detail", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type paymentForm struct {
	Amount          float64 `json:"amount" validate:"required,gt=0"`
	PaymentOptionID int64   `json:"payment_option_id"`
	Note            string  `json:"note"`
}

func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase id")
		return
	}
	var form paymentForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	payment, err := h.service.RecordPayment(r.Context(), shared.TenantFromContext(r.Context()), Payment{
		PurchaseID:      id,
		Amount:          form.Amount,
		PaymentOptionID: form.PaymentOptionID,
		Note:            form.Note,
	})
	if err != nil {
		h.respondError(w, r, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

type orderForm struct {
	SupplierID      int64              `json:"supplier_id" validate:"required"`
	ReferenceNumber string             `json:"reference_number" validate:"required"`
	Lines           []purchaseLineForm `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var form orderForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines := make([]OrderLineInput, 0, len(form.Lines))
	for _, l := range form.Lines {
		lines = append(lines, OrderLineInput{ProductID: l.ProductID, Quantity: l.Quantity, Price: l.Price, Discount: l.Discount})
	}
	order, err := h.service.CreatePurchaseOrder(r.Context(), CreateOrderInput{
		TenantID:        shared.TenantFromContext(r.Context()),
		SupplierID:      form.SupplierID,
		ReferenceNumber: form.ReferenceNumber,
		Lines:           lines,
		ActorID:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, "create purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	order, lines, err := h.service.GetPurchaseOrder(r.Context(), shared.TenantFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, r, "get purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": order, "lines": lines})
}

func (h *Handler) handleConvertOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	header, details, err := h.service.ConvertPurchaseOrder(r.Context(), shared.TenantFromContext(r.Context()), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, "convert purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"purchase": header, "details": details})
}

type grnLineForm struct {
	ProductID int64   `json:"product_id" validate:"required"`
	Quantity  int64   `json:"quantity" validate:"required,gt=0"`
	UnitCost  float64 `json:"unit_cost" validate:"gte=0"`
}

type grnForm struct {
	SupplierID      int64         `json:"supplier_id"`
	ReferenceNumber string        `json:"reference_number" validate:"required"`
	Lines           []grnLineForm `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handleReceiveGoods(w http.ResponseWriter, r *http.Request) {
	var form grnForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines := make([]GoodsReceiptLine, 0, len(form.Lines))
	for _, l := range form.Lines {
		lines = append(lines, GoodsReceiptLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitCost: l.UnitCost})
	}
	receipt, created, err := h.service.ReceiveGoods(r.Context(), ReceiveGoodsInput{
		TenantID:        shared.TenantFromContext(r.Context()),
		SupplierID:      form.SupplierID,
		ReferenceNumber: form.ReferenceNumber,
		Lines:           lines,
		ActorID:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, "receive goods", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"receipt": receipt, "lines": created})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, stock.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, stock.ErrValidation), errors.Is(err, stock.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrAlreadyConverted), errors.Is(err, ErrOverpayment):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
