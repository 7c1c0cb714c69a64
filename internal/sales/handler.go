package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/asiria/asiriapos/internal/platform/httpx"
	"github.com/asiria/asiriapos/internal/shared"
	"github.com/asiria/asiriapos/internal/stock"
)

// Handler wires HTTP endpoints for sales.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.handleCreateSale)
	r.Get("/sales", h.handleListSales)
	r.Get("/sales/{id}", h.handleGetSale)
	r.Post("/sales/{id}/confirm", h.handleConfirmSale)
	r.Post("/sales/{id}/cancel", h.handleCancelSale)
	r.Delete("/sales/details/{detailID}", h.handleDeleteDetail)
	r.Post("/sales/{id}/receipts", h.handleCreateReceipt)
	r.Get("/sales/{id}/receipts", h.handleListReceipts)
	r.Post("/returns", h.handleCreateReturn)
	r.Post("/returns/{id}/approve", h.handleApproveReturn)
}

type saleLineForm struct {
	ProductID int64   `json:"product_id" validate:"required"`
	Quantity  int64   `json:"quantity" validate:"required,gt=0"`
	Price     float64 `json:"price" validate:"gte=0"`
	Discount  float64 `json:"discount" validate:"gte=0"`
}

type createSaleForm struct {
	CustomerID      int64          `json:"customer_id"`
	ReferenceNumber string         `json:"reference_number" validate:"required"`
	Reserve         bool           `json:"reserve"`
	Lines           []saleLineForm `json:"lines" validate:"required,min=1,dive"`
}

type saleResponse struct {
	ID              int64      `json:"id"`
	CustomerID      int64      `json:"customer_id"`
	ReferenceNumber string     `json:"reference_number"`
	Status          string     `json:"status"`
	TotalAmount     float64    `json:"total_amount"`
	CreatedAt       time.Time  `json:"created_at"`
	ConfirmedAt     time.Time  `json:"confirmed_at,omitzero"`
	Details         []saleLine `json:"details,omitempty"`
}

type saleLine struct {
	ID        int64   `json:"id"`
	ProductID int64   `json:"product_id"`
	Quantity  int64   `json:"quantity"`
	Price     float64 `json:"price"`
	Discount  float64 `json:"discount"`
	Subtotal  float64 `json:"subtotal"`
}

func toSaleResponse(header SalesHeader, details []SalesDetail) saleResponse {
	resp := saleResponse{
		ID:              header.ID,
		CustomerID:      header.CustomerID,
		ReferenceNumber: header.ReferenceNumber,
		Status:          string(header.Status),
		TotalAmount:     header.TotalAmount,
		CreatedAt:       header.CreatedAt,
		ConfirmedAt:     header.ConfirmedAt,
	}
	for _, d := range details {
		resp.Details = append(resp.Details, saleLine{
			ID:        d.ID,
			ProductID: d.ProductID,
			Quantity:  d.Quantity,
			Price:     d.Price,
			Discount:  d.Discount,
			Subtotal:  d.Subtotal,
		})
	}
	return resp
}

func (h *Handler) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var form createSaleForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateSaleInput{
		TenantID:        shared.TenantFromContext(r.Context()),
		CustomerID:      form.CustomerID,
		ReferenceNumber: form.ReferenceNumber,
		Reserve:         form.Reserve,
		ActorID:         shared.ActorFromContext(r.Context()),
	}
	for _, l := range form.Lines {
		input.Lines = append(input.Lines, SaleLineInput{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Price:     l.Price,
			Discount:  l.Discount,
		})
	}
	header, details, err := h.service.CreateSale(r.Context(), input)
	if err != nil {
		h.respondError(w, r, "create sale", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSaleResponse(header, details))
}

func (h *Handler) handleListSales(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	status := SaleStatus(r.URL.Query().Get("status"))
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	sales, err := h.service.ListSales(r.Context(), tenantID, status, limit)
	if err != nil {
		h.respondError(w, r, "list sales", err)
		return
	}
	out := make([]saleResponse, 0, len(sales))
	for _, s := range sales {
		out = append(out, toSaleResponse(s, nil))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales": out})
}

func (h *Handler) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid sale id")
		return
	}
	header, details, err := h.service.GetSale(r.Context(), shared.TenantFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, r, "get sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSaleResponse(header, details))
}

func (h *Handler) handleConfirmSale(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid sale id")
		return
	}
	header, err := h.service.ConfirmSale(r.Context(), shared.TenantFromContext(r.Context()), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, "confirm sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSaleResponse(header, nil))
}

func (h *Handler) handleCancelSale(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid sale id")
		return
	}
	header, err := h.service.CancelSale(r.Context(), shared.TenantFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, r, "cancel sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSaleResponse(header, nil))
}

func (h *Handler) handleDeleteDetail(w http.ResponseWriter, r *http.Request) {
	detailID, err := strconv.ParseInt(chi.URLParam(r, "detailID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid detail id")
		return
	}
	err = h.service.DeleteSalesDetail(r.Context(), shared.TenantFromContext(r.Context()), detailID, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, "delete sale detail", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type receiptForm struct {
	Amount          float64 `json:"amount" validate:"required,gt=0"`
	PaymentOptionID int64   `json:"payment_option_id"`
	ReceiptNumber   string  `json:"receipt_number"`
}

type receiptResponse struct {
	ID            int64     `json:"id"`
	SaleID        int64     `json:"sale_id"`
	ReceiptNumber string    `json:"receipt_number"`
	Amount        float64   `json:"amount"`
	Narration     string    `json:"narration"`
	IssuedAt      time.Time `json:"issued_at"`
}

func toReceiptResponse(rc Receipt) receiptResponse {
	return receiptResponse{
		ID:            rc.ID,
		SaleID:        rc.SaleID,
		ReceiptNumber: rc.ReceiptNumber,
		Amount:        rc.Amount,
		Narration:     rc.Narration,
		IssuedAt:      rc.IssuedAt,
	}
}

func (h *Handler) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	saleID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid sale id")
		return
	}
	var form receiptForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	receipt, err := h.service.RecordReceipt(r.Context(), shared.TenantFromContext(r.Context()), Receipt{
		SaleID:          saleID,
		Amount:          form.Amount,
		PaymentOptionID: form.PaymentOptionID,
		ReceiptNumber:   form.ReceiptNumber,
	})
	if err != nil {
		h.respondError(w, r, "create receipt", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toReceiptResponse(receipt))
}

func (h *Handler) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	saleID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid sale id")
		return
	}
	receipts, err := h.service.ListReceipts(r.Context(), shared.TenantFromContext(r.Context()), saleID)
	if err != nil {
		h.respondError(w, r, "list receipts", err)
		return
	}
	out := make([]receiptResponse, 0, len(receipts))
	for _, rc := range receipts {
		out = append(out, toReceiptResponse(rc))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"receipts": out})
}

type returnForm struct {
	SaleID    int64  `json:"sale_id" validate:"required"`
	ProductID int64  `json:"product_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"required"`
}

type returnResponse struct {
	ID         uuid.UUID `json:"id"`
	SaleID     int64     `json:"sale_id"`
	ProductID  int64     `json:"product_id"`
	Quantity   int64     `json:"quantity"`
	Reason     string    `json:"reason"`
	IsApproved bool      `json:"is_approved"`
	CreatedAt  time.Time `json:"created_at"`
	ApprovedAt time.Time `json:"approved_at,omitzero"`
}

func toReturnResponse(ret Return) returnResponse {
	return returnResponse{
		ID:         ret.ID,
		SaleID:     ret.SaleID,
		ProductID:  ret.ProductID,
		Quantity:   ret.Quantity,
		Reason:     ret.Reason,
		IsApproved: ret.IsApproved,
		CreatedAt:  ret.CreatedAt,
		ApprovedAt: ret.ApprovedAt,
	}
}

func (h *Handler) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	var form returnForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	ret, err := h.service.CreateReturn(r.Context(), CreateReturnInput{
		TenantID:  shared.TenantFromContext(r.Context()),
		SaleID:    form.SaleID,
		ProductID: form.ProductID,
		Quantity:  form.Quantity,
		Reason:    form.Reason,
		ActorID:   shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, "create return", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toReturnResponse(ret))
}

func (h *Handler) handleApproveReturn(w http.ResponseWriter, r *http.Request) {
	returnID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid return id")
		return
	}
	ret, err := h.service.ApproveReturn(r.Context(), shared.TenantFromContext(r.Context()), returnID, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, "approve return", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReturnResponse(ret))
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound) || errors.Is(err, stock.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation) || errors.Is(err, stock.ErrValidation) || errors.Is(err, stock.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrSaleNotPending) || errors.Is(err, ErrSaleNotConfirmed) ||
		errors.Is(err, ErrAlreadyApproved) || errors.Is(err, stock.ErrInsufficientStock) ||
		errors.Is(err, stock.ErrInsufficientFreeStock):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("sales request failed", "op", op, "path", r.URL.Path, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "unexpected error")
	}
}
