package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/asiria/asiriapos/internal/platform/httpx"
	"github.com/asiria/asiriapos/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger    *slog.Logger
	engine    *Engine
	cache     *SummaryCache
	approvals *shared.ApprovalRecorder
	validate  *validator.Validate
	group     singleflight.Group
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, engine *Engine, cache *SummaryCache) *Handler {
	return &Handler{logger: logger, engine: engine, cache: cache, validate: validator.New()}
}

// WithApprovals enables the adjustment approval-history endpoint.
func (h *Handler) WithApprovals(rec *shared.ApprovalRecorder) *Handler {
	h.approvals = rec
	return h
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/movements", h.handleListMovements)
	r.Get("/adjustments", h.handleListAdjustments)
	r.Post("/adjustments", h.handleCreateAdjustment)
	r.Post("/adjustments/{id}/approve", h.handleApproveAdjustment)
	r.Get("/adjustments/{id}/approvals", h.handleAdjustmentApprovals)
	r.Delete("/adjustments/{id}", h.handleDeleteAdjustment)
	r.Get("/alerts", h.handleListAlerts)
	r.Post("/alerts/{id}/resolve", h.handleResolveAlert)
	r.Post("/transfers", h.handleTransfer)
	r.Post("/reservations", h.handleReserve)
	r.Post("/damage", h.handleDamage)
	r.Get("/products/{id}/summary", h.handleSummary)
	r.Get("/products/{id}/locations", h.handleLocationStock)
}

type movementResponse struct {
	ID              uuid.UUID `json:"id"`
	ProductID       int64     `json:"product_id"`
	Quantity        int64     `json:"quantity"`
	PreviousStock   int64     `json:"previous_stock"`
	NewStock        int64     `json:"new_stock"`
	MovementType    string    `json:"movement_type"`
	ReferenceNumber string    `json:"reference_number"`
	Reason          string    `json:"reason"`
	CreatedBy       int64     `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
}

func toMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID:              m.ID,
		ProductID:       m.ProductID,
		Quantity:        m.Quantity,
		PreviousStock:   m.PreviousStock,
		NewStock:        m.NewStock,
		MovementType:    string(m.Type),
		ReferenceNumber: m.ReferenceNumber,
		Reason:          m.Reason,
		CreatedBy:       m.CreatedBy,
		CreatedAt:       m.CreatedAt,
	}
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	filter := MovementFilter{TenantID: tenantID}
	q := r.URL.Query()
	if v := q.Get("product_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product_id")
			return
		}
		filter.ProductID = id
	}
	if v := q.Get("movement_type"); v != "" {
		filter.Type = MovementType(v)
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}

	movements, err := h.engine.ListMovements(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, "list movements", err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": out})
}

type adjustmentForm struct {
	ProductID        int64  `json:"product_id" validate:"required"`
	QuantityAdjusted int64  `json:"quantity_adjusted" validate:"required"`
	Reason           string `json:"reason" validate:"required"`
	ReferenceNumber  string `json:"reference_number"`
}

type adjustmentResponse struct {
	ID               uuid.UUID `json:"id"`
	ProductID        int64     `json:"product_id"`
	QuantityAdjusted int64     `json:"quantity_adjusted"`
	Reason           string    `json:"reason"`
	ReferenceNumber  string    `json:"reference_number"`
	IsApproved       bool      `json:"is_approved"`
	CreatedAt        time.Time `json:"created_at"`
	ApprovedBy       int64     `json:"approved_by,omitempty"`
	ApprovedAt       time.Time `json:"approved_at,omitzero"`
}

func toAdjustmentResponse(a Adjustment) adjustmentResponse {
	return adjustmentResponse{
		ID:               a.ID,
		ProductID:        a.ProductID,
		QuantityAdjusted: a.QuantityAdjusted,
		Reason:           a.Reason,
		ReferenceNumber:  a.ReferenceNumber,
		IsApproved:       a.IsApproved,
		CreatedAt:        a.CreatedAt,
		ApprovedBy:       a.ApprovedBy,
		ApprovedAt:       a.ApprovedAt,
	}
}

func (h *Handler) handleListAdjustments(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	adjustments, err := h.engine.ListAdjustments(r.Context(), tenantID, limit)
	if err != nil {
		h.respondError(w, r, "list adjustments", err)
		return
	}
	out := make([]adjustmentResponse, 0, len(adjustments))
	for _, a := range adjustments {
		out = append(out, toAdjustmentResponse(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"adjustments": out})
}

func (h *Handler) handleCreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var form adjustmentForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	adjustment, err := h.engine.CreateAdjustment(r.Context(), AdjustmentInput{
		TenantID:         shared.TenantFromContext(r.Context()),
		ProductID:        form.ProductID,
		QuantityAdjusted: form.QuantityAdjusted,
		Reason:           form.Reason,
		ReferenceNumber:  form.ReferenceNumber,
		ActorID:          shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, "create adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAdjustmentResponse(adjustment))
}

func (h *Handler) handleApproveAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid adjustment id")
		return
	}
	movement, err := h.engine.ApproveAdjustment(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, "approve adjustment", err)
		return
	}
	h.invalidateSummary(r, movement.ProductID)
	httpx.JSON(w, http.StatusOK, toMovementResponse(movement))
}

func (h *Handler) handleAdjustmentApprovals(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid adjustment id")
		return
	}
	logs, err := h.approvals.List(r.Context(), shared.TenantFromContext(r.Context()), "STOCK_ADJUSTMENT", id)
	if err != nil {
		h.respondError(w, r, "list adjustment approvals", err)
		return
	}
	out := make([]map[string]any, 0, len(logs))
	for _, l := range logs {
		out = append(out, map[string]any{
			"actor_id": l.ActorID,
			"action":   string(l.Action),
			"note":     l.Note,
			"at":       l.At,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"approvals": out})
}

func (h *Handler) handleDeleteAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid adjustment id")
		return
	}
	if err := h.engine.DeleteAdjustment(r.Context(), id); err != nil {
		h.respondError(w, r, "delete adjustment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type alertResponse struct {
	ID         uuid.UUID `json:"id"`
	ProductID  int64     `json:"product_id"`
	AlertType  string    `json:"alert_type"`
	Message    string    `json:"message"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	ResolvedBy int64     `json:"resolved_by,omitempty"`
	ResolvedAt time.Time `json:"resolved_at,omitzero"`
}

func toAlertResponse(a Alert) alertResponse {
	return alertResponse{
		ID:         a.ID,
		ProductID:  a.ProductID,
		AlertType:  string(a.Type),
		Message:    a.Message,
		IsActive:   a.IsActive,
		CreatedAt:  a.CreatedAt,
		ResolvedBy: a.ResolvedBy,
		ResolvedAt: a.ResolvedAt,
	}
}

func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	filter := AlertFilter{TenantID: tenantID}
	q := r.URL.Query()
	if v := q.Get("product_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.ProductID = id
		}
	}
	filter.ActiveOnly = q.Get("active") == "true"

	alerts, err := h.engine.ListAlerts(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, "list alerts", err)
		return
	}
	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertResponse(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"alerts": out})
}

func (h *Handler) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid alert id")
		return
	}
	alert, err := h.engine.ResolveAlert(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, "resolve alert", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAlertResponse(alert))
}

type transferForm struct {
	ProductID      int64  `json:"product_id" validate:"required"`
	FromLocationID int64  `json:"from_location_id" validate:"required"`
	ToLocationID   int64  `json:"to_location_id" validate:"required"`
	Quantity       int64  `json:"quantity" validate:"required,gt=0"`
	Reason         string `json:"reason"`
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var form transferForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.engine.ApplyTransfer(r.Context(), TransferInput{
		TenantID:       shared.TenantFromContext(r.Context()),
		ProductID:      form.ProductID,
		FromLocationID: form.FromLocationID,
		ToLocationID:   form.ToLocationID,
		Quantity:       form.Quantity,
		Reason:         form.Reason,
		ActorID:        shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, "apply transfer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"transfer_id":  result.Transfer.ID,
		"movement_out": toMovementResponse(result.MovementOut),
		"movement_in":  toMovementResponse(result.MovementIn),
	})
}

type reserveForm struct {
	SaleID        int64 `json:"sale_id" validate:"required"`
	SaleDetailID  int64 `json:"sale_detail_id" validate:"required"`
	ProductID     int64 `json:"product_id" validate:"required"`
	Quantity      int64 `json:"quantity" validate:"required,gt=0"`
	ExpiryMinutes int64 `json:"expiry_minutes" validate:"gte=0"`
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var form reserveForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	reservation, err := h.engine.Reserve(r.Context(), ReserveInput{
		TenantID:     shared.TenantFromContext(r.Context()),
		SaleID:       form.SaleID,
		SaleDetailID: form.SaleDetailID,
		ProductID:    form.ProductID,
		Quantity:     form.Quantity,
		Expiry:       time.Duration(form.ExpiryMinutes) * time.Minute,
		ActorID:      shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, "reserve", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":         reservation.ID,
		"sale_id":    reservation.SaleID,
		"product_id": reservation.ProductID,
		"quantity":   reservation.Quantity,
		"expires_at": reservation.ExpiresAt,
	})
}

type damageForm struct {
	ProductID       int64  `json:"product_id" validate:"required"`
	Quantity        int64  `json:"quantity" validate:"required,gt=0"`
	ReferenceNumber string `json:"reference_number"`
	Reason          string `json:"reason" validate:"required"`
}

func (h *Handler) handleDamage(w http.ResponseWriter, r *http.Request) {
	var form damageForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	movement, err := h.engine.RecordOutbound(r.Context(), OutboundInput{
		TenantID:        shared.TenantFromContext(r.Context()),
		ProductID:       form.ProductID,
		Quantity:        form.Quantity,
		Type:            MovementDamage,
		ReferenceNumber: form.ReferenceNumber,
		Reason:          form.Reason,
		ActorID:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, "record damage", err)
		return
	}
	h.invalidateSummary(r, movement.ProductID)
	httpx.JSON(w, http.StatusCreated, toMovementResponse(movement))
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	tenantID := shared.TenantFromContext(r.Context())
	if summary, ok := h.cache.Get(r.Context(), productID); ok {
		httpx.JSON(w, http.StatusOK, summary)
		return
	}
	// Collapse concurrent cache misses for the same product.
	v, err, _ := h.group.Do(strconv.FormatInt(productID, 10), func() (any, error) {
		summary, err := h.engine.Summarize(r.Context(), tenantID, productID)
		if err != nil {
			return nil, err
		}
		if err := h.cache.Set(r.Context(), productID, summary); err != nil {
			h.logger.Warn("cache stock summary", slog.Any("error", err))
		}
		return summary, nil
	})
	if err != nil {
		h.respondError(w, r, "stock summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v.(Summary))
}

func (h *Handler) handleLocationStock(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	rows, err := h.engine.ListLocationStock(r.Context(), productID)
	if err != nil {
		h.respondError(w, r, "list location stock", err)
		return
	}
	type row struct {
		LocationID int64 `json:"location_id"`
		Quantity   int64 `json:"quantity"`
	}
	out := make([]row, 0, len(rows))
	for _, ls := range rows {
		out = append(out, row{LocationID: ls.LocationID, Quantity: ls.Quantity})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"locations": out})
}

func (h *Handler) invalidateSummary(r *http.Request, productID int64) {
	h.cache.Invalidate(r.Context(), productID)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrInsufficientFreeStock),
		errors.Is(err, ErrAlreadyApproved),
		errors.Is(err, ErrAlreadyResolved),
		errors.Is(err, ErrSaleNotPending):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
