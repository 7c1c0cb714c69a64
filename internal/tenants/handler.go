package tenants

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/asiria/asiriapos/internal/platform/httpx"
	"github.com/asiria/asiriapos/internal/shared"
)

// Handler wires HTTP endpoints for tenant accounts.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the tenants handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountPublicRoutes registers the routes reachable before a tenant exists.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
}

// MountRoutes registers the tenant-scoped profile routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.handleGetProfile)
	r.Put("/me", h.handleUpdateProfile)
	r.Post("/me/password", h.handleChangePassword)
}

type accountResponse struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	BusinessName string    `json:"business_name"`
	Email        string    `json:"email,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

func toAccountResponse(a UserClient) accountResponse {
	return accountResponse{
		ID:           a.ID,
		Username:     a.Username,
		BusinessName: a.BusinessName,
		Email:        a.Email,
		IsActive:     a.IsActive,
		CreatedAt:    a.CreatedAt,
	}
}

type registerForm struct {
	Username     string `json:"username" validate:"required,min=3"`
	BusinessName string `json:"business_name" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
	Password     string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var form registerForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.Register(r.Context(), RegisterInput{
		Username:     form.Username,
		BusinessName: form.BusinessName,
		Email:        form.Email,
		Password:     form.Password,
	})
	if err != nil {
		h.respondError(w, r, "register", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(account))
}

type loginForm struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var form loginForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.Authenticate(r.Context(), form.Username, form.Password)
	if err != nil {
		h.respondError(w, r, "login", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.Get(r.Context(), shared.TenantFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, "get profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

type profileForm struct {
	BusinessName string `json:"business_name" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var form profileForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err := h.service.UpdateProfile(r.Context(), UserClient{
		ID:           shared.TenantFromContext(r.Context()),
		BusinessName: form.BusinessName,
		Email:        form.Email,
	})
	if err != nil {
		h.respondError(w, r, "update profile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type passwordForm struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var form passwordForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err := h.service.ChangePassword(r.Context(), shared.TenantFromContext(r.Context()), form.CurrentPassword, form.NewPassword)
	if err != nil {
		h.respondError(w, r, "change password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrDuplicateUsername):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("tenants request failed", "op", op, "path", r.URL.Path, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "unexpected error")
	}
}
