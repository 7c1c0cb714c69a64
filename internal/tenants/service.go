package tenants

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// Service wraps tenant account rules.
type Service struct {
	repo Repository
	cost int
}

// NewService constructs the tenant service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost}
}

// RegisterInput creates a tenant account.
type RegisterInput struct {
	Username     string
	BusinessName string
	Email        string
	Password     string
}

// Register hashes the password and creates the account.
func (s *Service) Register(ctx context.Context, input RegisterInput) (UserClient, error) {
	username := strings.ToLower(strings.TrimSpace(input.Username))
	if username == "" {
		return UserClient{}, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if len(input.Password) < minPasswordLength {
		return UserClient{}, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
	if err != nil {
		return UserClient{}, err
	}
	return s.repo.Create(ctx, UserClient{
		Username:     username,
		BusinessName: strings.TrimSpace(input.BusinessName),
		Email:        strings.TrimSpace(input.Email),
		PasswordHash: string(hash),
	})
}

// Authenticate validates username/password credentials. Unknown usernames,
// inactive accounts and wrong passwords all report the same error.
func (s *Service) Authenticate(ctx context.Context, username, password string) (UserClient, error) {
	account, err := s.repo.GetByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return UserClient{}, ErrInvalidCredentials
	}
	if !account.IsActive {
		return UserClient{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return UserClient{}, ErrInvalidCredentials
	}
	return account, nil
}

// ChangePassword verifies the current password before setting the new one.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	if len(next) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, id, string(hash))
}

// Get returns a tenant account by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (UserClient, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateProfile updates business name and email.
func (s *Service) UpdateProfile(ctx context.Context, account UserClient) error {
	account.BusinessName = strings.TrimSpace(account.BusinessName)
	if account.BusinessName == "" {
		return fmt.Errorf("%w: business name is required", ErrValidation)
	}
	return s.repo.UpdateProfile(ctx, account)
}

// Deactivate disables the account. Existing rows keep their tenant id.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.repo.Deactivate(ctx, id)
}
