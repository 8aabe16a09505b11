package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/estatehub/billing-service/internal/domain"
	"github.com/estatehub/billing-service/internal/store"
	"github.com/estatehub/billing-service/pkg/auth"
	"github.com/google/uuid"
)

const minPasswordLength = 8

// RegisterUserInput holds the fields of a new estate member.
type RegisterUserInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
}

// CreateEstateInput onboards an estate together with its first administrator.
type CreateEstateInput struct {
	Name    string            `json:"name"`
	Address string            `json:"address"`
	Admin   RegisterUserInput `json:"admin"`
}

// LoginResult is returned after a successful login.
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"user"`
}

// CreateEstateWithAdmin creates an estate and its administrator in one transaction.
func (s *Service) CreateEstateWithAdmin(ctx context.Context, input CreateEstateInput) (*domain.Estate, *domain.User, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, nil, fmt.Errorf("%w: estate name is required", ErrInvalidAccount)
	}
	admin, err := newUser(input.Admin, domain.RoleAdmin)
	if err != nil {
		return nil, nil, err
	}

	estate := &domain.Estate{Name: name, Address: strings.TrimSpace(input.Address)}
	if err := s.repo.CreateEstateWithAdmin(ctx, estate, admin); err != nil {
		return nil, nil, err
	}

	log.Printf("level=info component=accounts msg=\"estate created\" estate_id=%s admin_id=%s", estate.ID, admin.ID)
	return estate, admin, nil
}

// RegisterResident adds a billable resident to an estate. Residents joining mid-period
// are picked up by the next generation run for their estate.
func (s *Service) RegisterResident(ctx context.Context, estateID uuid.UUID, input RegisterUserInput) (*domain.User, error) {
	if _, err := s.repo.FindEstateByID(ctx, estateID); err != nil {
		return nil, err
	}

	user, err := newUser(input, domain.RoleUser)
	if err != nil {
		return nil, err
	}
	user.EstateID = estateID

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	log.Printf("level=info component=accounts msg=\"resident registered\" estate_id=%s user_id=%s", estateID, user.ID)
	return user, nil
}

// Login checks the credentials and issues a signed session token.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.repo.FindUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := auth.IssueToken(
		user.ID.String(),
		user.EstateID.String(),
		string(user.Role),
		user.Email,
		s.opts.JWTIssuer,
		s.opts.TokenTTL,
		[]byte(s.opts.JWTSecret),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func newUser(input RegisterUserInput, role domain.Role) (*domain.User, error) {
	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)
	if firstName == "" || lastName == "" {
		return nil, fmt.Errorf("%w: first and last name are required", ErrInvalidAccount)
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email is invalid", ErrInvalidAccount)
	}
	if len(input.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidAccount, minPasswordLength)
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return &domain.User{
		Role:         role,
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		Phone:        strings.TrimSpace(input.Phone),
		PasswordHash: hash,
	}, nil
}
