package service

import (
	"context"
	"fmt"

	"medicapp-sync/internal/domain"
	"medicapp-sync/internal/repository"
	"medicapp-sync/pkg/hash"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidCredentials deliberately hides whether the email or the password
// was wrong.
var ErrInvalidCredentials = fmt.Errorf("invalid credentials")

type AuthService struct {
	userRepo repository.UserRepository
	sessions *SessionService
	validate *validator.Validate
}

func NewAuthService(userRepo repository.UserRepository, sessions *SessionService) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		sessions: sessions,
		validate: validator.New(),
	}
}

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Err: err}
	}

	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := hash.Compare(user.Password, req.Password); err != nil {
		return nil, ErrInvalidCredentials
	}

	session, err := s.sessions.CreateSession(user.SessionUser())
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &domain.LoginResponse{
		User:      &session.User,
		Token:     session.Token,
		ExpiresIn: int64(session.ExpiresAt.Sub(session.LastActivity).Seconds()),
	}, nil
}

func (s *AuthService) Logout() error {
	return s.sessions.ClearSession()
}

func (s *AuthService) CurrentUser() (*domain.SessionUser, error) {
	return s.sessions.GetCurrentSession()
}
