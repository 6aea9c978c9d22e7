package service

import (
	"context"
	"time"

	"advisor-marketplace/backend/internal/models"
	"advisor-marketplace/backend/internal/repository"
	apperrors "advisor-marketplace/backend/pkg/errors"
	"advisor-marketplace/backend/pkg/jwt"
	"advisor-marketplace/backend/pkg/logger"
)

// UserService handles registration, login and profile lookup. It also
// serves as the UserDirectory for notification templates.
type UserService struct {
	users    repository.UserRepository
	advisors repository.AdvisorRepository
	tokens   *jwt.Service
	log      *logger.Logger
}

func NewUserService(users repository.UserRepository, advisors repository.AdvisorRepository, tokens *jwt.Service, log *logger.Logger) *UserService {
	return &UserService{users: users, advisors: advisors, tokens: tokens, log: log}
}

// Register creates a new account. Advisors get an empty profile alongside
// the user row so they appear in the directory immediately.
func (s *UserService) Register(ctx context.Context, req models.CreateUserRequest) (*models.User, error) {
	role := req.Role
	if role == "" {
		role = string(jwt.RoleClient)
	}
	if role != string(jwt.RoleClient) && role != string(jwt.RoleAdvisor) {
		return nil, apperrors.BadRequest("role must be client or advisor")
	}

	user := &models.User{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if role == string(jwt.RoleAdvisor) {
		profile := &models.AdvisorProfile{
			UserID:      user.ID,
			DisplayName: user.Name,
		}
		if err := s.advisors.Upsert(ctx, profile); err != nil {
			s.log.Warn("failed to create advisor profile", "user_id", user.ID, "error", err.Error())
		}
	}

	return user, nil
}

// Login verifies credentials and returns the user with a signed token.
func (s *UserService) Login(ctx context.Context, req models.LoginRequest) (*models.User, string, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return nil, "", apperrors.Unauthorized("invalid email or password")
		}
		return nil, "", err
	}

	if !models.CheckPasswordHash(req.Password, user.Password) {
		return nil, "", apperrors.Unauthorized("invalid email or password")
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, "", apperrors.Internal("failed to issue token")
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		s.log.Warn("failed to update last login", "user_id", user.ID, "error", err.Error())
	}

	return user, token, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

// DisplayName implements UserDirectory. Missing users resolve to an empty
// name rather than an error; templates tolerate the blank.
func (s *UserService) DisplayName(ctx context.Context, userID uint) string {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Name
}
