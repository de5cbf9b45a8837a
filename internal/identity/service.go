// Package identity registers users, checks their passwords and issues the bearer tokens
// the API trusts for a caller's id and role.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"
)

type Config struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     domain.Role
}

type Service struct {
	users domain.UserStore
	clock domain.Clock
	cfg   Config
	log   logger.Logger
}

func NewService(users domain.UserStore, clock domain.Clock, cfg Config, log logger.Logger) *Service {
	return &Service{users: users, clock: clock, cfg: cfg, log: log}
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.UserHandle, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(strings.ToLower(in.Email))

	switch {
	case username == "":
		return domain.UserHandle{}, fmt.Errorf("username is required: %w", domain.ErrInvalidArgument)
	case in.Password == "":
		return domain.UserHandle{}, fmt.Errorf("password is required: %w", domain.ErrInvalidArgument)
	case len(in.Password) > MaxPasswordBytes:
		return domain.UserHandle{}, fmt.Errorf("password exceeds %d bytes: %w", MaxPasswordBytes, domain.ErrInvalidArgument)
	case !in.Role.Valid():
		return domain.UserHandle{}, fmt.Errorf("role must be buyer or seller: %w", domain.ErrInvalidArgument)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.UserHandle{}, fmt.Errorf("invalid email: %w", domain.ErrInvalidArgument)
	}

	hash, err := HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return domain.UserHandle{}, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:           utils.GenerateID("usr"),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         in.Role,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return domain.UserHandle{}, err
	}

	s.log.Info("User registered", "user_id", user.ID, "role", user.Role)
	return user.Handle(), nil
}

// Login checks the password and returns the caller's handle with a signed token.
// Unknown users and wrong passwords fail the same way.
func (s *Service) Login(ctx context.Context, username, password string) (domain.UserHandle, AccessToken, error) {
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.UserHandle{}, AccessToken{}, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
		}
		return domain.UserHandle{}, AccessToken{}, err
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return domain.UserHandle{}, AccessToken{}, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}

	handle := user.Handle()
	token, err := NewAccessToken(s.cfg.JWTSecret, handle, s.clock.Now(), s.cfg.TokenTTL)
	if err != nil {
		return domain.UserHandle{}, AccessToken{}, err
	}
	return handle, token, nil
}

func (s *Service) Authenticate(token string) (domain.UserHandle, error) {
	return ParseAccessToken(s.cfg.JWTSecret, token, s.clock.Now())
}
