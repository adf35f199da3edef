package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	resetTokenTTL     = time.Hour
)

type RegisterInput struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

type ProfileInput struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	Password    string `json:"password"`
	OldPassword string `json:"old_password"`
}

type TokenResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// PasswordResetResult carries the reset token back to the caller, since
// nothing delivers it by email.
type PasswordResetResult struct {
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AuthService struct {
	Deps
	tokens *auth.TokenManager
	logger *zap.Logger
}

func NewAuthService(deps Deps, tokens *auth.TokenManager) *AuthService {
	deps = deps.normalize()
	return &AuthService{Deps: deps, tokens: tokens, logger: deps.Logger.Named("auth")}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*TokenResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, "invalid email address")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "name is required")
	}
	if len(in.Password) < minPasswordLength {
		return nil, apperr.New(apperr.KindInvalidInput, "password is too short")
	}

	exists, err := s.Store.UserExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Name:     strings.TrimSpace(in.Name),
		Email:    email,
		Password: string(hash),
		Phone:    in.Phone,
		Address:  in.Address,
		Role:     models.RoleUser,
	}
	if err := s.Store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID))
	return s.issue(user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenResult, error) {
	user, err := s.Store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, apperr.ErrUserNotFound) {
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, apperr.ErrInvalidCredentials
	}
	return s.issue(user)
}

func (s *AuthService) issue(user *models.User) (*TokenResult, error) {
	token, expires, err := s.tokens.Issue(user.Email, user.Role)
	if err != nil {
		return nil, err
	}
	return &TokenResult{Token: token, ExpiresAt: expires, User: user}, nil
}

// Authenticate resolves a bearer token to an identity.
func (s *AuthService) Authenticate(token string) (auth.Identity, error) {
	id, err := s.tokens.Verify(token)
	if err != nil {
		return auth.Identity{}, apperr.Wrap(apperr.KindUnauthenticated, err, "invalid or expired token")
	}
	return id, nil
}

func (s *AuthService) Profile(ctx context.Context, email string) (*models.User, error) {
	return s.Store.GetUserByEmail(ctx, email)
}

// UpdateProfile changes contact details, and the password when both the old
// and new ones are given.
func (s *AuthService) UpdateProfile(ctx context.Context, email string, in ProfileInput) (*models.User, error) {
	user, err := s.Store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		user.Name = name
	}
	if in.Phone != "" {
		user.Phone = in.Phone
	}
	if in.Address != "" {
		user.Address = in.Address
	}
	if in.Password != "" {
		if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.OldPassword)) != nil {
			return nil, apperr.ErrInvalidCredentials
		}
		if len(in.Password) < minPasswordLength {
			return nil, apperr.New(apperr.KindInvalidInput, "password is too short")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		user.Password = string(hash)
	}
	if err := s.Store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// RequestPasswordReset issues a one-hour, single-use reset token for a
// registered user.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (*PasswordResetResult, error) {
	user, err := s.Store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}
	token := &models.PasswordResetToken{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: s.now().Add(resetTokenTTL),
	}
	if err := s.Store.CreatePasswordResetToken(ctx, token); err != nil {
		return nil, err
	}

	s.logger.Info("Password reset requested", zap.String("user_id", user.ID))
	return &PasswordResetResult{
		Message:   "password reset token generated",
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt,
	}, nil
}

// ResetPassword redeems token and replaces the user's password. The new
// hash and the used flag are written in one transaction.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" {
		return apperr.ErrInvalidResetToken
	}
	if len(newPassword) < minPasswordLength {
		return apperr.New(apperr.KindInvalidInput, "password is too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	var userID string
	err = s.Store.WithTx(ctx, func(tx *repository.Store) error {
		t, err := tx.GetPasswordResetToken(ctx, token)
		if err != nil {
			return err
		}
		if !t.Usable(s.now()) {
			return apperr.ErrResetTokenExpired
		}
		claimed, err := tx.MarkPasswordResetTokenUsed(ctx, t.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return apperr.ErrResetTokenExpired
		}

		user, err := tx.GetUser(ctx, t.UserID)
		if err != nil {
			return err
		}
		user.Password = string(hash)
		userID = user.ID
		return tx.UpdateUser(ctx, user)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Password reset", zap.String("user_id", userID))
	return nil
}
