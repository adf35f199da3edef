package service

import (
	"context"
	"testing"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	deps := Deps{Store: repotest.NewStore(t), Logger: zap.NewNop()}
	return NewAuthService(deps, auth.NewTokenManager("test-secret", time.Hour))
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: " Ada@Example.com ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", reg.User.Email)
	assert.Equal(t, models.RoleUser, reg.User.Role)
	assert.NotEqual(t, "secret1", reg.User.Password)

	id, err := svc.Authenticate(reg.Token)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", id.Email)

	_, err = svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, apperr.ErrUserExists)

	login, err := svc.Login(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, login.Token)

	_, err = svc.Login(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
}

func TestRegister_Validation(t *testing.T) {
	svc := newAuthService(t)
	tests := []RegisterInput{
		{Name: "Ada", Email: "not-an-email", Password: "secret1"},
		{Name: " ", Email: "ada@example.com", Password: "secret1"},
		{Name: "Ada", Email: "ada@example.com", Password: "123"},
	}
	for _, in := range tests {
		_, err := svc.Register(context.Background(), in)
		assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err), in)
	}
}

func TestAuthenticate_RejectsGarbage(t *testing.T) {
	svc := newAuthService(t)
	_, err := svc.Authenticate("not.a.token")
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestUpdateProfile(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	user, err := svc.UpdateProfile(ctx, "ada@example.com", ProfileInput{Address: "2 Side St"})
	require.NoError(t, err)
	assert.Equal(t, "2 Side St", user.Address)
	assert.Equal(t, "Ada", user.Name)

	_, err = svc.UpdateProfile(ctx, "ada@example.com", ProfileInput{Password: "newsecret", OldPassword: "wrong"})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	_, err = svc.UpdateProfile(ctx, "ada@example.com", ProfileInput{Password: "newsecret", OldPassword: "secret1"})
	require.NoError(t, err)
	_, err = svc.Login(ctx, "ada@example.com", "newsecret")
	assert.NoError(t, err)

	profile, err := svc.Profile(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "2 Side St", profile.Address)
}

func TestPasswordReset(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	deps := Deps{Store: repotest.NewStore(t), Logger: zap.NewNop(), Now: func() time.Time { return now }}
	svc := NewAuthService(deps, auth.NewTokenManager("test-secret", time.Hour))
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.RequestPasswordReset(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)

	t.Run("valid token is single use", func(t *testing.T) {
		res, err := svc.RequestPasswordReset(ctx, " ada@example.com ")
		require.NoError(t, err)
		require.NotEmpty(t, res.Token)
		assert.Equal(t, now.Add(time.Hour), res.ExpiresAt.UTC())

		require.NoError(t, svc.ResetPassword(ctx, res.Token, "newsecret"))
		_, err = svc.Login(ctx, "ada@example.com", "newsecret")
		assert.NoError(t, err)
		_, err = svc.Login(ctx, "ada@example.com", "secret1")
		assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

		err = svc.ResetPassword(ctx, res.Token, "another1")
		assert.ErrorIs(t, err, apperr.ErrResetTokenExpired)
		_, err = svc.Login(ctx, "ada@example.com", "newsecret")
		assert.NoError(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		res, err := svc.RequestPasswordReset(ctx, "ada@example.com")
		require.NoError(t, err)

		later := NewAuthService(Deps{
			Store:  deps.Store,
			Logger: zap.NewNop(),
			Now:    func() time.Time { return now.Add(time.Hour + time.Second) },
		}, auth.NewTokenManager("test-secret", time.Hour))
		err = later.ResetPassword(ctx, res.Token, "expired1")
		assert.ErrorIs(t, err, apperr.ErrResetTokenExpired)
		assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

		_, err = svc.Login(ctx, "ada@example.com", "expired1")
		assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	})

	t.Run("unknown or malformed input", func(t *testing.T) {
		err := svc.ResetPassword(ctx, "no-such-token", "whatever1")
		assert.ErrorIs(t, err, apperr.ErrInvalidResetToken)
		assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

		res, err := svc.RequestPasswordReset(ctx, "ada@example.com")
		require.NoError(t, err)
		err = svc.ResetPassword(ctx, res.Token, "123")
		assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
		// a rejected password does not burn the token
		assert.NoError(t, svc.ResetPassword(ctx, res.Token, "valid123"))
	})
}
