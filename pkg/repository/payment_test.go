package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/repository/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindPendingCreatedBefore_StrictCutoff(t *testing.T) {
	store := repotest.NewStore(t)
	ctx := context.Background()
	cutoff := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	older := repotest.SeedPayment(t, store, models.Payment{TransactionID: "pi_old", CreatedAt: cutoff.Add(-time.Second)})
	repotest.SeedPayment(t, store, models.Payment{TransactionID: "pi_exact", CreatedAt: cutoff})
	repotest.SeedPayment(t, store, models.Payment{TransactionID: "pi_new", CreatedAt: cutoff.Add(time.Second)})
	repotest.SeedPayment(t, store, models.Payment{
		TransactionID: "pi_done", Status: models.PaymentStatusSuccess, CreatedAt: cutoff.Add(-time.Hour),
	})

	payments, err := store.FindPendingCreatedBefore(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, older.ID, payments[0].ID)
}

func TestFindPendingNotUpdatedSince_OrderAndLimit(t *testing.T) {
	store := repotest.NewStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-time.Hour)

	third := repotest.SeedPayment(t, store, models.Payment{
		TransactionID: "pi_3", CreatedAt: now.Add(-3 * time.Hour), UpdatedAt: now.Add(-2 * time.Hour),
	})
	first := repotest.SeedPayment(t, store, models.Payment{
		TransactionID: "pi_1", CreatedAt: now.Add(-5 * time.Hour), UpdatedAt: now.Add(-2 * time.Hour),
	})
	second := repotest.SeedPayment(t, store, models.Payment{
		TransactionID: "pi_2", CreatedAt: now.Add(-4 * time.Hour), UpdatedAt: now.Add(-90 * time.Minute),
	})
	// touched recently
	repotest.SeedPayment(t, store, models.Payment{
		TransactionID: "pi_fresh", CreatedAt: now.Add(-6 * time.Hour), UpdatedAt: now.Add(-time.Minute),
	})

	payments, err := store.FindPendingNotUpdatedSince(ctx, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, payments, 3)
	assert.Equal(t, []string{first.ID, second.ID, third.ID},
		[]string{payments[0].ID, payments[1].ID, payments[2].ID})

	payments, err = store.FindPendingNotUpdatedSince(ctx, cutoff, 2)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestExpirePayments_OnlyPending(t *testing.T) {
	store := repotest.NewStore(t)
	ctx := context.Background()

	pending := repotest.SeedPayment(t, store, models.Payment{TransactionID: "pi_p"})
	succeeded := repotest.SeedPayment(t, store, models.Payment{TransactionID: "pi_s", Status: models.PaymentStatusSuccess})

	n, err := store.ExpirePayments(ctx, []string{pending.ID, succeeded.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.GetPayment(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, got.Status)
	assert.Equal(t, models.FailureExpired, got.FailureReason)

	got, err = store.GetPayment(ctx, succeeded.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, got.Status)

	n, err = store.ExpirePayments(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTransitionPaymentStatus_Guarded(t *testing.T) {
	store := repotest.NewStore(t)
	ctx := context.Background()
	payment := repotest.SeedPayment(t, store, models.Payment{TransactionID: "pi_g"})
	paidAt := time.Now().UTC()

	changed, err := store.TransitionPaymentStatus(ctx, payment.ID, repository.PaymentTransition{
		From: models.PaymentStatusPending, To: models.PaymentStatusSuccess, PaymentDate: &paidAt,
	})
	require.NoError(t, err)
	assert.True(t, changed)

	// a second writer that still believes the row is pending loses
	changed, err = store.TransitionPaymentStatus(ctx, payment.ID, repository.PaymentTransition{
		From: models.PaymentStatusPending, To: models.PaymentStatusFailed, FailureReason: models.FailureProviderFailed,
	})
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := store.GetPaymentByTransactionID(ctx, "pi_g")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, got.Status)
	require.NotNil(t, got.PaymentDate)
}

func TestPaymentLookups(t *testing.T) {
	store := repotest.NewStore(t)
	ctx := context.Background()

	_, err := store.GetPayment(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrPaymentNotFound)
	_, err = store.GetPaymentByTransactionID(ctx, "pi_missing")
	assert.ErrorIs(t, err, apperr.ErrPaymentNotFound)

	user := repotest.SeedUser(t, store, "a@example.com")
	order := repotest.SeedOrder(t, store, user, 10)
	repotest.SeedPayment(t, store, models.Payment{OrderID: order.ID, TransactionID: "pi_f", Status: models.PaymentStatusFailed})

	ok, err := store.HasSuccessfulPayment(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	repotest.SeedPayment(t, store, models.Payment{OrderID: order.ID, TransactionID: "pi_ok", Status: models.PaymentStatusSuccess})
	ok, err = store.HasSuccessfulPayment(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
