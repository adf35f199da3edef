package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
)

func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = newID()
	}
	if err := s.db.WithContext(ctx).Create(payment).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, notFound(err, apperr.ErrPaymentNotFound)
	}
	return &payment, nil
}

func (s *Store) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&payment).Error; err != nil {
		return nil, notFound(err, apperr.ErrPaymentNotFound)
	}
	return &payment, nil
}

func (s *Store) HasSuccessfulPayment(ctx context.Context, orderID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, models.PaymentStatusSuccess).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check payments: %w", err)
	}
	return count > 0, nil
}

// FindPendingCreatedBefore returns pending payments created strictly before cutoff.
func (s *Store) FindPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PaymentStatusPending, cutoff.UTC()).
		Order("created_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find stale payments: %w", err)
	}
	return payments, nil
}

// FindPendingNotUpdatedSince returns at most limit pending payments whose last
// modification is strictly before cutoff, oldest created first.
func (s *Store) FindPendingNotUpdatedSince(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.PaymentStatusPending, cutoff.UTC()).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find pending payments: %w", err)
	}
	return payments, nil
}

// ExpirePayments marks the given payments failed with reason expired in one
// statement. Rows that left pending in the meantime are not touched.
func (s *Store) ExpirePayments(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id IN ? AND status = ?", ids, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":         models.PaymentStatusFailed,
			"failure_reason": models.FailureExpired,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to expire payments: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// PaymentTransition describes a guarded status change.
type PaymentTransition struct {
	From          models.PaymentStatus
	To            models.PaymentStatus
	FailureReason string
	PaymentDate   *time.Time
}

// TransitionPaymentStatus applies t only if the payment is still in t.From.
// It reports whether the row changed.
func (s *Store) TransitionPaymentStatus(ctx context.Context, id string, t PaymentTransition) (bool, error) {
	updates := map[string]interface{}{
		"status":         t.To,
		"failure_reason": t.FailureReason,
	}
	if t.PaymentDate != nil {
		updates["payment_date"] = t.PaymentDate.UTC()
	}
	result := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, t.From).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update payment status: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}
