package models

import "time"

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusFailed
}

type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodDebitCard  PaymentMethod = "debit_card"
	PaymentMethodUPI        PaymentMethod = "upi"
	PaymentMethodNetBanking PaymentMethod = "net_banking"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodDebitCard, PaymentMethodUPI, PaymentMethodNetBanking:
		return true
	}
	return false
}

// Reasons recorded alongside a failed status.
const (
	FailureProviderFailed = "provider_failed"
	FailureCanceled       = "canceled"
	FailureExpired        = "expired"
)

type Payment struct {
	ID            string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID       string        `gorm:"type:varchar(36);not null;index" json:"order_id"`
	Amount        float64       `gorm:"type:decimal(10,2)" json:"amount"`
	Currency      string        `gorm:"type:varchar(8)" json:"currency"`
	Method        PaymentMethod `gorm:"type:varchar(20)" json:"method"`
	Status        PaymentStatus `gorm:"type:varchar(20);default:'pending';index:idx_payments_status_created,priority:1" json:"status"`
	FailureReason string        `gorm:"type:varchar(32)" json:"failure_reason,omitempty"`
	TransactionID string        `gorm:"type:varchar(255);uniqueIndex" json:"transaction_id"`
	PaymentDate   *time.Time    `json:"payment_date"`
	CreatedAt     time.Time     `gorm:"index:idx_payments_status_created,priority:2" json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}
