// Package apperr defines the error kinds that cross the service boundary.
// The HTTP gateway translates a Kind into a status code; everything else
// surfaces as Internal.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidInput
	KindConflict
	KindProviderFailure
	KindUnauthenticated
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	case KindProviderFailure:
		return "provider_failure"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// HTTPStatus maps a kind to the status code the gateway responds with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindProviderFailure:
		return http.StatusBadGateway
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap attaches a kind and message to err. A nil err yields nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns a caller-safe message: the app message for typed errors,
// a generic text for anything else.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

var (
	ErrEmptyCart            = New(KindInvalidInput, "cart is empty")
	ErrInvalidAmount        = New(KindInvalidInput, "invalid payment amount")
	ErrInvalidSignature     = New(KindInvalidInput, "invalid webhook signature")
	ErrOrderNotFound        = New(KindNotFound, "order not found")
	ErrPaymentNotFound      = New(KindNotFound, "payment not found")
	ErrUserNotFound         = New(KindNotFound, "user not found")
	ErrProductNotFound      = New(KindNotFound, "product not found")
	ErrCartItemNotFound     = New(KindNotFound, "cart item not found")
	ErrAlreadyProcessed     = New(KindConflict, "payment already processed for this order")
	ErrUserExists           = New(KindConflict, "user already exists")
	ErrInvalidCredentials   = New(KindUnauthenticated, "invalid email or password")
	ErrUnauthenticated      = New(KindUnauthenticated, "user is not authenticated")
	ErrForbidden            = New(KindUnauthorized, "access denied")
	ErrWebhookNotConfigured = New(KindInternal, "webhook secret not configured")
	ErrInvalidResetToken    = New(KindInvalidInput, "invalid password reset token")
	ErrResetTokenExpired    = New(KindInvalidInput, "password reset token is expired or has already been used")
)
