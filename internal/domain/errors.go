package domain

import (
	"errors"
	"fmt"
)

// Базовые ошибки. Типизированные ошибки ниже сопоставляются с ними через errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrTransport         = errors.New("remote store unavailable")
	ErrQuotaExceeded     = errors.New("local storage quota exceeded")
	ErrInvalidState      = errors.New("invalid state")
	ErrLimitReached      = errors.New("subscription limit reached")
	ErrRateLimited       = errors.New("rate limit exceeded")
)

// ValidationError некорректный ввод, отклонён до любой записи
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError отсутствует товар, заказ или покупатель
type NotFoundError struct {
	Kind string
	ID   string
}

func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InsufficientStockError запрошено больше, чем есть на складе
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int64
	Available   int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// TransportError сбой сети или удалённого хранилища
type TransportError struct {
	Op  string
	Err error
}

func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + ErrTransport.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func (e *TransportError) Unwrap() error { return e.Err }

// QuotaExceededError локальное хранилище переполнено
type QuotaExceededError struct {
	Key string
	Err error
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("persist %s: %s", e.Key, ErrQuotaExceeded.Error())
}

func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

func (e *QuotaExceededError) Unwrap() error { return e.Err }
