package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Lookup errors
	ErrorCodeOrderNotFound       ErrorCode = "ORDER_NOT_FOUND"
	ErrorCodeSettlementNotFound  ErrorCode = "SETTLEMENT_NOT_FOUND"
	ErrorCodeCustomOrderNotFound ErrorCode = "CUSTOM_ORDER_NOT_FOUND"

	// Callback integrity errors (SIGNATURE_*)
	ErrorCodeSignatureMissing    ErrorCode = "SIGNATURE_MISSING"
	ErrorCodeSignatureInvalid    ErrorCode = "SIGNATURE_INVALID"
	ErrorCodeSecretNotConfigured ErrorCode = "SECRET_NOT_CONFIGURED"

	// Validation errors (VALIDATION_*)
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"
	ErrorCodeValidationAmountInvalid ErrorCode = "VALIDATION_AMOUNT_INVALID"

	// Refund errors (REFUND_*)
	ErrorCodeRefundNotEligible     ErrorCode = "REFUND_NOT_ELIGIBLE"
	ErrorCodeRefundAlreadyRefunded ErrorCode = "REFUND_ALREADY_REFUNDED"
	ErrorCodeRefundGatewayFailed   ErrorCode = "REFUND_GATEWAY_FAILED"
	ErrorCodeRefundStoreFailed     ErrorCode = "REFUND_STORE_FAILED"

	// Payment gateway errors (GATEWAY_*)
	ErrorCodeGatewayTimeout     ErrorCode = "GATEWAY_TIMEOUT"
	ErrorCodeGatewayUnavailable ErrorCode = "GATEWAY_UNAVAILABLE"

	// Internal errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// GetErrorDetail returns a detail value attached to a DomainError in the chain
func GetErrorDetail(err error, key string) (interface{}, bool) {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Details == nil {
		return nil, false
	}
	v, ok := domainErr.Details[key]
	return v, ok
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeOrderNotFound ||
		code == ErrorCodeSettlementNotFound ||
		code == ErrorCodeCustomOrderNotFound
}

// IsSignatureError checks if an error means the callback could not be authenticated
func IsSignatureError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeSignatureMissing ||
		code == ErrorCodeSignatureInvalid ||
		code == ErrorCodeSecretNotConfigured
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationAmountInvalid ||
		code == ErrorCodeValidationMissingField
}

// IsGatewayError checks if an error is a payment gateway error
func IsGatewayError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeRefundGatewayFailed ||
		code == ErrorCodeGatewayTimeout ||
		code == ErrorCodeGatewayUnavailable
}

// Constructors return fresh values so callers can attach details safely.

func ErrOrderNotFound(orderID string) *DomainError {
	return NewDomainError(ErrorCodeOrderNotFound, "order not found").WithDetail("order_id", orderID)
}

func ErrSettlementNotFound(settlementID string) *DomainError {
	return NewDomainError(ErrorCodeSettlementNotFound, "settlement not found").WithDetail("settlement_id", settlementID)
}

func ErrCustomOrderNotFound(id string) *DomainError {
	return NewDomainError(ErrorCodeCustomOrderNotFound, "custom order not found").WithDetail("custom_order_id", id)
}

func ErrMissingField(field string) *DomainError {
	return NewDomainError(ErrorCodeValidationMissingField, field+" is required").WithDetail("field", field)
}
