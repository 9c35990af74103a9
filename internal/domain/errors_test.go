package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestDomainErrors_Classification checks every code lands in exactly the expected class
func TestDomainErrors_Classification(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		notFound   bool
		signature  bool
		validation bool
		gateway    bool
	}{
		{code: ErrorCodeOrderNotFound, notFound: true},
		{code: ErrorCodeSettlementNotFound, notFound: true},
		{code: ErrorCodeCustomOrderNotFound, notFound: true},
		{code: ErrorCodeSignatureMissing, signature: true},
		{code: ErrorCodeSignatureInvalid, signature: true},
		{code: ErrorCodeSecretNotConfigured, signature: true},
		{code: ErrorCodeValidationFailed, validation: true},
		{code: ErrorCodeValidationMissingField, validation: true},
		{code: ErrorCodeValidationAmountInvalid, validation: true},
		{code: ErrorCodeRefundGatewayFailed, gateway: true},
		{code: ErrorCodeGatewayTimeout, gateway: true},
		{code: ErrorCodeGatewayUnavailable, gateway: true},
		{code: ErrorCodeRefundNotEligible},
		{code: ErrorCodeRefundAlreadyRefunded},
		{code: ErrorCodeRefundStoreFailed},
		{code: ErrorCodeInternalError},
		{code: ErrorCodeDatabaseError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := fmt.Errorf("handler: %w", NewDomainError(tt.code, "boom"))

			if got := IsNotFoundError(err); got != tt.notFound {
				t.Errorf("IsNotFoundError = %v, want %v", got, tt.notFound)
			}
			if got := IsSignatureError(err); got != tt.signature {
				t.Errorf("IsSignatureError = %v, want %v", got, tt.signature)
			}
			if got := IsValidationError(err); got != tt.validation {
				t.Errorf("IsValidationError = %v, want %v", got, tt.validation)
			}
			if got := IsGatewayError(err); got != tt.gateway {
				t.Errorf("IsGatewayError = %v, want %v", got, tt.gateway)
			}
			if got := GetErrorCode(err); got != tt.code {
				t.Errorf("GetErrorCode = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestDomainErrors_Wrapping(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError(ErrorCodeDatabaseError, "load order", cause)

	if !errors.Is(err, cause) {
		t.Fatal("errors.Is failed: wrapped domain error does not match its cause")
	}
	if got := err.Error(); got != "INTERNAL_DATABASE_ERROR: load order: connection reset" {
		t.Errorf("Error() = %q", got)
	}
	if !IsDomainError(fmt.Errorf("outer: %w", err), ErrorCodeDatabaseError) {
		t.Error("IsDomainError failed through an fmt wrap")
	}
	if IsDomainError(cause, ErrorCodeDatabaseError) {
		t.Error("IsDomainError matched a plain error")
	}
	if GetErrorCode(cause) != "" {
		t.Error("GetErrorCode returned a code for a plain error")
	}
}

func TestDomainErrors_Details(t *testing.T) {
	err := fmt.Errorf("sweep: %w", ErrOrderNotFound("ord-1"))

	v, ok := GetErrorDetail(err, "order_id")
	if !ok || v != "ord-1" {
		t.Errorf("order_id detail = %v, %v", v, ok)
	}
	if _, ok := GetErrorDetail(err, "missing"); ok {
		t.Error("unexpected detail")
	}
	if _, ok := GetErrorDetail(errors.New("plain"), "order_id"); ok {
		t.Error("plain error has no details")
	}
}

// TestDomainErrors_ConstructorsAreFresh guards against shared sentinel values
// picking up details from an unrelated caller
func TestDomainErrors_ConstructorsAreFresh(t *testing.T) {
	a := ErrMissingField("reason")
	b := ErrMissingField("reason")
	a.WithDetail("extra", true)

	if _, ok := b.Details["extra"]; ok {
		t.Error("constructors share Details")
	}
	if !strings.Contains(b.Error(), "reason is required") {
		t.Errorf("Error() = %q", b.Error())
	}
}

func TestDomainErrors_NotFoundConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *DomainError
		key  string
	}{
		{"order", ErrOrderNotFound("o-1"), "order_id"},
		{"settlement", ErrSettlementNotFound("s-1"), "settlement_id"},
		{"custom_order", ErrCustomOrderNotFound("c-1"), "custom_order_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !IsNotFoundError(tt.err) {
				t.Errorf("%s is not a not-found error", tt.err)
			}
			if _, ok := tt.err.Details[tt.key]; !ok {
				t.Errorf("missing %s detail", tt.key)
			}
		})
	}
}
