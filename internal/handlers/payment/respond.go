package payment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"go.uber.org/zap"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// statusFor maps a domain error code to the HTTP status returned to the caller
func statusFor(err error) int {
	switch code := domain.GetErrorCode(err); {
	case code == domain.ErrorCodeSecretNotConfigured:
		return http.StatusInternalServerError
	case domain.IsNotFoundError(err):
		return http.StatusNotFound
	case domain.IsSignatureError(err):
		return http.StatusForbidden
	case domain.IsValidationError(err):
		return http.StatusBadRequest
	case code == domain.ErrorCodeRefundNotEligible, code == domain.ErrorCodeRefundAlreadyRefunded:
		return http.StatusConflict
	case domain.IsGatewayError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Unclassified errors get a generic message so
// internals never reach the gateway or the admin client.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	status := statusFor(err)
	resp := errorResponse{Error: fallback}

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = string(domainErr.Code)
		if status != http.StatusInternalServerError {
			resp.Error = domainErr.Message
		}
	}
	writeJSON(w, logger, status, resp)
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}
