package openaicompat

import (
	"net/http"
	"strings"

	"github.com/lycosa9527/MindGraph-sub001/types"
)

// mapHTTPError classifies an upstream HTTP status into the types.Error
// taxonomy, matching the retry/circuit-breaker semantics of spec §7.
func mapHTTPError(status int, msg string, provider string) *types.Error {
	switch status {
	case http.StatusUnauthorized:
		return types.NewError(types.ErrAuthentication, msg).WithProvider(provider)
	case http.StatusForbidden:
		return types.NewError(types.ErrForbidden, msg).WithProvider(provider)
	case http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).WithRetryable(true).WithProvider(provider)
	case http.StatusBadRequest:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "credit") || strings.Contains(lower, "insufficient") {
			return types.NewError(types.ErrQuotaExceeded, msg).WithProvider(provider)
		}
		return types.NewError(types.ErrInvalidRequest, msg).WithProvider(provider)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return types.NewError(types.ErrUpstreamError, msg).WithRetryable(true).WithProvider(provider)
	case 529: // model overloaded, used by several vendors
		return types.NewError(types.ErrModelOverloaded, msg).WithRetryable(true).WithProvider(provider)
	default:
		e := types.NewError(types.ErrUpstreamError, msg).WithProvider(provider)
		if status >= 500 {
			e = e.WithRetryable(true)
		}
		return e
	}
}

// mapTransportError classifies a raw network error (dial/TLS/timeout
// failures never reaching the HTTP status line) as retryable.
func mapTransportError(err error, provider string) *types.Error {
	return types.NewError(types.ErrUpstreamTimeout, err.Error()).WithCause(err).WithRetryable(true).WithProvider(provider)
}
