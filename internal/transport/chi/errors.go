package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// ErrorCode is a machine-readable error identifier.
type ErrorCode string

// Error codes returned in ErrorResponse.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeForbidden        ErrorCode = "forbidden"
	CodeIndexNotBuilt    ErrorCode = "index_not_built"
	CodeIndexUnavailable ErrorCode = "index_unavailable"
	CodeProviderError    ErrorCode = "embedding_provider_error"
	CodeTimeout          ErrorCode = "timeout"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

var errorHandlers = []errorHandler{
	sentinelHandler(domain.ErrIndexNotBuilt, http.StatusServiceUnavailable, CodeIndexNotBuilt, "index not built yet"),
	sentinelHandler(domain.ErrTimeout, http.StatusGatewayTimeout, CodeTimeout, "embedding provider timed out"),
	sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeProviderError,
		"could not answer: embedding provider error"),
	sentinelHandler(domain.ErrModelMismatch, http.StatusServiceUnavailable, CodeIndexUnavailable, domain.ErrModelMismatch.Error()),
	sentinelHandler(domain.ErrIndexCorrupt, http.StatusServiceUnavailable, CodeIndexUnavailable, domain.ErrIndexCorrupt.Error()),
	sentinelHandler(domain.ErrChecksumMismatch, http.StatusServiceUnavailable, CodeIndexUnavailable,
		domain.ErrChecksumMismatch.Error()),
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}

func sentinelHandler(sentinel error, status int, code ErrorCode, msg string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}
