package ragdex

import "github.com/kailas-cloud/ragdex/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrIndexNotBuilt          = domain.ErrIndexNotBuilt
	ErrIndexCorrupt           = domain.ErrIndexCorrupt
	ErrChecksumMismatch       = domain.ErrChecksumMismatch
	ErrModelMismatch          = domain.ErrModelMismatch
	ErrTimeout                = domain.ErrTimeout
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrVectorDimMismatch      = domain.ErrVectorDimMismatch
)

// IsRetriable reports whether err is transient (timeouts, provider errors).
func IsRetriable(err error) bool { return domain.IsRetriable(err) }
