package backend

import (
	"strings"

	"github.com/rs/zerolog"
)

// ModeMock selects the in-process mock backend.
const ModeMock = "MOCK"

// New returns the mock backend when mode is MOCK or no endpoint is configured,
// otherwise an HTTP client for endpoint.
func New(endpoint, mode string, logger zerolog.Logger) Backend {
	if strings.EqualFold(mode, ModeMock) || endpoint == "" {
		logger.Warn().Msg("Using mock backend")
		return NewMockBackend()
	}
	return NewClient(endpoint)
}
