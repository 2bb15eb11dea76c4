package inference

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// EnvConverseMode is the environment variable name for mode selection.
	EnvConverseMode = "CONVERSE_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// NewGenerator creates a Generator based on the CONVERSE_MODE
// environment variable. If CONVERSE_MODE=MOCK, returns a MockGenerator;
// otherwise returns a real HTTP client.
func NewGenerator(baseURL, apiKey, model string, timeout time.Duration) Generator {
	if os.Getenv(EnvConverseMode) == ModeMock {
		log.Info("CONVERSE_MODE=MOCK detected, using mock generator")
		return NewMockGenerator()
	}
	return NewClient(baseURL, apiKey, model, timeout)
}
