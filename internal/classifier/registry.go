package classifier

import (
	"fmt"
	"time"
)

// Options configures any backend; fields a backend does not use are ignored.
type Options struct {
	BaseURL      string
	Model        string
	APIKeyEnv    string
	APIKey       string
	Timeout      time.Duration
	ModelOptions map[string]any // backend-native sampling options

	// mock only
	Script      []int
	Why         string
	MockLatency time.Duration
}

// New creates a backend by name
func New(name string, opts Options) (Backend, error) {
	switch name {
	case "ollama", "":
		return NewOllama(opts)
	case "openai":
		return NewOpenAI(opts)
	case "mock":
		return NewMock(opts), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}

// Names lists the registered backends.
func Names() []string {
	return []string{"ollama", "openai", "mock"}
}
