package llm

import (
	"fmt"
	"strings"
)

// NewService creates the AI service named by config.Provider. It returns
// nil, nil when no provider is configured; callers must not wrap that nil
// in an interface.
func NewService(config Config) (*OpenAIService, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIService(config)

	case "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown AI provider: %s (supported: openai)", config.Provider)
	}
}
