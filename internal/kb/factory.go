package kb

import (
	"fmt"
	"strings"

	"github.com/ppiankov/currentevents/internal/model"
)

// NewRecognizer creates the recognizer named by cfg.Provider. An empty or
// "none" provider disables recognition and returns nil.
func NewRecognizer(cfg model.NERConfig, opts ServiceOptions) (Recognizer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "falcon2", "falcon":
		opts.Endpoint = cfg.Endpoint
		return NewFalcon(opts), nil

	case "openai":
		r, err := NewOpenAIRecognizer(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}, opts.Cache, opts.Recorder)
		if err != nil {
			return nil, err
		}
		return r, nil

	case "", "none":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown NER provider: %s (supported: falcon2, openai, none)", cfg.Provider)
	}
}
