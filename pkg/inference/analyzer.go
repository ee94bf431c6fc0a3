package inference

import (
	"context"
	"fmt"
	"strings"
)

// DefaultPrompt asks the model for a general description of the photo.
const DefaultPrompt = "Describe this photo in detail. Mention the main subjects, " +
	"what they are doing, the setting, and anything unusual."

// Analyzer turns a captured JPEG into a description using a Provider.
type Analyzer struct {
	provider Provider
	prompt   string
}

// NewAnalyzer wraps provider. An empty prompt selects DefaultPrompt.
func NewAnalyzer(provider Provider, prompt string) *Analyzer {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}
	return &Analyzer{provider: provider, prompt: prompt}
}

// Prompt returns the prompt sent with every image.
func (a *Analyzer) Prompt() string {
	return a.prompt
}

// Analyze submits image and returns the trimmed description.
func (a *Analyzer) Analyze(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", ErrNoImage
	}

	resp, err := a.provider.Vision(ctx, &VisionRequest{
		ImageData: image,
		Prompt:    a.prompt,
	})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", WrapError(a.provider.Name(), ErrEmptyResponse)
	}
	return text, nil
}

// New builds a provider by name: "gemini" or "openai".
func New(name string, opts ...Option) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case providerGemini, "google":
		return NewGemini(opts...)
	case providerOpenAI, "":
		return NewClient(opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}
