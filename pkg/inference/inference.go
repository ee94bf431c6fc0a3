// Package inference submits images to a remote vision model and returns a
// natural-language description.
//
// The package abstracts vision analysis behind a single Provider interface so
// the pipeline can switch between Gemini and any OpenAI-compatible endpoint
// (OpenAI, Ollama, vLLM, ...).
//
// Example usage:
//
//	provider, _ := inference.NewGemini(
//	    inference.WithAPIKey(os.Getenv("GOOGLE_API_KEY")),
//	)
//	defer provider.Close()
//
//	analyzer := inference.NewAnalyzer(provider, inference.DefaultPrompt)
//	text, _ := analyzer.Analyze(ctx, jpegBytes)
package inference

import (
	"context"
	"encoding/base64"
	"image"
)

// Provider is the inference interface for vision analysis.
type Provider interface {
	// Vision analyzes an image with a text prompt.
	Vision(ctx context.Context, req *VisionRequest) (*VisionResponse, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Name identifies the provider in logs and errors.
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

// VisionRequest for image analysis.
type VisionRequest struct {
	// ImageData is an already-encoded image (JPEG or PNG). Preferred over
	// Image since it avoids a decode/re-encode round trip.
	ImageData []byte

	// Image to analyze when no encoded bytes are available.
	Image image.Image

	// Prompt describing what to analyze or ask about the image.
	Prompt string

	// Model overrides the default vision model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness.
	Temperature float64
}

// VisionResponse from image analysis.
type VisionResponse struct {
	// Content is the natural language response.
	Content string

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Usage tracks token consumption.
	Usage Usage

	// Model used for analysis.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Usage tracks token consumption for billing and limits.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// encodedImage returns the request's image as base64 plus its MIME type.
func (r *VisionRequest) encodedImage() (b64, mime string, err error) {
	data, mime := r.ImageData, DetectMIME(r.ImageData)
	if len(data) == 0 {
		if r.Image == nil {
			return "", "", ErrNoImage
		}
		if data, err = encodeJPEG(r.Image); err != nil {
			return "", "", err
		}
		mime = "image/jpeg"
	}
	return base64.StdEncoding.EncodeToString(data), mime, nil
}
