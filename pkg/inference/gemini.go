package inference

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const providerGemini = "gemini"

// Default Gemini settings.
const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-2.0-flash"
)

// Gemini calls Google's generateContent API with the image as inline data.
type Gemini struct {
	baseURL string
	config  *Config
	tr      *transport
}

// NewGemini creates a Gemini provider. An API key is required.
func NewGemini(opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = DefaultGeminiBaseURL
	cfg.VisionModel = DefaultGeminiModel
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, WrapError(providerGemini, ErrNoAPIKey)
	}

	header := http.Header{}
	header.Set("x-goog-api-key", cfg.APIKey)
	return &Gemini{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		config:  cfg,
		tr:      newTransport(providerGemini, cfg, header),
	}, nil
}

func (g *Gemini) Name() string { return providerGemini }

// Vision implements Provider.
func (g *Gemini) Vision(ctx context.Context, req *VisionRequest) (*VisionResponse, error) {
	start := time.Now()

	b64, mime, err := req.encodedImage()
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}
	model, maxTokens, temp := g.config.resolve(req)

	body := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: req.Prompt},
				{InlineData: &geminiBlob{MimeType: mime, Data: b64}},
			},
		}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     temp,
			MaxOutputTokens: maxTokens,
		},
	}

	var reply geminiResponse
	if err := g.tr.do(ctx, http.MethodPost, g.baseURL+"/models/"+model+":generateContent", body, &reply); err != nil {
		return nil, err
	}
	if len(reply.Candidates) == 0 || len(reply.Candidates[0].Content.Parts) == 0 {
		return nil, WrapError(providerGemini, ErrEmptyResponse)
	}

	cand := reply.Candidates[0]
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		text.WriteString(part.Text)
	}

	latency := time.Since(start).Milliseconds()
	g.tr.logger.Debug("vision complete", "model", model, "latency_ms", latency, "tokens", reply.UsageMetadata.TotalTokenCount)

	return &VisionResponse{
		Content:      text.String(),
		FinishReason: cand.FinishReason,
		Usage: Usage{
			PromptTokens:     reply.UsageMetadata.PromptTokenCount,
			CompletionTokens: reply.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      reply.UsageMetadata.TotalTokenCount,
		},
		Model:     model,
		LatencyMs: latency,
	}, nil
}

// Health fetches the configured model's metadata.
func (g *Gemini) Health(ctx context.Context) error {
	return g.tr.do(ctx, http.MethodGet, g.baseURL+"/models/"+g.config.VisionModel, nil, nil)
}

func (g *Gemini) Close() error {
	g.tr.close()
	return nil
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inline_data,omitempty"`
}

type geminiBlob struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

var _ Provider = (*Gemini)(nil)
