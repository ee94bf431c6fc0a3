package inference

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const providerOpenAI = "openai"

// Client is a vision provider for OpenAI-compatible chat completion APIs
// (OpenAI, Ollama, vLLM, Groq, ...).
type Client struct {
	baseURL string
	config  *Config
	tr      *transport
}

// NewClient creates an OpenAI-compatible provider. The API key is optional
// since local servers usually run without one.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		config:  cfg,
		tr:      newTransport(providerOpenAI, cfg, header),
	}, nil
}

func (c *Client) Name() string { return providerOpenAI }

// Vision sends the image inline as a data URL next to the prompt.
func (c *Client) Vision(ctx context.Context, req *VisionRequest) (*VisionResponse, error) {
	start := time.Now()

	b64, mime, err := req.encodedImage()
	if err != nil {
		return nil, WrapError(providerOpenAI, err)
	}
	model, maxTokens, temp := c.config.resolve(req)

	body := chatRequest{
		Model: model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatPart{
				{Type: "text", Text: req.Prompt},
				{Type: "image_url", ImageURL: &chatImageURL{URL: "data:" + mime + ";base64," + b64}},
			},
		}},
		MaxTokens:   maxTokens,
		Temperature: temp,
	}

	var reply chatResponse
	if err := c.tr.do(ctx, http.MethodPost, c.baseURL+"/chat/completions", body, &reply); err != nil {
		return nil, err
	}
	if len(reply.Choices) == 0 {
		return nil, WrapError(providerOpenAI, ErrEmptyResponse)
	}

	latency := time.Since(start).Milliseconds()
	c.tr.logger.Debug("vision complete", "model", reply.Model, "latency_ms", latency, "tokens", reply.Usage.TotalTokens)

	choice := reply.Choices[0]
	return &VisionResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: Usage{
			PromptTokens:     reply.Usage.PromptTokens,
			CompletionTokens: reply.Usage.CompletionTokens,
			TotalTokens:      reply.Usage.TotalTokens,
		},
		Model:     reply.Model,
		LatencyMs: latency,
	}, nil
}

// Health lists models, which fails fast on a bad key or unreachable server.
func (c *Client) Health(ctx context.Context) error {
	return c.tr.do(ctx, http.MethodGet, c.baseURL+"/models", nil, nil)
}

func (c *Client) Close() error {
	c.tr.close()
	return nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string     `json:"role"`
	Content []chatPart `json:"content"`
}

type chatPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

var _ Provider = (*Client)(nil)
