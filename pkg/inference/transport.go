package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxErrorBody caps how much of an error response is kept as the message.
const maxErrorBody = 64 << 10

// transport sends JSON requests to a single backend. Temporary failures are
// resent up to retries times with a linear backoff.
type transport struct {
	provider string
	client   *http.Client
	header   http.Header
	retries  int
	delay    time.Duration
	logger   *slog.Logger
}

func newTransport(provider string, cfg *Config, header http.Header) *transport {
	return &transport{
		provider: provider,
		client:   &http.Client{Timeout: cfg.Timeout},
		header:   header,
		retries:  cfg.MaxRetries,
		delay:    cfg.RetryDelay,
		logger:   cfg.Logger.With("component", "inference."+provider),
	}
}

// do sends in as the JSON body (nil for none) and decodes a 200 reply into
// out (nil to discard it).
func (t *transport) do(ctx context.Context, method, url string, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return WrapError(t.provider, fmt.Errorf("marshal request: %w", err))
		}
		payload = b
	}

	for attempt := 0; ; attempt++ {
		retry, err := t.send(ctx, method, url, payload, out)
		if err == nil || !retry || attempt >= t.retries {
			return err
		}
		t.logger.Warn("retrying request", "attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return WrapError(t.provider, ctx.Err())
		case <-time.After(t.delay * time.Duration(attempt+1)):
		}
	}
}

// send performs one attempt and reports whether a failure is worth retrying.
func (t *transport) send(ctx context.Context, method, url string, payload []byte, out any) (bool, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return false, WrapError(t.provider, err)
	}
	for k, v := range t.header {
		req.Header[k] = v
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, WrapError(t.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := decodeAPIError(t.provider, resp.StatusCode, data)
		return apiErr.Temporary(), apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, WrapError(t.provider, fmt.Errorf("decode response: %w", err))
	}
	return false, nil
}

func (t *transport) close() {
	t.client.CloseIdleConnections()
}

// errorBody covers both the OpenAI and Google error envelopes:
//
//	{"error": {"message": "...", "code": "invalid_api_key"}}
//	{"error": {"message": "...", "code": 403, "status": "PERMISSION_DENIED"}}
type errorBody struct {
	Error struct {
		Message string          `json:"message"`
		Code    json.RawMessage `json:"code"`
		Status  string          `json:"status"`
	} `json:"error"`
}

func decodeAPIError(provider string, status int, data []byte) *APIError {
	e := &APIError{Provider: provider, StatusCode: status, Message: string(data)}

	var body errorBody
	if json.Unmarshal(data, &body) != nil || body.Error.Message == "" {
		return e
	}
	e.Message = body.Error.Message
	e.Code = body.Error.Status
	if e.Code == "" {
		var code string
		if json.Unmarshal(body.Error.Code, &code) == nil {
			e.Code = code
		}
	}
	return e
}
