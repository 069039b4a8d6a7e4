// ABOUTME: OpenAI API client for chat completions and embeddings
// ABOUTME: Bounded concurrency, per-call timeouts and retry with backoff

package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bosar/bosar-gateway/internal/config"
	"github.com/bosar/bosar-gateway/internal/responder"
	"github.com/bosar/bosar-gateway/internal/store"
)

const defaultMaxRetries = 3

// Client talks to the OpenAI HTTP API. It implements the responder's
// Provider and the knowledge engine's Embedder. A client without an API
// key reports unavailable and every call fails fast.
type Client struct {
	logger     *slog.Logger
	baseURL    string
	apiKey     string
	embedModel string
	httpClient *http.Client
	timeout    time.Duration
	sem        *semaphore.Weighted
	maxRetries int
}

// NewClient creates a client from configuration.
func NewClient(cfg config.OpenAIConfig, logger *slog.Logger) *Client {
	return &Client{
		logger:     logger.With("component", "openai"),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		embedModel: cfg.EmbedModel,
		httpClient: &http.Client{},
		timeout:    cfg.Timeout,
		sem:        semaphore.NewWeighted(cfg.MaxConcurrent),
		maxRetries: defaultMaxRetries,
	}
}

// Available reports whether an API key is configured.
func (c *Client) Available() bool {
	return c.apiKey != ""
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func isRetryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var he *httpError
	if errors.As(err, &he) {
		return he.StatusCode == 408 || he.StatusCode == 429 || (he.StatusCode >= 500 && he.StatusCode <= 599)
	}
	return false
}

// jitter spreads a backoff delay by +/- 20%.
func jitter(d time.Duration) time.Duration {
	delta := 0.2 * d.Seconds()
	low := d.Seconds() - delta
	return time.Duration((low + rand.Float64()*2*delta) * float64(time.Second))
}

func (c *Client) doOnce(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

// do runs one API call under the concurrency bound with timeout and
// exponential backoff on retryable failures.
func (c *Client) do(ctx context.Context, path string, body, out any) error {
	if !c.Available() {
		return errors.New("openai api key not configured")
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for request slot: %w", err)
	}
	defer c.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	backoff := time.Second
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("decoding openai response: %w", uErr)
			}
			return nil
		}

		if !isRetryable(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := backoff
		if resp != nil {
			if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
				if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
					sleepFor = time.Duration(secs) * time.Second
				}
			}
		}
		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		sleepFor = jitter(sleepFor)

		c.logger.Warn("openai request retrying",
			"path", path,
			"attempt", attempt+1,
			"sleep", sleepFor.String(),
			"error", err)

		select {
		case <-time.After(sleepFor):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
}

// ---- chat completions ----

type chatTool struct {
	Type     string     `json:"type"`
	Function store.Tool `json:"function"`
}

type chatRequest struct {
	Model       string                  `json:"model"`
	Messages    []responder.ChatMessage `json:"messages"`
	Temperature float64                 `json:"temperature,omitempty"`
	MaxTokens   int                     `json:"max_tokens,omitempty"`
	Tools       []chatTool              `json:"tools,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete runs one chat completion.
func (c *Client) Complete(ctx context.Context, req responder.CompletionRequest) (*responder.Completion, error) {
	apiReq := chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, tool := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, chatTool{Type: "function", Function: tool})
	}

	var resp chatResponse
	if err := c.do(ctx, "/v1/chat/completions", apiReq, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	msg := resp.Choices[0].Message
	completion := &responder.Completion{Text: msg.Content}

	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0].Function
		args := map[string]any{}
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				c.logger.Warn("unparseable tool arguments", "tool", call.Name, "error", err)
			}
		}
		completion.ToolCall = &responder.ToolCall{Name: call.Name, Arguments: args}
	}

	return completion, nil
}

// ---- embeddings ----

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	req := embeddingsRequest{Model: c.embedModel, Input: []string{text}}

	var resp embeddingsResponse
	if err := c.do(ctx, "/v1/embeddings", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai returned no embedding")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, f := range resp.Data[0].Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}
