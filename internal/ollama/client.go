package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// loadTimeout bounds a single call. The first request after start-up
// includes loading the model into memory.
const loadTimeout = 120 * time.Second

// maxErrorBody caps how much of a failed response is quoted in errors.
const maxErrorBody = 512

// sampling holds the generation options sent with every lyric request.
type sampling struct {
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	NumPredict    int     `json:"num_predict"`
	RepeatPenalty float64 `json:"repeat_penalty"`
}

// songSampling leaves room for a full song with several sections.
var songSampling = sampling{
	Temperature:   0.9,
	TopP:          0.95,
	NumPredict:    1024,
	RepeatPenalty: 1.1,
}

type generateRequest struct {
	Model   string    `json:"model"`
	Prompt  string    `json:"prompt"`
	System  string    `json:"system,omitempty"`
	Format  string    `json:"format,omitempty"`
	Stream  bool      `json:"stream"`
	Options *sampling `json:"options,omitempty"`
}

type generateResponse struct {
	Response      string `json:"response"`
	Done          bool   `json:"done"`
	EvalCount     int    `json:"eval_count,omitempty"`
	TotalDuration int64  `json:"total_duration,omitempty"` // nanoseconds
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// apiError is a non-200 answer from the Ollama server.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("ollama: status %d: %s", e.Status, e.Message)
}

// Client is a minimal Ollama HTTP client for JSON-mode generation.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a client for the server at baseURL using model.
func NewClient(baseURL, model string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: loadTimeout},
		logger:  logger,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Available reports whether the server answers at all.
func (c *Client) Available(ctx context.Context) bool {
	_, err := c.installedModels(ctx)
	return err == nil
}

// HasModel reports whether the configured model is pulled on the server.
// A bare name matches any tag of it ("llama3.2" matches "llama3.2:latest").
func (c *Client) HasModel(ctx context.Context) (bool, error) {
	names, err := c.installedModels(ctx)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if name == c.model || strings.TrimSuffix(name, ":latest") == c.model {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) installedModels(ctx context.Context) ([]string, error) {
	var tags tagsResponse
	if err := c.call(ctx, http.MethodGet, "/api/tags", nil, &tags); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// GenerateJSON runs a single non-streaming completion in JSON mode and
// returns the model's raw text.
func (c *Client) GenerateJSON(ctx context.Context, system, prompt string) (string, error) {
	opts := songSampling
	req := generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		System:  system,
		Format:  "json",
		Options: &opts,
	}

	var resp generateResponse
	if err := c.call(ctx, http.MethodPost, "/api/generate", req, &resp); err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if !resp.Done {
		c.logger.Warn("ollama returned a partial response", zap.String("model", c.model))
	}
	c.logger.Debug("ollama completion",
		zap.String("model", c.model),
		zap.Int("tokens", resp.EvalCount),
		zap.Duration("took", time.Duration(resp.TotalDuration)))

	return strings.TrimSpace(resp.Response), nil
}

// call sends in (if non-nil) as JSON and decodes the reply into out.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// WaitForReady polls until the server answers or ctx ends. Ollama is
// optional, so false means "carry on with Gemini".
func (c *Client) WaitForReady(ctx context.Context, interval time.Duration) bool {
	for {
		ok, err := c.HasModel(ctx)
		if err == nil {
			if !ok {
				c.logger.Warn("ollama is up but the model is not pulled",
					zap.String("model", c.model))
			}
			return true
		}
		c.logger.Debug("ollama not ready", zap.Error(err))

		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
}
