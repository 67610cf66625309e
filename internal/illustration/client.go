// Package illustration requests generated images for freshly appeared
// opponents. Failure is silent and permanent per request: the log entry
// simply stays without an image.
package illustration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrImageGenerationFailed marks any failure of the illustration backend.
var ErrImageGenerationFailed = errors.New("image generation failed")

// Generator produces an image for a short text prompt and returns its
// public URL.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds the illustration backend settings.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	Ratio             string
	PromptStyleSuffix string
}

// Client implements Generator over the image server's HTTP API.
type Client struct {
	httpClient        *http.Client
	baseURL           string
	ratio             string
	promptStyleSuffix string
	logger            *zap.Logger
}

// NewClient creates an illustration client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("image server base URL (IMAGE_SERVER_URL) is not configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Ratio == "" {
		cfg.Ratio = "3:2"
	}
	return &Client{
		httpClient:        &http.Client{Timeout: cfg.Timeout},
		baseURL:           cfg.BaseURL,
		ratio:             cfg.Ratio,
		promptStyleSuffix: cfg.PromptStyleSuffix,
		logger:            logger.Named("IllustrationClient"),
	}, nil
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Ratio  string `json:"ratio"`
}

type generateResponse struct {
	URL string `json:"url"`
}

// Generate asks the image server for an illustration and returns its URL.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	fullPrompt := prompt + c.promptStyleSuffix
	c.logger.Debug("Requesting illustration", zap.String("prompt", fullPrompt))

	body, err := json.Marshal(generateRequest{Prompt: fullPrompt, Ratio: c.ratio})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageGenerationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageGenerationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageGenerationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrImageGenerationFailed, resp.StatusCode, string(data))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageGenerationFailed, err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("%w: empty url in response", ErrImageGenerationFailed)
	}

	c.logger.Info("Illustration generated", zap.String("url", out.URL))
	return out.URL, nil
}
