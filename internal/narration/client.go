// Package narration talks to the generative narration backend. The backend
// is an untrusted text-generation system: it is asked for strict JSON but
// the response may be fenced, partial or garbage, so everything it returns
// goes through the defensive parser before it touches session state.
package narration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"saga-server/internal/models"
)

var log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

const (
	narratorPromptFileEN = "narrator_en.md"
	narratorPromptFileRU = "narrator_ru.md"
)

// Narrator resolves one pending action against the current session state.
type Narrator interface {
	ResolveTurn(ctx context.Context, session *models.Session, actionText string) (*models.TurnOutcome, error)
}

// Client implements Narrator over an OpenAI-compatible chat completion API.
type Client struct {
	client     *openai.Client
	modelName  string
	timeout    time.Duration
	maxRetries int
	prompts    map[string]string // locale -> system prompt
}

// Config holds the narration backend settings.
type Config struct {
	APIKey     string
	ModelName  string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	PromptsDir string
}

// turnRequest is the user-message payload sent to the backend: the full
// session snapshot plus the latest action.
type turnRequest struct {
	Session *models.Session `json:"session"`
	Action  string          `json:"action"`
	Locale  string          `json:"locale"`
}

func loadPromptFromFile(dir, filename string) (string, error) {
	filePath := filepath.Join(dir, filename)
	content, err := os.ReadFile(filePath)
	if err != nil {
		log.Error().Err(err).Str("file", filePath).Msg("Failed to read prompt file")
		return "", fmt.Errorf("failed to read prompt file %s: %w", filePath, err)
	}
	return string(content), nil
}

// New creates a narration client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("narration API key is not set")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "deepseek/deepseek-chat-v3-0324:free"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.PromptsDir == "" {
		cfg.PromptsDir = "prompts"
	}

	promptEN, err := loadPromptFromFile(cfg.PromptsDir, narratorPromptFileEN)
	if err != nil {
		return nil, err
	}
	promptRU, err := loadPromptFromFile(cfg.PromptsDir, narratorPromptFileRU)
	if err != nil {
		return nil, err
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &Client{
		client:     openai.NewClientWithConfig(config),
		modelName:  cfg.ModelName,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		prompts: map[string]string{
			"en": promptEN,
			"ru": promptRU,
		},
	}, nil
}

// ResolveTurn sends the session snapshot and action to the backend and
// parses the structured outcome. The call carries its own deadline so a
// hung backend surfaces as a recoverable error instead of leaving the
// session busy forever.
func (c *Client) ResolveTurn(ctx context.Context, session *models.Session, actionText string) (*models.TurnOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	systemPrompt, ok := c.prompts[session.Locale]
	if !ok {
		systemPrompt = c.prompts["en"]
	}

	payload, err := json.Marshal(turnRequest{
		Session: session,
		Action:  actionText,
		Locale:  session.Locale,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal turn request: %w", err)
	}

	attempts := 0
	for attempts < c.maxRetries {
		attempts++

		log.Debug().
			Str("sessionId", session.ID).
			Int("attempt", attempts).
			Msg("Sending turn to narration backend")

		req := openai.ChatCompletionRequest{
			Model: c.modelName,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: string(payload),
				},
			},
			Temperature: 0.8,
			MaxTokens:   4000,
			TopP:        0.95,
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			log.Error().Err(err).Int("attempt", attempts).Msg("CreateChatCompletion failed")
			if attempts >= c.maxRetries || ctx.Err() != nil {
				return nil, fmt.Errorf("narration backend error after %d attempts: %w", attempts, err)
			}
			time.Sleep(time.Duration(attempts) * time.Second)
			continue
		}

		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			log.Warn().Int("attempt", attempts).Msg("Empty response from narration backend")
			if attempts >= c.maxRetries {
				return nil, errors.New("empty response from narration backend")
			}
			time.Sleep(time.Duration(attempts) * time.Second)
			continue
		}

		content := resp.Choices[0].Message.Content
		outcome, err := ParseTurnOutcome(content)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempts).Msg("Narration response is not a usable outcome, retrying")
			if attempts >= c.maxRetries {
				return nil, fmt.Errorf("unparseable narration response after %d attempts: %w", attempts, err)
			}
			time.Sleep(time.Duration(attempts) * time.Second)
			continue
		}

		log.Info().
			Str("model", c.modelName).
			Str("sessionId", session.ID).
			Int("attempt", attempts).
			Msg("Turn resolved by narration backend")
		return outcome, nil
	}

	return nil, errors.New("failed to get a usable response from narration backend")
}
