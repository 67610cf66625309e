package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the full server configuration, loaded from environment
// variables.
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	Port        string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// Session store. "redis" for shared deployments, "memory" for a
	// single-node setup without external dependencies.
	StoreBackend  string        `envconfig:"STORE_BACKEND" default:"redis"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"24h"`

	// Gameplay
	StuckAfter   time.Duration `envconfig:"SESSION_STUCK_AFTER" default:"2m"`
	DefaultMaxHP int           `envconfig:"DEFAULT_MAX_HP" default:"20"`

	// Narration backend
	AIAPIKey     string        `envconfig:"AI_API_KEY" required:"true"`
	AIModel      string        `envconfig:"AI_MODEL" default:"deepseek/deepseek-chat-v3-0324:free"`
	AIBaseURL    string        `envconfig:"AI_BASE_URL" default:"https://openrouter.ai/api/v1"`
	AITimeout    time.Duration `envconfig:"AI_TIMEOUT" default:"90s"`
	AIMaxRetries int           `envconfig:"AI_MAX_RETRIES" default:"3"`
	PromptsDir   string        `envconfig:"PROMPTS_DIR" default:"prompts"`

	// Illustration backend; illustrations are disabled when the URL is
	// empty.
	ImageServerURL   string        `envconfig:"IMAGE_SERVER_URL"`
	ImageTimeout     time.Duration `envconfig:"IMAGE_TIMEOUT" default:"60s"`
	ImageRatio       string        `envconfig:"IMAGE_RATIO" default:"3:2"`
	ImageStyleSuffix string        `envconfig:"IMAGE_STYLE_SUFFIX" default:", digital painting, high detail"`
}

// LoadConfig loads the configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return &cfg, nil
}
