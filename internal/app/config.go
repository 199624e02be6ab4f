package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Inventory store drivers.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (POS_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"API server listen address"`
	StoreName string `default:"Morita Minimercado" usage:"Store name printed on tickets and given to the assistant" flag:"store-name"`
	Inventory InventoryConfig
	Session   SessionConfig
	Groq      GroqConfig
	Limits    LimitsConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// InventoryConfig selects where the product list is persisted.
type InventoryConfig struct {
	Driver      string `default:"file" usage:"Inventory store: file or postgres" flag:"inventory-driver"`
	Path        string `default:"inventario_morita.json" usage:"Backing JSON file for the file driver" flag:"inventory-path"`
	DatabaseURL string `env:"DATABASE_URL" usage:"PostgreSQL connection URL (POS_INVENTORY_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
}

// SessionConfig controls where till sessions live. Without a Redis URL they
// are kept in memory.
type SessionConfig struct {
	RedisURL     string        `env:"REDIS_URL" usage:"Redis URL for sessions (POS_SESSION_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	TTL          time.Duration `default:"12h" usage:"Session lifetime" flag:"session-ttl"`
	SecureCookie bool          `default:"false" usage:"Send the session cookie over HTTPS only" flag:"secure-cookie"`
}

// GroqConfig configures the speech and language model service.
type GroqConfig struct {
	APIKey             string        `env:"API_KEY" usage:"Groq API key (POS_GROQ_API_KEY or GROQ_API_KEY)" flag:"groq-api-key"`
	BaseURL            string        `default:"https://api.groq.com/openai/v1" usage:"OpenAI-compatible API base URL" flag:"groq-base-url"`
	TranscriptionModel string        `default:"whisper-large-v3" usage:"Speech-to-text model" flag:"transcription-model"`
	ChatModel          string        `default:"llama-3.3-70b-versatile" usage:"Order extraction model" flag:"chat-model"`
	Language           string        `default:"es" usage:"Dictation language" flag:"language"`
	Temperature        float32       `default:"0.1" usage:"Extraction sampling temperature" flag:"temperature"`
	Timeout            time.Duration `default:"0s" usage:"Per-call timeout, zero for none" flag:"groq-timeout"`
}

// LimitsConfig bounds request bodies.
type LimitsConfig struct {
	MaxAudioBytes  int64 `default:"26214400" usage:"Largest accepted audio clip in bytes" flag:"max-audio-bytes"`
	MaxUploadBytes int64 `default:"10485760" usage:"Largest accepted spreadsheet or backup upload in bytes" flag:"max-upload-bytes"`
}

// RateLimitConfig controls the per-session sliding window limiter on the
// voice endpoints, which spend paid model calls.
type RateLimitConfig struct {
	Max    int           `default:"20" usage:"Max voice requests per window"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"true" usage:"Allow credentials (session cookie)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from a .env file, environment variables,
// YAML config files and flags, then applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	return load(aconfig.Config{
		EnvPrefix: "POS",
		Files:     []string{"config.yaml", "/etc/pos/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func load(acfg aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, acfg).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Inventory.Driver {
	case DriverFile:
		if c.Inventory.Path == "" {
			return errors.New("inventory path is required for the file driver")
		}
	case DriverPostgres:
		if c.Inventory.DatabaseURL == "" {
			return errors.New("database URL is required for the postgres driver: set POS_INVENTORY_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown inventory driver %q", c.Inventory.Driver)
	}
	if c.Groq.APIKey == "" {
		return errors.New("groq API key is required: set POS_GROQ_API_KEY or GROQ_API_KEY")
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.Errorf("rate limit needs a positive max and window, got %d per %s", c.RateLimit.Max, c.RateLimit.Window)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the application's
// POS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Inventory.DatabaseURL == "" {
		c.Inventory.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Session.RedisURL == "" {
		c.Session.RedisURL = os.Getenv("REDIS_URL")
	}
	if c.Groq.APIKey == "" {
		c.Groq.APIKey = os.Getenv("GROQ_API_KEY")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
