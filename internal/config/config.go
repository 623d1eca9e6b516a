package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Match     MatchConfig     `yaml:"match"`
	Queue     QueueConfig     `yaml:"queue"`
	Sync      SyncConfig      `yaml:"sync"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Web       WebConfig       `yaml:"web"`
	Server    ServerConfig    `yaml:"server"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Ollama    OllamaConfig    `yaml:"ollama"`
}

type DatabaseConfig struct {
	URL               string `yaml:"url"`            // postgres://, mysql://, sqlite:// or file: URL
	MaxOpenConns      int    `yaml:"max_open_conns"` // Maximum open connections (default 25)
	MaxIdleConns      int    `yaml:"max_idle_conns"` // Maximum idle connections (default 5)
	IndexSnapshotPath string `yaml:"index_snapshot_path"`
}

type EmbeddingConfig struct {
	URL     string        `yaml:"url"` // defaults to http://localhost:8000
	Dim     int           `yaml:"dim"` // defaults to 512
	Timeout time.Duration `yaml:"timeout"`
}

type MatchConfig struct {
	Threshold float64 `yaml:"threshold"`
	Strategy  string  `yaml:"strategy"`
}

type QueueConfig struct {
	Path string `yaml:"path"`
}

type SyncConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	Multiplier     float64       `yaml:"multiplier"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	Schedule       string        `yaml:"schedule"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"` // empty disables MQTT events
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // localhost is always allowed
}

// ServerConfig points CLI commands at a remote registry server.
type ServerConfig struct {
	URL string `yaml:"url"`
}

type OpenAIConfig struct {
	Token string `yaml:"token"`
	Model string `yaml:"model"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type OllamaConfig struct {
	URL   string `yaml:"url"`   // defaults to http://localhost:11434
	Model string `yaml:"model"` // defaults to llama3.2
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a positive Go duration such as "2s".
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envString returns the variable when it is set (even to ""), else defaultVal.
func envString(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

// envList reads a comma-separated list, dropping empty items.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Defaults returns the embedded defaults without environment overrides.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

func Load() *Config {
	d := Defaults()

	return &Config{
		Database: DatabaseConfig{
			URL:               os.Getenv("DATABASE_URL"),
			MaxOpenConns:      envInt("DATABASE_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns:      envInt("DATABASE_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
			IndexSnapshotPath: os.Getenv("INDEX_SNAPSHOT_PATH"),
		},
		Embedding: EmbeddingConfig{
			URL:     envString("EMBEDDING_URL", d.Embedding.URL),
			Dim:     envInt("EMBEDDING_DIM", d.Embedding.Dim),
			Timeout: envDuration("EMBEDDING_TIMEOUT", d.Embedding.Timeout),
		},
		Match: MatchConfig{
			Threshold: envFloat("MATCH_THRESHOLD", d.Match.Threshold),
			Strategy:  envString("MATCH_STRATEGY", d.Match.Strategy),
		},
		Queue: QueueConfig{
			Path: envString("QUEUE_PATH", d.Queue.Path),
		},
		Sync: SyncConfig{
			MaxAttempts:    envInt("SYNC_MAX_ATTEMPTS", d.Sync.MaxAttempts),
			RetryDelay:     envDuration("SYNC_RETRY_DELAY", d.Sync.RetryDelay),
			Multiplier:     envFloat("SYNC_BACKOFF_MULTIPLIER", d.Sync.Multiplier),
			AttemptTimeout: envDuration("SYNC_ATTEMPT_TIMEOUT", d.Sync.AttemptTimeout),
			Schedule:       envString("SYNC_SCHEDULE", d.Sync.Schedule),
		},
		MQTT: MQTTConfig{
			Broker:   os.Getenv("MQTT_BROKER"),
			Topic:    envString("MQTT_TOPIC", d.MQTT.Topic),
			ClientID: envString("MQTT_CLIENT_ID", d.MQTT.ClientID),
			Username: os.Getenv("MQTT_USERNAME"),
			Password: os.Getenv("MQTT_PASSWORD"),
		},
		Web: WebConfig{
			Host: envString("WEB_HOST", d.Web.Host),
			Port: envInt("WEB_PORT", d.Web.Port),

			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS", d.Web.AllowedOrigins),
		},
		Server: ServerConfig{
			URL: os.Getenv("REGISTRY_SERVER_URL"),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
			Model: os.Getenv("OPENAI_MODEL"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  os.Getenv("GEMINI_MODEL"),
		},
		Ollama: OllamaConfig{
			URL:   envString("OLLAMA_URL", d.Ollama.URL),
			Model: envString("OLLAMA_MODEL", d.Ollama.Model),
		},
	}
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	var errs []error
	if c.Match.Threshold < -1 || c.Match.Threshold > 1 {
		errs = append(errs, fmt.Errorf("match threshold %v outside [-1, 1]", c.Match.Threshold))
	}
	if c.Embedding.Dim <= 0 {
		errs = append(errs, errors.New("embedding dimension must be positive"))
	}
	if c.Sync.MaxAttempts < 1 {
		errs = append(errs, errors.New("sync max attempts must be at least 1"))
	}
	if c.Sync.Multiplier != 0 && c.Sync.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("sync backoff multiplier %v must be >= 1", c.Sync.Multiplier))
	}
	return errors.Join(errs...)
}
