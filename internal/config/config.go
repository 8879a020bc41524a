// Package config loads chrysalis settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/lazypower/chrysalis/internal/detect"
)

// Config holds all chrysalis configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Log          LogConfig          `yaml:"log"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Detect       detect.Config      `yaml:"detect"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Hooks        HooksConfig        `yaml:"hooks"`
}

type ServerConfig struct {
	Bind        string   `yaml:"bind" validate:"required"`
	Port        int      `yaml:"port" validate:"min=1,max=65535"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // empty resolves to store.DefaultDBPath()
}

type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Env   string `yaml:"env" validate:"omitempty,oneof=production development dev"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider" validate:"oneof=auto ollama tfidf none"`
	OllamaURL string `yaml:"ollama_url" validate:"omitempty,url"`
	Model     string `yaml:"model"`
	MaxTerms  int    `yaml:"max_terms" validate:"gte=0"`
}

type OrchestratorConfig struct {
	AutoConfirm  bool `yaml:"auto_confirm"`
	MessageLimit int  `yaml:"message_limit" validate:"gte=0,lte=50"`
}

type HooksConfig struct {
	Owner   string `yaml:"owner"`
	Timeout int    `yaml:"timeout" validate:"gte=0"` // seconds
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Log: LogConfig{
			Level: "info",
			Env:   "production",
		},
		Embedding: EmbeddingConfig{
			Provider:  "auto",
			OllamaURL: "http://localhost:11434",
			Model:     "nomic-embed-text",
			MaxTerms:  512,
		},
		Detect: detect.DefaultConfig(),
		Orchestrator: OrchestratorConfig{
			AutoConfirm:  true,
			MessageLimit: 3,
		},
		Hooks: HooksConfig{
			Owner:   "default",
			Timeout: 10,
		},
	}
}

// DefaultPath returns ~/.chrysalis/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".chrysalis", "config.yaml"), nil
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"CHRYSALIS_DB":        &c.Database.Path,
		"CHRYSALIS_BIND":      &c.Server.Bind,
		"CHRYSALIS_LOG_LEVEL": &c.Log.Level,
		"CHRYSALIS_ENV":       &c.Log.Env,
		"CHRYSALIS_OWNER":     &c.Hooks.Owner,
		"OLLAMA_URL":          &c.Embedding.OllamaURL,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("CHRYSALIS_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHRYSALIS_PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for values the rest of the system cannot
// work with.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Detect.MicroIntensity <= 0 || c.Detect.MicroIntensity > 1 {
		return fmt.Errorf("invalid config: detect.micro_intensity must be in (0, 1], got %v", c.Detect.MicroIntensity)
	}
	if c.Detect.EvolutionDelta <= 0 || c.Detect.EvolutionDelta > 1 {
		return fmt.Errorf("invalid config: detect.evolution_delta must be in (0, 1], got %v", c.Detect.EvolutionDelta)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// BaseURL is the address hooks use to reach the server.
func (c *Config) BaseURL() string {
	host := c.Server.Bind
	if host == "0.0.0.0" || host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Server.Port)
}
